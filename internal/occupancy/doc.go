// Package occupancy turns one frame of marker sets into a classified grid.
//
// A Pipeline owns a single arena.Grid and re-derives it from scratch on
// every Classify call, always in the same order: artificial obstacles,
// real obstacles, robots, then goal markers. Problems found along the way
// (out-of-bounds marker sets, robots that straddle cells, collisions) are
// returned in a Report rather than treated as failures.
package occupancy
