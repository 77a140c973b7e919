// Package arena owns the discrete model of the motion-capture arena.
//
// Responsibilities: lab-frame to grid-frame quantization (Mapper), the
// cell grid itself (Grid, CellState), bounds tests, and rasterization of
// marker polygons into blocked cells.
// Key types: Point, LabCell, Cell, Grid, Mapper, Bounds.
//
// Dependency rule: arena depends on nothing else in this module. All
// quantization of lab coordinates goes through Mapper.ToLabCell so that
// obstacles and robots agree on boundary cells.
package arena
