package occupancy

import "github.com/banshee-data/arena.grid/internal/arena"

// CheckAndMark tests whether c already holds an obstacle or a robot. If it
// does, the cell becomes Collision and the caller must not overwrite it.
func CheckAndMark(g *arena.Grid, c arena.Cell) bool {
	switch g.At(c) {
	case arena.ObstacleReal, arena.ObstacleArt, arena.RobotFull, arena.RobotPartial, arena.Collision:
		g.Set(c, arena.Collision)
		return true
	}
	return false
}
