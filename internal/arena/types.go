package arena

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a 2-D position in the lab frame, in metres.
type Point = r2.Vec

// LabCell is a signed cell coordinate centred on the lab origin.
type LabCell struct {
	Row, Col int
}

// Cell is a non-negative index into a Grid.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// ErrOutOfBounds is returned when a position or cell falls outside the grid.
var ErrOutOfBounds = errors.New("outside arena bounds")

// BoundsError reports the offending lab cell.
type BoundsError struct {
	Cell LabCell
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("lab cell (%d,%d) %v", e.Cell.Row, e.Cell.Col, ErrOutOfBounds)
}

func (e *BoundsError) Unwrap() error { return ErrOutOfBounds }

// CellState tags what occupies a grid cell. The zero value is Empty.
type CellState uint8

const (
	Empty CellState = iota
	Collision
	RobotFull
	RobotPartial
	ObstacleReal
	ObstacleArt
	Goal
)

func (s CellState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Collision:
		return "collision"
	case RobotFull:
		return "robot_full"
	case RobotPartial:
		return "robot_partial"
	case ObstacleReal:
		return "obstacle_real"
	case ObstacleArt:
		return "obstacle_art"
	case Goal:
		return "goal"
	default:
		return fmt.Sprintf("CellState(%d)", uint8(s))
	}
}

// IsObstacle reports whether the cell is blocked in the exported map.
func (s CellState) IsObstacle() bool {
	return s == ObstacleReal || s == ObstacleArt
}
