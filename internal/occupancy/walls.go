package occupancy

import (
	"math"
	"strings"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// CornerInset pulls each corner marker set towards the arena centre before
// it is quantized, so the wall lands inside the taped boundary.
const CornerInset = 0.15

// Rect is an inclusive range of grid cells.
type Rect struct {
	RowMin, RowMax int
	ColMin, ColMax int
}

// Perimeter lists the cells on the edge of r, row-major.
func (r Rect) Perimeter() []arena.Cell {
	var out []arena.Cell
	for row := r.RowMin; row <= r.RowMax; row++ {
		for col := r.ColMin; col <= r.ColMax; col++ {
			if row == r.RowMin || row == r.RowMax || col == r.ColMin || col == r.ColMax {
				out = append(out, arena.Cell{Row: row, Col: col})
			}
		}
	}
	return out
}

// PlayArea returns the rectangle bounded by the four corner marker sets
// (TL, TR, BL, BR). Without a complete, in-bounds set of corners it falls
// back to the whole grid.
func PlayArea(m *arena.Mapper, corners []Body) Rect {
	full := Rect{RowMax: m.Rows() - 1, ColMax: m.Cols() - 1}

	centroids := make(map[string]arena.Point, 4)
	for _, c := range corners {
		tag := c.ID
		if _, after, ok := strings.Cut(tag, "-"); ok {
			tag = after
		}
		tag = strings.ToUpper(tag)
		switch tag {
		case "TL", "TR", "BL", "BR":
		default:
			continue
		}
		if len(c.Markers) == 0 {
			continue
		}
		centroids[tag] = centroid(c.Markers)
	}
	if len(centroids) != 4 {
		return full
	}

	var mid arena.Point
	for _, p := range centroids {
		mid.X += p.X / 4
		mid.Y += p.Y / 4
	}

	r := Rect{RowMin: math.MaxInt, ColMin: math.MaxInt, RowMax: math.MinInt, ColMax: math.MinInt}
	for _, p := range centroids {
		p.X += CornerInset * sign(mid.X-p.X)
		p.Y += CornerInset * sign(mid.Y-p.Y)
		c, err := m.CellOf(p)
		if err != nil {
			return full
		}
		r.RowMin = min(r.RowMin, c.Row)
		r.RowMax = max(r.RowMax, c.Row)
		r.ColMin = min(r.ColMin, c.Col)
		r.ColMax = max(r.ColMax, c.Col)
	}
	return r
}

func centroid(pts []arena.Point) arena.Point {
	var c arena.Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return arena.Point{X: c.X / n, Y: c.Y / n}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
