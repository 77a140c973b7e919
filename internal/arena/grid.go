package arena

import "fmt"

// Grid is a dense rows x cols array of CellState. Indexing outside the
// array panics: callers are expected to go through Mapper.ToGridIndex.
type Grid struct {
	rows, cols int
	cells      []CellState
}

// NewGrid returns an all-Empty grid.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("arena: negative grid size %dx%d", rows, cols))
	}
	return &Grid{rows: rows, cols: cols, cells: make([]CellState, rows*cols)}
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

// InRange reports whether c indexes the array.
func (g *Grid) InRange(c Cell) bool {
	return c.Row >= 0 && c.Row < g.rows && c.Col >= 0 && c.Col < g.cols
}

func (g *Grid) index(c Cell) int {
	if !g.InRange(c) {
		panic(fmt.Sprintf("arena: cell %v outside %dx%d grid", c, g.rows, g.cols))
	}
	return c.Row*g.cols + c.Col
}

// At returns the state of c.
func (g *Grid) At(c Cell) CellState { return g.cells[g.index(c)] }

// Set overwrites the state of c.
func (g *Grid) Set(c Cell, s CellState) { g.cells[g.index(c)] = s }

// Reset sets every cell back to Empty.
func (g *Grid) Reset() {
	for i := range g.cells {
		g.cells[i] = Empty
	}
}

// Clone returns an independent copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{rows: g.rows, cols: g.cols, cells: make([]CellState, len(g.cells))}
	copy(out.cells, g.cells)
	return out
}

// Find returns every cell holding s in row-major order.
func (g *Grid) Find(s CellState) []Cell {
	var out []Cell
	for i, v := range g.cells {
		if v == s {
			out = append(out, Cell{Row: i / g.cols, Col: i % g.cols})
		}
	}
	return out
}

// Count returns how many cells hold s.
func (g *Grid) Count(s CellState) int {
	n := 0
	for _, v := range g.cells {
		if v == s {
			n++
		}
	}
	return n
}

// Rows2D copies the grid into a [row][col] slice.
func (g *Grid) Rows2D() [][]CellState {
	out := make([][]CellState, g.rows)
	for r := range out {
		out[r] = make([]CellState, g.cols)
		copy(out[r], g.cells[r*g.cols:(r+1)*g.cols])
	}
	return out
}

// Equal reports whether g and other have the same shape and contents.
func (g *Grid) Equal(other *Grid) bool {
	if other == nil || g.rows != other.rows || g.cols != other.cols {
		return false
	}
	for i, v := range g.cells {
		if other.cells[i] != v {
			return false
		}
	}
	return true
}
