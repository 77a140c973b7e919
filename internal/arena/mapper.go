package arena

import (
	"fmt"
	"math"
)

// Rounding selects how a continuous coordinate is quantized to a cell.
type Rounding int

const (
	// RoundNearest quantizes with math.Round (half away from zero).
	RoundNearest Rounding = iota
	// RoundFloor quantizes with math.Floor.
	RoundFloor
)

func (r Rounding) String() string {
	if r == RoundFloor {
		return "floor"
	}
	return "round"
}

// ParseRounding accepts "round" or "floor".
func ParseRounding(s string) (Rounding, error) {
	switch s {
	case "", "round":
		return RoundNearest, nil
	case "floor":
		return RoundFloor, nil
	}
	return RoundNearest, fmt.Errorf("unknown rounding %q (want round or floor)", s)
}

func (r Rounding) apply(v float64) int {
	if r == RoundFloor {
		return int(math.Floor(v))
	}
	return int(math.Round(v))
}

// Bounds is the inclusive lab-cell range covered by the grid.
type Bounds struct {
	RowMin, RowMax int
	ColMin, ColMax int
}

// Contains reports whether lc lies within b.
func (b Bounds) Contains(lc LabCell) bool {
	return lc.Row >= b.RowMin && lc.Row <= b.RowMax &&
		lc.Col >= b.ColMin && lc.Col <= b.ColMax
}

// Mapper converts between lab-frame positions and grid cells.
//
// Both axes are negated: lab row = -x/cellSize and lab col = -y/cellSize,
// quantized with a single Rounding rule. The lab origin sits at grid index
// (Rows/2, Cols/2).
type Mapper struct {
	cellSize   float64
	rows, cols int
	originRow  int
	originCol  int
	rounding   Rounding
}

// NewMapper sizes a grid for an arena of height x width metres.
func NewMapper(cellSize, height, width float64, rounding Rounding) (*Mapper, error) {
	if !(cellSize > 0) {
		return nil, fmt.Errorf("cell size must be positive, got %v", cellSize)
	}
	if !(height > 0) || !(width > 0) {
		return nil, fmt.Errorf("arena size must be positive, got %vx%v", height, width)
	}
	// The epsilon absorbs representation error, e.g. 6/0.3 = 19.999...
	rows := int(math.Floor(height/cellSize + 1e-9))
	cols := int(math.Floor(width/cellSize + 1e-9))
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("arena %vx%v is smaller than one %v cell", height, width, cellSize)
	}
	return &Mapper{
		cellSize:  cellSize,
		rows:      rows,
		cols:      cols,
		originRow: rows / 2,
		originCol: cols / 2,
		rounding:  rounding,
	}, nil
}

// NewMapperForGrid builds a mapper with an explicit cell count.
func NewMapperForGrid(cellSize float64, rows, cols int, rounding Rounding) (*Mapper, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("grid must be at least 1x1, got %dx%d", rows, cols)
	}
	return NewMapper(cellSize, float64(rows)*cellSize, float64(cols)*cellSize, rounding)
}

func (m *Mapper) Rows() int { return m.rows }
func (m *Mapper) Cols() int { return m.cols }
func (m *Mapper) CellSize() float64 { return m.cellSize }
func (m *Mapper) Rounding() Rounding { return m.rounding }
func (m *Mapper) NewGrid() *Grid { return NewGrid(m.rows, m.cols) }
func (m *Mapper) Origin() (int, int) { return m.originRow, m.originCol }

// Bounds returns the lab-cell extent of the grid.
func (m *Mapper) Bounds() Bounds {
	return Bounds{
		RowMin: -m.originRow,
		RowMax: m.rows - 1 - m.originRow,
		ColMin: -m.originCol,
		ColMax: m.cols - 1 - m.originCol,
	}
}

// ToLabCell quantizes a lab-frame position. It never fails; use
// ToGridIndex or Bounds to test the result.
func (m *Mapper) ToLabCell(p Point) LabCell {
	return LabCell{
		Row: m.rounding.apply(-p.X / m.cellSize),
		Col: m.rounding.apply(-p.Y / m.cellSize),
	}
}

// ToGridIndex shifts a lab cell into array indices. Cells outside the grid
// return a *BoundsError wrapping ErrOutOfBounds.
func (m *Mapper) ToGridIndex(lc LabCell) (Cell, error) {
	c := Cell{Row: lc.Row + m.originRow, Col: lc.Col + m.originCol}
	if c.Row < 0 || c.Row >= m.rows || c.Col < 0 || c.Col >= m.cols {
		return Cell{}, &BoundsError{Cell: lc}
	}
	return c, nil
}

// CellOf maps a lab-frame position straight to a grid index.
func (m *Mapper) CellOf(p Point) (Cell, error) {
	return m.ToGridIndex(m.ToLabCell(p))
}

// LabCellOf is the inverse of ToGridIndex.
func (m *Mapper) LabCellOf(c Cell) LabCell {
	return LabCell{Row: c.Row - m.originRow, Col: c.Col - m.originCol}
}

// CellCenter returns the lab-frame position at the centre of c, so that
// CellOf(CellCenter(c)) == c for every in-range cell.
func (m *Mapper) CellCenter(c Cell) Point {
	lc := m.LabCellOf(c)
	r, k := float64(lc.Row), float64(lc.Col)
	if m.rounding == RoundFloor {
		r += 0.5
		k += 0.5
	}
	return Point{X: -r * m.cellSize, Y: -k * m.cellSize}
}
