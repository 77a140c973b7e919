package arena

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultRasterStep is the sampling step along obstacle edges, in metres.
const DefaultRasterStep = 0.01

// BlockedCells returns the lab cells crossed by every segment joining two
// vertices. All ordered pairs are sampled, not just consecutive edges, so
// marker order does not matter; non-convex layouts get extra interior cells.
//
// Each segment is sampled every dr up to ceil(length), clamped at the far
// vertex. Fewer than two vertices yields nil. The result is sorted
// row-major and carries no duplicates.
func BlockedCells(m *Mapper, vertices []Point, dr float64) []LabCell {
	if len(vertices) < 2 {
		return nil
	}
	if !(dr > 0) {
		dr = DefaultRasterStep
	}
	seen := make(map[LabCell]struct{})
	for i, a := range vertices {
		for j, b := range vertices {
			if i == j {
				continue
			}
			sampleSegment(m, a, b, dr, seen)
		}
	}
	out := make([]LabCell, 0, len(seen))
	for lc := range seen {
		out = append(out, lc)
	}
	sortLabCells(out)
	return out
}

func sampleSegment(m *Mapper, a, b Point, dr float64, seen map[LabCell]struct{}) {
	d := r2.Sub(b, a)
	length := r2.Norm(d)
	if length == 0 {
		seen[m.ToLabCell(a)] = struct{}{}
		return
	}
	dir := r2.Scale(1/length, d)
	steps := int(math.Ceil(length) / dr)
	if steps < 1 {
		steps = 1
	}
	for k := 0; k <= steps; k++ {
		t := math.Min(float64(k)*dr, length)
		seen[m.ToLabCell(r2.Add(a, r2.Scale(t, dir)))] = struct{}{}
	}
}

func sortLabCells(cells []LabCell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
}
