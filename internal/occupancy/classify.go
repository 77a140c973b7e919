package occupancy

import (
	"sort"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// ClassifyObstacles rasterizes each obstacle into ObstacleReal cells. An
// obstacle with any marker outside the grid is skipped entirely and its
// name returned.
func ClassifyObstacles(g *arena.Grid, m *arena.Mapper, obstacles []Body, dr float64) []string {
	bounds := m.Bounds()
	var skipped []string
	for _, ob := range obstacles {
		if !allInBounds(m, bounds, ob.Markers) {
			skipped = append(skipped, ob.ID)
			continue
		}
		for _, lc := range arena.BlockedCells(m, ob.Markers, dr) {
			c, err := m.ToGridIndex(lc)
			if err != nil {
				// sampled points lie between in-bounds markers
				panic("occupancy: rasterized cell escaped the grid: " + err.Error())
			}
			g.Set(c, arena.ObstacleReal)
		}
	}
	return skipped
}

func allInBounds(m *arena.Mapper, b arena.Bounds, pts []arena.Point) bool {
	for _, p := range pts {
		if !b.Contains(m.ToLabCell(p)) {
			return false
		}
	}
	return true
}

// RobotResult is the outcome of ClassifyRobots.
type RobotResult struct {
	Positions   map[string]arena.Cell
	Bad         []string
	OutOfBounds []string
}

// ClassifyRobots places robots on a grid that already carries its
// obstacles. Robots are visited in id order so collisions between robots
// resolve the same way on every pass.
func ClassifyRobots(g *arena.Grid, m *arena.Mapper, robots []Body, tol Tolerance) RobotResult {
	res := RobotResult{Positions: make(map[string]arena.Cell)}

	ordered := make([]Body, len(robots))
	copy(ordered, robots)
	sortBodies(ordered)

	for _, rb := range ordered {
		cells, ok := markerCells(m, rb.Markers)
		if !ok {
			res.OutOfBounds = append(res.OutOfBounds, rb.ID)
			continue
		}
		modal, count := modalCell(cells)
		if !tol.accepts(count, len(cells)) {
			res.Bad = append(res.Bad, rb.ID)
			seen := make(map[arena.Cell]bool, len(cells))
			for _, c := range cells {
				if seen[c] {
					continue
				}
				seen[c] = true
				// occupied cells become Collision, free ones RobotPartial
				if !CheckAndMark(g, c) {
					g.Set(c, arena.RobotPartial)
				}
			}
			continue
		}
		if !CheckAndMark(g, modal) {
			g.Set(modal, arena.RobotFull)
		}
		res.Positions[rb.ID] = modal
	}
	return res
}

func markerCells(m *arena.Mapper, pts []arena.Point) ([]arena.Cell, bool) {
	cells := make([]arena.Cell, 0, len(pts))
	for _, p := range pts {
		c, err := m.CellOf(p)
		if err != nil {
			return nil, false
		}
		cells = append(cells, c)
	}
	return cells, true
}

// modalCell returns the most frequent cell. Ties go to the cell seen first.
func modalCell(cells []arena.Cell) (arena.Cell, int) {
	counts := make(map[arena.Cell]int, len(cells))
	var best arena.Cell
	bestN := 0
	for _, c := range cells {
		counts[c]++
	}
	for _, c := range cells {
		if n := counts[c]; n > bestN {
			best, bestN = c, n
		}
	}
	return best, bestN
}

func sortBodies(bodies []Body) {
	sort.SliceStable(bodies, func(i, j int) bool { return LessID(bodies[i].ID, bodies[j].ID) })
}
