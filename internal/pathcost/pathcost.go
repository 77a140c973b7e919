// Package pathcost estimates optimal path lengths on a classified grid.
//
// Passable cells (Empty and Goal) form a weighted undirected graph with
// Euclidean edge weights, searched with A* and a Euclidean heuristic.
// Lengths are in cells: an orthogonal step costs 1, a diagonal step √2.
package pathcost

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// ErrNoPath is returned when the goal cannot be reached.
var ErrNoPath = errors.New("no path")

// Connectivity is the number of neighbours a cell can move to.
type Connectivity int

const (
	Four  Connectivity = 4
	Eight Connectivity = 8
)

// Valid reports whether c is 4 or 8.
func (c Connectivity) Valid() bool { return c == Four || c == Eight }

var (
	orthogonal = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	diagonal   = [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
)

// Passable reports whether a path may cross a cell in state s.
func Passable(s arena.CellState) bool {
	return s == arena.Empty || s == arena.Goal
}

// Estimator answers shortest-length queries against one grid snapshot.
// It is not safe for concurrent use.
type Estimator struct {
	rows, cols int
	grid       *arena.Grid
	conn       Connectivity
	g          *simple.WeightedUndirectedGraph
}

// New builds the search graph for grid. Connectivity other than 4 is
// treated as 8.
func New(grid *arena.Grid, conn Connectivity) *Estimator {
	if conn != Four {
		conn = Eight
	}
	e := &Estimator{
		rows: grid.Rows(),
		cols: grid.Cols(),
		grid: grid,
		conn: conn,
		g:    simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
	}
	for r := 0; r < e.rows; r++ {
		for c := 0; c < e.cols; c++ {
			cell := arena.Cell{Row: r, Col: c}
			if Passable(grid.At(cell)) {
				e.g.AddNode(simple.Node(e.id(cell)))
			}
		}
	}
	for r := 0; r < e.rows; r++ {
		for c := 0; c < e.cols; c++ {
			if cell := (arena.Cell{Row: r, Col: c}); e.g.Node(e.id(cell)) != nil {
				e.link(cell)
			}
		}
	}
	return e
}

func (e *Estimator) id(c arena.Cell) int64 { return int64(c.Row*e.cols + c.Col) }

func (e *Estimator) cell(id int64) arena.Cell {
	return arena.Cell{Row: int(id) / e.cols, Col: int(id) % e.cols}
}

// link joins c to every passable neighbour already in the graph.
func (e *Estimator) link(c arena.Cell) {
	moves := orthogonal
	if e.conn == Eight {
		moves = append(append([][2]int{}, orthogonal...), diagonal...)
	}
	from := e.g.Node(e.id(c))
	for _, d := range moves {
		n := arena.Cell{Row: c.Row + d[0], Col: c.Col + d[1]}
		if !e.grid.InRange(n) {
			continue
		}
		to := e.g.Node(e.id(n))
		if to == nil {
			continue
		}
		e.g.SetWeightedEdge(e.g.NewWeightedEdge(from, to, distance(c, n)))
	}
}

func distance(a, b arena.Cell) float64 {
	return math.Hypot(float64(a.Row-b.Row), float64(a.Col-b.Col))
}

// OptimalLength returns the A* shortest path length from start to goal.
// The start cell may be occupied (it is the robot's own cell); every other
// cell on the path must be passable. An unreachable or blocked goal yields
// ErrNoPath.
func (e *Estimator) OptimalLength(start, goal arena.Cell) (float64, error) {
	if start == goal && e.grid.InRange(start) {
		return 0, nil
	}
	p, err := e.search(start, goal)
	if err != nil {
		return 0, err
	}
	return p.WeightTo(e.id(goal)), nil
}

// Route returns the cells of a shortest path, start and goal included.
func (e *Estimator) Route(start, goal arena.Cell) ([]arena.Cell, error) {
	if start == goal && e.grid.InRange(start) {
		return []arena.Cell{start}, nil
	}
	p, err := e.search(start, goal)
	if err != nil {
		return nil, err
	}
	nodes, _ := p.To(e.id(goal))
	out := make([]arena.Cell, len(nodes))
	for i, n := range nodes {
		out[i] = e.cell(n.ID())
	}
	return out, nil
}

func (e *Estimator) search(start, goal arena.Cell) (path.Shortest, error) {
	for _, c := range []arena.Cell{start, goal} {
		if !e.grid.InRange(c) {
			return path.Shortest{}, fmt.Errorf("cell %v: %w", c, arena.ErrOutOfBounds)
		}
	}
	if e.g.Node(e.id(goal)) == nil {
		return path.Shortest{}, fmt.Errorf("goal %v is %s: %w", goal, e.grid.At(goal), ErrNoPath)
	}
	if e.g.Node(e.id(start)) == nil {
		e.g.AddNode(simple.Node(e.id(start)))
		e.link(start)
		defer e.g.RemoveNode(e.id(start))
	}

	p, _ := path.AStar(e.g.Node(e.id(start)), e.g.Node(e.id(goal)), e.g, e.heuristic)
	if math.IsInf(p.WeightTo(e.id(goal)), 1) {
		return path.Shortest{}, fmt.Errorf("%v to %v: %w", start, goal, ErrNoPath)
	}
	return p, nil
}

func (e *Estimator) heuristic(x, y graph.Node) float64 {
	return distance(e.cell(x.ID()), e.cell(y.ID()))
}
