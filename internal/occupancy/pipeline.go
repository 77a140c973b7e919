package occupancy

import (
	"fmt"
	"sync"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/monitoring"
)

// Options configures a Pipeline.
type Options struct {
	Tolerance  Tolerance
	RasterStep float64
	// BorderWalls marks the play-area perimeter as ObstacleArt.
	BorderWalls bool
	// KeepOut cells are marked ObstacleArt on every pass.
	KeepOut []arena.Cell
}

// State is an immutable copy of the pipeline after a pass.
type State struct {
	Pass   uint64
	Grid   *arena.Grid
	Robots map[string]arena.Cell
	Goals  map[string]arena.Cell
	Report Report
}

// Pipeline owns one grid and the robot records derived from it. Classify
// is safe to call concurrently with the read accessors.
type Pipeline struct {
	mapper *arena.Mapper
	opts   Options

	mu     sync.RWMutex
	pass   uint64
	grid   *arena.Grid
	robots map[string]arena.Cell
	goals  map[string]arena.Cell
	report Report
}

// NewPipeline validates opts against the mapper's grid.
func NewPipeline(m *arena.Mapper, opts Options) (*Pipeline, error) {
	if !opts.Tolerance.Valid() {
		return nil, fmt.Errorf("tolerance must be 0, 1 or 2, got %d", opts.Tolerance)
	}
	if opts.RasterStep <= 0 {
		opts.RasterStep = arena.DefaultRasterStep
	}
	g := m.NewGrid()
	for _, c := range opts.KeepOut {
		if !g.InRange(c) {
			return nil, fmt.Errorf("keep-out cell %v: %w", c, arena.ErrOutOfBounds)
		}
	}
	return &Pipeline{
		mapper: m,
		opts:   opts,
		grid:   g,
		robots: make(map[string]arena.Cell),
		goals:  make(map[string]arena.Cell),
	}, nil
}

func (p *Pipeline) Mapper() *arena.Mapper { return p.mapper }

// Classify re-derives the grid from in and returns the pass report.
func (p *Pipeline) Classify(in Input) Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.grid.Reset()
	p.applyArtificial(in.Corners)

	var rep Report
	rep.OutOfBoundsObstacles = ClassifyObstacles(p.grid, p.mapper, in.Obstacles, p.opts.RasterStep)

	res := ClassifyRobots(p.grid, p.mapper, in.Robots, p.opts.Tolerance)
	rep.OutOfBoundsRobots = res.OutOfBounds
	rep.BadRobots = res.Bad
	p.robots = res.Positions

	present := make(map[string]bool, len(in.Robots))
	for _, rb := range in.Robots {
		present[rb.ID] = true
	}
	for id := range p.goals {
		if !present[id] {
			monitoring.Logf("occupancy: robot %s left the arena, dropping its goal", id)
			delete(p.goals, id)
		}
	}
	for id, goal := range p.goals {
		if _, active := p.robots[id]; active && p.grid.At(goal) == arena.Empty {
			p.grid.Set(goal, arena.Goal)
		}
	}

	rep.Collisions = p.grid.Find(arena.Collision)
	p.report = rep
	p.pass++
	return rep
}

func (p *Pipeline) applyArtificial(corners []Body) {
	if p.opts.BorderWalls {
		for _, c := range PlayArea(p.mapper, corners).Perimeter() {
			p.grid.Set(c, arena.ObstacleArt)
		}
	}
	for _, c := range p.opts.KeepOut {
		p.grid.Set(c, arena.ObstacleArt)
	}
}

// Snapshot copies the current state.
func (p *Pipeline) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return State{
		Pass:   p.pass,
		Grid:   p.grid.Clone(),
		Robots: copyCells(p.robots),
		Goals:  copyCells(p.goals),
		Report: p.report,
	}
}

// SetGoals replaces the goal table. Goals become visible as Goal cells on
// the next pass.
func (p *Pipeline) SetGoals(goals map[string]arena.Cell) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goals = copyCells(goals)
}

// ClearGoals forgets every goal.
func (p *Pipeline) ClearGoals() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goals = make(map[string]arena.Cell)
}

func copyCells(m map[string]arena.Cell) map[string]arena.Cell {
	out := make(map[string]arena.Cell, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
