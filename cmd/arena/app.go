package main

import (
	"fmt"
	"time"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/config"
	"github.com/banshee-data/arena.grid/internal/engine"
	"github.com/banshee-data/arena.grid/internal/fsutil"
	"github.com/banshee-data/arena.grid/internal/mocap"
	"github.com/banshee-data/arena.grid/internal/occupancy"
	"github.com/banshee-data/arena.grid/internal/pathcost"
	"github.com/banshee-data/arena.grid/internal/scenario"
	"github.com/banshee-data/arena.grid/internal/solver"
	"github.com/banshee-data/arena.grid/internal/store"
	"github.com/banshee-data/arena.grid/internal/timeutil"
)

// app holds everything main wires together.
type app struct {
	cfg    *config.ArenaConfig
	frames *mocap.Latest
	engine *engine.Engine
	runs   *store.RunStore
	db     *store.DB
}

// deps are the optional outer pieces of an app.
type deps struct {
	FS     fsutil.FileSystem
	Clock  timeutil.Clock
	DB     *store.DB
	Poses  engine.Sender
	Plans  engine.Sender
	DryRun bool
}

func newMapper(cfg *config.ArenaConfig) (*arena.Mapper, error) {
	rounding, err := arena.ParseRounding(cfg.GetRounding())
	if err != nil {
		return nil, err
	}
	return arena.NewMapper(cfg.GetCellSize(), cfg.GetArenaHeight(), cfg.GetArenaWidth(), rounding)
}

func keepOut(cfg *config.ArenaConfig) []arena.Cell {
	cells := make([]arena.Cell, 0, len(cfg.KeepOut))
	for _, rc := range cfg.KeepOut {
		cells = append(cells, arena.Cell{Row: rc[0], Col: rc[1]})
	}
	return cells
}

func buildApp(cfg *config.ArenaConfig, d deps) (*app, error) {
	if d.FS == nil {
		d.FS = fsutil.OSFileSystem{}
	}
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}

	m, err := newMapper(cfg)
	if err != nil {
		return nil, fmt.Errorf("arena geometry: %w", err)
	}
	pipeline, err := occupancy.NewPipeline(m, occupancy.Options{
		Tolerance:   occupancy.Tolerance(cfg.GetTolerance()),
		RasterStep:  cfg.GetRasterStep(),
		BorderWalls: cfg.GetBorderWalls(),
		KeepOut:     keepOut(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("occupancy pipeline: %w", err)
	}

	seed := cfg.GetGoalSeed()
	if seed == 0 {
		seed = d.Clock.Now().UnixNano()
	}
	files := scenario.Files{
		Map:      cfg.GetMapFile(),
		Scenario: cfg.GetScenarioFile(),
		Goals:    cfg.GetGoalsFile(),
		Paths:    cfg.GetPathsFile(),
		Plan:     cfg.GetPlanFile(),
	}
	session := scenario.NewSession(d.FS, files, pathcost.Connectivity(cfg.GetConnectivity()), scenario.NewGoalAssigner(seed))

	a := &app{cfg: cfg, frames: &mocap.Latest{}, db: d.DB}
	ecfg := engine.Config{
		Pipeline: pipeline,
		Session:  session,
		Frames:   a.frames,
		Solver: &solver.Runner{
			Command: cfg.GetSolverCommand(),
			Timeout: cfg.GetSolverTimeout(),
			DryRun:  d.DryRun,
		},
		Clock:    d.Clock,
		Interval: cfg.GetPassInterval(),
		Poses:    d.Poses,
		Plans:    d.Plans,
	}
	if d.DB != nil {
		a.runs = store.NewRunStore(d.DB, d.Clock)
		ecfg.Runs = a.runs
		ecfg.Goals = store.NewGoalStore(d.DB, d.Clock)
	}
	a.engine, err = engine.New(ecfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// describe summarises the arena for the startup log.
func (a *app) describe() string {
	m := a.engine.State().Grid
	return fmt.Sprintf("%dx%d grid, %.2fm cells, pass every %s",
		m.Rows(), m.Cols(), a.cfg.GetCellSize(), a.cfg.GetPassInterval().Round(time.Millisecond))
}
