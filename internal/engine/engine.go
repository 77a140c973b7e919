// Package engine runs the classification loop and drives a planning
// session: one pass per tick over the latest mocap frame, goal assignment
// and file writing on request, the solver, and the broadcasts that follow a
// solution.
//
// While a scenario is being prepared any layout change invalidates it.
// Once a solution exists the robots are expected to move: robot poses are
// broadcast every pass, and only a change in the obstacle cells drops the
// solution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/arena.grid/internal/broadcast"
	"github.com/banshee-data/arena.grid/internal/mocap"
	"github.com/banshee-data/arena.grid/internal/monitoring"
	"github.com/banshee-data/arena.grid/internal/occupancy"
	"github.com/banshee-data/arena.grid/internal/plan"
	"github.com/banshee-data/arena.grid/internal/scenario"
	"github.com/banshee-data/arena.grid/internal/snapshot"
	"github.com/banshee-data/arena.grid/internal/solver"
	"github.com/banshee-data/arena.grid/internal/store"
	"github.com/banshee-data/arena.grid/internal/timeutil"
)

var (
	// ErrNoFrame is returned when no pass has run yet.
	ErrNoFrame = errors.New("no mocap frame classified yet")
	// ErrBusy is returned when a solve is already running.
	ErrBusy = errors.New("solver already running")
)

// FrameSource yields the most recent frame.
type FrameSource interface {
	Get() (mocap.Frame, bool)
}

// Solver runs the external planner.
type Solver interface {
	Run(ctx context.Context, req solver.Request) (solver.Result, error)
}

// Sender delivers a broadcast message.
type Sender interface {
	Send(msg []byte) bool
}

// Config wires an Engine. Pipeline, Session and Frames are required.
type Config struct {
	Pipeline *occupancy.Pipeline
	Session  *scenario.Session
	Frames   FrameSource
	Solver   Solver

	Clock    timeutil.Clock
	Interval time.Duration

	// Optional run history.
	Runs  *store.RunStore
	Goals *store.GoalStore

	// Optional broadcasts.
	Poses Sender
	Plans Sender
}

// Solution is the outcome of a solve.
type Solution struct {
	RunID  string         `json:"run_id,omitempty"`
	Agents []string       `json:"agents"`
	Paths  plan.PathTable `json:"paths"`
	Plan   string         `json:"plan"`
	Took   time.Duration  `json:"took_ns,omitempty"`
}

type Engine struct {
	cfg Config

	solveMu sync.Mutex

	mu    sync.Mutex
	runID string
	frame mocap.Frame
}

func New(cfg Config) (*Engine, error) {
	if cfg.Pipeline == nil || cfg.Session == nil || cfg.Frames == nil {
		return nil, errors.New("engine needs a pipeline, a session and a frame source")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Engine{cfg: cfg}, nil
}

// Restore loads the stored goal set into the pipeline so "keep" survives a
// restart. It is a no-op without a goal store.
func (e *Engine) Restore(ctx context.Context) error {
	if e.cfg.Goals == nil {
		return nil
	}
	goals, err := e.cfg.Goals.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore goals: %w", err)
	}
	if len(goals) > 0 {
		e.cfg.Pipeline.SetGoals(goals)
		monitoring.Logf("engine: restored %d goals", len(goals))
	}
	return nil
}

// Run calls Step on every tick until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	t := e.cfg.Clock.NewTicker(e.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			e.Step()
		}
	}
}

// Step classifies the latest frame. It reports false when no frame has
// arrived yet.
func (e *Engine) Step() bool {
	frame, ok := e.cfg.Frames.Get()
	if !ok {
		return false
	}
	rep := e.cfg.Pipeline.Classify(frame.Input())
	if !rep.Clean() {
		for _, err := range rep.Errors() {
			monitoring.Logf("engine: %v", err)
		}
	}
	e.mu.Lock()
	e.frame = frame
	e.mu.Unlock()

	phase := e.cfg.Session.Phase()
	if phase == scenario.PhaseEmpty {
		return true
	}
	if e.cfg.Session.Observe(e.cfg.Pipeline.Snapshot()) {
		e.setRunID("")
		return true
	}
	if phase == scenario.PhaseSolutionAvailable {
		e.sendPoses(frame)
	}
	return true
}

func (e *Engine) sendPoses(f mocap.Frame) {
	if e.cfg.Poses == nil {
		return
	}
	msg, err := broadcast.Marshal(broadcast.Poses(f))
	if err != nil {
		monitoring.Logf("engine: encode poses: %v", err)
		return
	}
	e.cfg.Poses.Send(msg)
}

// State is the latest classified pass.
func (e *Engine) State() occupancy.State { return e.cfg.Pipeline.Snapshot() }

// Frame is the frame behind the latest pass.
func (e *Engine) Frame() mocap.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// Phase is the session phase.
func (e *Engine) Phase() scenario.Phase { return e.cfg.Session.Phase() }

// RunID is the history id of the current scenario, empty when there is
// none or no run store is configured.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func (e *Engine) setRunID(id string) {
	e.mu.Lock()
	e.runID = id
	e.mu.Unlock()
}

// Prepare assigns goals on the latest pass and writes the map and scenario
// files.
func (e *Engine) Prepare(ctx context.Context, mode scenario.GoalMode) (scenario.Report, error) {
	st := e.cfg.Pipeline.Snapshot()
	if st.Pass == 0 {
		return scenario.Report{}, ErrNoFrame
	}
	rep, err := e.cfg.Session.Prepare(st, mode)
	if err != nil {
		return rep, err
	}
	goals := e.cfg.Session.Goals()
	e.cfg.Pipeline.SetGoals(goals)

	if e.cfg.Goals != nil {
		if err := e.cfg.Goals.Save(ctx, goals); err != nil {
			monitoring.Logf("engine: save goals: %v", err)
		}
	}
	e.setRunID("")
	if e.cfg.Runs != nil {
		run, err := e.cfg.Runs.Create(ctx, e.cfg.Session.Files().Scenario, rep.Records)
		if err != nil {
			monitoring.Logf("engine: record run: %v", err)
		} else {
			e.setRunID(run.ID)
		}
	}
	return rep, nil
}

// Solve runs the solver on the written scenario and translates its output.
// Agents whose paths fail to parse are reported in the error alongside a
// solution for the rest.
func (e *Engine) Solve(ctx context.Context) (Solution, error) {
	if e.cfg.Solver == nil {
		return Solution{}, errors.New("no solver configured")
	}
	if !e.solveMu.TryLock() {
		return Solution{}, ErrBusy
	}
	defer e.solveMu.Unlock()

	switch p := e.cfg.Session.Phase(); p {
	case scenario.PhaseScenarioWritten, scenario.PhaseSolutionAvailable:
	default:
		return Solution{}, fmt.Errorf("solve in phase %s: %w", p, scenario.ErrPhase)
	}

	files := e.cfg.Session.Files()
	rep := e.cfg.Session.Report()
	runID := e.RunID()
	req := solver.Request{
		MapFile:      files.Map,
		ScenarioFile: files.Scenario,
		PathsFile:    files.Paths,
		Agents:       len(rep.Agents),
	}
	start := e.cfg.Clock.Now()
	res, err := e.cfg.Solver.Run(ctx, req)
	if err != nil {
		e.recordFailure(ctx, runID, err, e.cfg.Clock.Now().Sub(start))
		if res.Output != "" {
			monitoring.Logf("engine: solver output:\n%s", res.Output)
		}
		return Solution{}, err
	}

	_, perr := e.cfg.Session.AcceptSolution()
	table, planTxt, agents, err := e.cfg.Session.Solution()
	if err != nil {
		if perr != nil {
			err = perr
		}
		e.recordFailure(ctx, runID, err, e.cfg.Clock.Now().Sub(start))
		return Solution{}, err
	}
	sol := Solution{
		RunID:  runID,
		Agents: agents,
		Paths:  table,
		Plan:   string(planTxt),
		Took:   e.cfg.Clock.Now().Sub(start),
	}
	if e.cfg.Runs != nil && runID != "" {
		if err := e.cfg.Runs.MarkSolved(ctx, runID, sol.Plan, sol.Took); err != nil {
			monitoring.Logf("engine: record solution: %v", err)
		}
	}
	e.sendPlan(sol)
	return sol, perr
}

func (e *Engine) recordFailure(ctx context.Context, runID string, cause error, took time.Duration) {
	if e.cfg.Runs == nil || runID == "" {
		return
	}
	if err := e.cfg.Runs.MarkFailed(ctx, runID, cause, took); err != nil {
		monitoring.Logf("engine: record failure: %v", err)
	}
}

func (e *Engine) sendPlan(sol Solution) {
	if e.cfg.Plans == nil {
		return
	}
	msg, err := broadcast.Marshal(broadcast.NewPlanMessage(sol.RunID, sol.Agents, sol.Paths, sol.Plan))
	if err != nil {
		monitoring.Logf("engine: encode plan: %v", err)
		return
	}
	if !e.cfg.Plans.Send(msg) {
		monitoring.Logf("engine: plan broadcast dropped")
	}
}

// Solution returns the current solution.
func (e *Engine) Solution() (Solution, error) {
	table, planTxt, agents, err := e.cfg.Session.Solution()
	if err != nil {
		return Solution{}, err
	}
	return Solution{RunID: e.RunID(), Agents: agents, Paths: table, Plan: string(planTxt)}, nil
}

// View is a drawable snapshot of the latest pass. It carries the solved
// paths when a solution is current, else single-agent routes once the
// scenario is written.
func (e *Engine) View() snapshot.View {
	st := e.State()
	v := snapshot.View{
		Title:  fmt.Sprintf("pass %d (%s)", st.Pass, e.Phase()),
		Grid:   st.Grid,
		Robots: st.Robots,
		Goals:  st.Goals,
	}
	if sol, err := e.Solution(); err == nil {
		v.Paths = sol.Paths
		v.Agents = sol.Agents
	} else if paths, agents, err := e.cfg.Session.Preview(); err == nil {
		v.Title += " preview"
		v.Paths = paths
		v.Agents = agents
	}
	return v
}
