package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/broadcast"
	"github.com/banshee-data/arena.grid/internal/fsutil"
	"github.com/banshee-data/arena.grid/internal/mocap"
	"github.com/banshee-data/arena.grid/internal/occupancy"
	"github.com/banshee-data/arena.grid/internal/pathcost"
	"github.com/banshee-data/arena.grid/internal/scenario"
	"github.com/banshee-data/arena.grid/internal/solver"
	"github.com/banshee-data/arena.grid/internal/store"
	"github.com/banshee-data/arena.grid/internal/timeutil"
)

var files = scenario.Files{
	Map:      "data/map.map",
	Scenario: "data/scen.scen",
	Goals:    "data/goals.txt",
	Paths:    "data/paths.txt",
	Plan:     "data/plan.txt",
}

// stubSolver answers every request with a one-step path per agent, starting
// at the agent's scenario start cell.
type stubSolver struct {
	fs    *fsutil.MemoryFileSystem
	sess  *scenario.Session
	err   error
	calls int
}

func (s *stubSolver) Run(_ context.Context, req solver.Request) (solver.Result, error) {
	s.calls++
	if s.err != nil {
		return solver.Result{Output: "boom"}, s.err
	}
	var b strings.Builder
	for i, rec := range s.sess.Report().Records {
		fmt.Fprintf(&b, "agent %d: (%d,%d)->(%d,%d)->\n", i, rec.Start.Row, rec.Start.Col, rec.Goal.Row, rec.Goal.Col)
	}
	return solver.Result{}, s.fs.WriteFile(req.PathsFile, []byte(b.String()), 0o644)
}

type sink struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (s *sink) Send(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return true
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type fixture struct {
	mapper *arena.Mapper
	frames *mocap.Latest
	fs     *fsutil.MemoryFileSystem
	sess   *scenario.Session
	solver *stubSolver
	runs   *store.RunStore
	goals  *store.GoalStore
	poses  *sink
	plans  *sink
	clock  *timeutil.MockClock
	eng    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := arena.NewMapperForGrid(1, 5, 5, arena.RoundNearest)
	require.NoError(t, err)
	pipe, err := occupancy.NewPipeline(m, occupancy.Options{})
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mapper: m,
		frames: &mocap.Latest{},
		fs:     fsutil.NewMemoryFileSystem(),
		poses:  &sink{},
		plans:  &sink{},
		clock:  timeutil.NewMockClock(time.Unix(1700000000, 0)),
	}
	f.sess = scenario.NewSession(f.fs, files, pathcost.Eight, scenario.NewGoalAssigner(7))
	f.solver = &stubSolver{fs: f.fs, sess: f.sess}
	f.runs = store.NewRunStore(db, f.clock)
	f.goals = store.NewGoalStore(db, f.clock)
	f.eng, err = New(Config{
		Pipeline: pipe,
		Session:  f.sess,
		Frames:   f.frames,
		Solver:   f.solver,
		Clock:    f.clock,
		Interval: time.Second,
		Runs:     f.runs,
		Goals:    f.goals,
		Poses:    f.poses,
		Plans:    f.plans,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) vec(c arena.Cell) mocap.Vec3 {
	p := f.mapper.CellCenter(c)
	return mocap.Vec3{X: p.X, Y: p.Y}
}

// push publishes a frame with an obstacle on (2,2) and one robot per entry.
// Any extra marker sets are appended as they are.
func (f *fixture) push(seq uint64, robots map[string]arena.Cell, extra ...mocap.MarkerSet) {
	fr := mocap.Frame{
		Seq: seq,
		MarkerSets: []mocap.MarkerSet{
			{Name: "Obstacle1", Markers: []mocap.Vec3{f.vec(arena.Cell{Row: 2, Col: 2}), f.vec(arena.Cell{Row: 2, Col: 2})}},
		},
	}
	fr.MarkerSets = append(fr.MarkerSets, extra...)
	for id, c := range robots {
		fr.MarkerSets = append(fr.MarkerSets, mocap.MarkerSet{Name: "Robot-" + id, Markers: []mocap.Vec3{f.vec(c)}})
		fr.RigidBodies = append(fr.RigidBodies, mocap.RigidBody{ID: 100 + len(fr.RigidBodies) + 1, Rotation: mocap.Quat{W: 1}})
	}
	f.frames.HandleFrame(fr)
}

var twoRobots = map[string]arena.Cell{"1": {Row: 0, Col: 0}, "2": {Row: 4, Col: 4}}

func TestNew_RequiresParts(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEngine_StepWithoutFrame(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	assert.False(t, f.eng.Step())
	assert.Zero(t, f.eng.State().Pass)

	_, err := f.eng.Prepare(context.Background(), scenario.GoalsRandom)
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestEngine_StepClassifies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.push(1, twoRobots)
	require.True(t, f.eng.Step())

	st := f.eng.State()
	assert.Equal(t, uint64(1), st.Pass)
	assert.Equal(t, twoRobots, st.Robots)
	assert.Equal(t, arena.ObstacleReal, st.Grid.At(arena.Cell{Row: 2, Col: 2}))
	assert.Equal(t, uint64(1), f.eng.Frame().Seq)
	assert.Equal(t, 0, f.poses.count(), "no poses before a plan exists")
}

func TestEngine_PrepareSolveBroadcast(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.push(1, twoRobots)
	f.eng.Step()

	rep, err := f.eng.Prepare(ctx, scenario.GoalsRandom)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, rep.Agents)
	assert.True(t, f.fs.Exists(files.Map))
	assert.True(t, f.fs.Exists(files.Scenario))
	require.NotEmpty(t, f.eng.RunID())

	stored, err := f.goals.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.sess.Goals(), stored)

	// The next pass marks the goals without invalidating the scenario.
	f.eng.Step()
	assert.Equal(t, scenario.PhaseScenarioWritten, f.eng.Phase())
	st := f.eng.State()
	for id, goal := range st.Goals {
		if goal != st.Robots[id] {
			assert.Equal(t, arena.Goal, st.Grid.At(goal), "goal of %s", id)
		}
	}

	sol, err := f.eng.Solve(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, sol.Agents)
	assert.Len(t, sol.Paths, 2)
	assert.True(t, strings.HasPrefix(sol.Plan, "schedule:\n"))
	assert.Equal(t, f.eng.RunID(), sol.RunID)
	assert.Equal(t, scenario.PhaseSolutionAvailable, f.eng.Phase())

	run, err := f.runs.Get(ctx, sol.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSolved, run.Status)
	assert.Equal(t, sol.Plan, run.Plan)

	require.Equal(t, 1, f.plans.count())
	var pm broadcast.PlanMessage
	require.NoError(t, json.Unmarshal(f.plans.msgs[0], &pm))
	assert.Equal(t, sol.Agents, pm.Agents)

	// Execution: robots move, the plan stays and poses go out.
	f.push(2, map[string]arena.Cell{"1": {Row: 0, Col: 1}, "2": {Row: 4, Col: 4}})
	f.eng.Step()
	assert.Equal(t, scenario.PhaseSolutionAvailable, f.eng.Phase())
	require.Equal(t, 1, f.poses.count())
	var poses broadcast.PoseMessage
	require.NoError(t, json.Unmarshal(f.poses.msgs[0], &poses))
	assert.Equal(t, uint64(2), poses.Seq)
	assert.Len(t, poses.Poses, 2)

	got, err := f.eng.Solution()
	require.NoError(t, err)
	assert.Equal(t, sol.Paths, got.Paths)

	v := f.eng.View()
	assert.Len(t, v.Paths, 2)
	assert.Equal(t, sol.Agents, v.Agents)
}

func TestEngine_LayoutChangeInvalidates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.push(1, twoRobots)
	f.eng.Step()
	_, err := f.eng.Prepare(ctx, scenario.GoalsRandom)
	require.NoError(t, err)

	f.push(2, map[string]arena.Cell{"1": {Row: 1, Col: 0}, "2": {Row: 4, Col: 4}})
	f.eng.Step()
	assert.Equal(t, scenario.PhaseEmpty, f.eng.Phase())
	assert.Empty(t, f.eng.RunID())

	_, err = f.eng.Solve(ctx)
	assert.ErrorIs(t, err, scenario.ErrPhase)
	assert.Zero(t, f.solver.calls)
}

func TestEngine_NewObstacleDropsSolution(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.push(1, twoRobots)
	f.eng.Step()
	_, err := f.eng.Prepare(ctx, scenario.GoalsRandom)
	require.NoError(t, err)
	f.eng.Step()
	_, err = f.eng.Solve(ctx)
	require.NoError(t, err)
	require.Equal(t, scenario.PhaseSolutionAvailable, f.eng.Phase())

	box := mocap.MarkerSet{Name: "Obstacle2", Markers: []mocap.Vec3{
		f.vec(arena.Cell{Row: 0, Col: 3}), f.vec(arena.Cell{Row: 1, Col: 4}),
	}}
	f.push(2, twoRobots, box)
	require.True(t, f.eng.Step())
	require.True(t, f.eng.State().Grid.At(arena.Cell{Row: 0, Col: 3}).IsObstacle())

	assert.Equal(t, scenario.PhaseEmpty, f.eng.Phase())
	assert.Empty(t, f.eng.RunID())
	_, err = f.eng.Solution()
	assert.ErrorIs(t, err, scenario.ErrPhase)
	assert.Zero(t, f.poses.count(), "no poses for a dropped plan")
	assert.Empty(t, f.eng.View().Paths)

	// The obstacle stays; later passes neither revive the plan nor send poses.
	f.push(3, twoRobots, box)
	f.eng.Step()
	assert.Equal(t, scenario.PhaseEmpty, f.eng.Phase())
	assert.Zero(t, f.poses.count())
}

func TestEngine_RobotsMoveAfterSolve(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.push(1, twoRobots)
	f.eng.Step()
	_, err := f.eng.Prepare(ctx, scenario.GoalsRandom)
	require.NoError(t, err)
	sol, err := f.eng.Solve(ctx)
	require.NoError(t, err)

	route := []map[string]arena.Cell{
		{"1": {Row: 0, Col: 1}, "2": {Row: 4, Col: 3}},
		{"1": {Row: 1, Col: 1}, "2": {Row: 3, Col: 3}},
		{"1": {Row: 1, Col: 2}, "2": {Row: 3, Col: 2}},
	}
	for i, robots := range route {
		f.push(uint64(i+2), robots)
		require.True(t, f.eng.Step())
		assert.Equal(t, scenario.PhaseSolutionAvailable, f.eng.Phase(), "pass %d", i+2)
	}
	assert.Equal(t, len(route), f.poses.count())
	assert.Equal(t, sol.RunID, f.eng.RunID())
	got, err := f.eng.Solution()
	require.NoError(t, err)
	assert.Equal(t, sol.Paths, got.Paths)
}

func TestEngine_ViewPreview(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.push(1, twoRobots)
	f.eng.Step()
	assert.Empty(t, f.eng.View().Paths, "nothing to preview before a scenario")

	rep, err := f.eng.Prepare(context.Background(), scenario.GoalsRandom)
	require.NoError(t, err)
	v := f.eng.View()
	assert.Contains(t, v.Title, "preview")
	assert.Equal(t, rep.Agents, v.Agents)
	require.Len(t, v.Paths, 2)
	for i, rec := range rep.Records {
		cells, ok := v.Paths.Lookup(i)
		require.True(t, ok)
		assert.Equal(t, rec.Start, cells[0])
		assert.Equal(t, rec.Goal, cells[len(cells)-1])
	}

	_, err = f.eng.Solve(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, f.eng.View().Title, "preview")
}

func TestEngine_SolveFailureIsRecorded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.push(1, twoRobots)
	f.eng.Step()
	_, err := f.eng.Prepare(ctx, scenario.GoalsRandom)
	require.NoError(t, err)

	f.solver.err = solver.ErrTimeout
	_, err = f.eng.Solve(ctx)
	require.ErrorIs(t, err, solver.ErrTimeout)

	run, err := f.runs.Get(ctx, f.eng.RunID())
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Equal(t, 0, f.plans.count())
	assert.Equal(t, scenario.PhaseScenarioWritten, f.eng.Phase())
}

func TestEngine_SolveWithoutSolver(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.eng.cfg.Solver = nil
	_, err := f.eng.Solve(context.Background())
	assert.Error(t, err)
}

func TestEngine_Restore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	saved := map[string]arena.Cell{"1": {Row: 3, Col: 3}}
	require.NoError(t, f.goals.Save(ctx, saved))
	require.NoError(t, f.eng.Restore(ctx))

	f.push(1, twoRobots)
	f.eng.Step()
	st := f.eng.State()
	assert.Equal(t, saved, st.Goals)
	assert.Equal(t, arena.Goal, st.Grid.At(arena.Cell{Row: 3, Col: 3}))

	rep, err := f.eng.Prepare(ctx, scenario.GoalsKeep)
	require.NoError(t, err)
	assert.Empty(t, rep.Rejected)
	assert.Equal(t, arena.Cell{Row: 3, Col: 3}, f.sess.Goals()["1"])
}

func TestEngine_RunTicks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.push(1, twoRobots)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.eng.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.clock.Advance(time.Second)
		return f.eng.State().Pass > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}
