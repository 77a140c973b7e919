package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/engine"
	"github.com/banshee-data/arena.grid/internal/occupancy"
	"github.com/banshee-data/arena.grid/internal/plan"
	"github.com/banshee-data/arena.grid/internal/scenario"
	"github.com/banshee-data/arena.grid/internal/snapshot"
	"github.com/banshee-data/arena.grid/internal/solver"
	"github.com/banshee-data/arena.grid/internal/store"
	"github.com/banshee-data/arena.grid/internal/timeutil"
)

type fakeArena struct {
	state    occupancy.State
	phase    scenario.Phase
	runID    string
	report   scenario.Report
	prepErr  error
	mode     scenario.GoalMode
	sol      engine.Solution
	solveErr error
	solErr   error
}

func (f *fakeArena) State() occupancy.State { return f.state }
func (f *fakeArena) Phase() scenario.Phase  { return f.phase }
func (f *fakeArena) RunID() string          { return f.runID }

func (f *fakeArena) Prepare(_ context.Context, mode scenario.GoalMode) (scenario.Report, error) {
	f.mode = mode
	return f.report, f.prepErr
}

func (f *fakeArena) Solve(context.Context) (engine.Solution, error) { return f.sol, f.solveErr }
func (f *fakeArena) Solution() (engine.Solution, error)           { return f.sol, f.solErr }

func (f *fakeArena) View() snapshot.View {
	return snapshot.View{Title: "test", Grid: f.state.Grid, Robots: f.state.Robots, Goals: f.state.Goals}
}

func testState() occupancy.State {
	g := arena.NewGrid(3, 4)
	g.Set(arena.Cell{Row: 1, Col: 1}, arena.ObstacleReal)
	g.Set(arena.Cell{Row: 0, Col: 0}, arena.RobotFull)
	g.Set(arena.Cell{Row: 2, Col: 3}, arena.Goal)
	return occupancy.State{
		Pass:   7,
		Grid:   g,
		Robots: map[string]arena.Cell{"1": {Row: 0, Col: 0}},
		Goals:  map[string]arena.Cell{"1": {Row: 2, Col: 3}},
	}
}

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux, err := s.ServeMux()
	require.NoError(t, err)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestShowGrid(t *testing.T) {
	t.Parallel()
	f := &fakeArena{state: testState(), phase: scenario.PhaseScenarioWritten, runID: "r1"}
	w := serve(t, NewServer(f, nil, nil), http.MethodGet, "/api/grid")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got GridResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, uint64(7), got.Pass)
	assert.Equal(t, "scenario_written", got.Phase)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, 3, got.Rows)
	assert.Equal(t, 4, got.Cols)
	require.Len(t, got.Cells, 3)
	assert.Equal(t, arena.ObstacleReal.String(), got.Cells[1][1])
	assert.Equal(t, arena.Goal.String(), got.Cells[2][3])
	if diff := cmp.Diff(map[string]arena.Cell{"1": {Row: 0, Col: 0}}, got.Robots); diff != "" {
		t.Errorf("robots mismatch (-want +got):\n%s", diff)
	}
}

func TestShowGrid_NoPassYet(t *testing.T) {
	t.Parallel()
	w := serve(t, NewServer(&fakeArena{}, nil, nil), http.MethodGet, "/api/grid")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"robots":{}`)
}

func TestShowGrid_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	w := serve(t, NewServer(&fakeArena{}, nil, nil), http.MethodPost, "/api/grid")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPrepareScenario(t *testing.T) {
	t.Parallel()
	f := &fakeArena{
		runID: "r2",
		report: scenario.Report{
			Agents:   []string{"1", "2"},
			Rejected: []*scenario.GoalError{{RobotID: "2", Cell: arena.Cell{Row: 1, Col: 1}, Reason: "occupied"}},
		},
	}
	w := serve(t, NewServer(f, nil, nil), http.MethodPost, "/api/scenario?goals=keep")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scenario.GoalsKeep, f.mode)

	var got ScenarioResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "r2", got.RunID)
	assert.Equal(t, []string{"1", "2"}, got.Report.Agents)
	assert.Len(t, got.Rejected, 1)
}

func TestPrepareScenario_DefaultsToRandom(t *testing.T) {
	t.Parallel()
	f := &fakeArena{}
	w := serve(t, NewServer(f, nil, nil), http.MethodPost, "/api/scenario")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scenario.GoalsRandom, f.mode)
}

func TestPrepareScenario_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"bad mode", "/api/scenario?goals=bogus", nil, http.StatusBadRequest},
		{"no frame", "/api/scenario", engine.ErrNoFrame, http.StatusServiceUnavailable},
		{"full grid", "/api/scenario", fmt.Errorf("robot 3: %w", scenario.ErrNoFreeCell), http.StatusUnprocessableEntity},
		{"other", "/api/scenario", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := serve(t, NewServer(&fakeArena{prepErr: tt.err}, nil, nil), http.MethodPost, tt.target)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestSolve(t *testing.T) {
	t.Parallel()
	f := &fakeArena{sol: engine.Solution{
		RunID:  "r3",
		Agents: []string{"1"},
		Paths:  plan.PathTable{{Agent: 0, Cells: []arena.Cell{{Row: 0, Col: 0}, {Row: 0, Col: 1}}}},
		Plan:   "1 0 0 0\n",
	}}
	w := serve(t, NewServer(f, nil, nil), http.MethodPost, "/api/solve")
	require.Equal(t, http.StatusOK, w.Code)

	var got SolveResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "r3", got.RunID)
	assert.Equal(t, f.sol.Paths, got.Paths)
	assert.Empty(t, got.Errors)
}

func TestSolve_PartialSolution(t *testing.T) {
	t.Parallel()
	f := &fakeArena{
		sol:      engine.Solution{Agents: []string{"1", "2"}, Paths: plan.PathTable{{Agent: 0}}},
		solveErr: errors.New("agent 1: bad waypoint"),
	}
	w := serve(t, NewServer(f, nil, nil), http.MethodPost, "/api/solve")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bad waypoint")
}

func TestSolve_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"busy", engine.ErrBusy, http.StatusConflict},
		{"phase", fmt.Errorf("solve: %w", scenario.ErrPhase), http.StatusConflict},
		{"timeout", solver.ErrTimeout, http.StatusGatewayTimeout},
		{"failed", fmt.Errorf("exit 1: %w", solver.ErrFailed), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := serve(t, NewServer(&fakeArena{solveErr: tt.err}, nil, nil), http.MethodPost, "/api/solve")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestShowPaths_NoSolution(t *testing.T) {
	t.Parallel()
	f := &fakeArena{solErr: scenario.ErrPhase}
	w := serve(t, NewServer(f, nil, nil), http.MethodGet, "/api/paths")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGridImages(t *testing.T) {
	t.Parallel()
	f := &fakeArena{state: testState()}
	s := NewServer(f, nil, nil)

	w := serve(t, s, http.MethodGet, "/grid.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))

	w = serve(t, s, http.MethodGet, "/grid.html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<html")
}

func TestGridImages_NoGrid(t *testing.T) {
	t.Parallel()
	w := serve(t, NewServer(&fakeArena{}, nil, nil), http.MethodGet, "/grid.png")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRuns_NotMountedWithoutStore(t *testing.T) {
	t.Parallel()
	w := serve(t, NewServer(&fakeArena{}, nil, nil), http.MethodGet, "/api/runs")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuns(t *testing.T) {
	t.Parallel()
	db, err := store.Open(filepath.Join(t.TempDir(), "arena.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	runs := store.NewRunStore(db, clock)
	recs := []scenario.Record{{ID: "1", MapFile: "arena.map", Rows: 3, Cols: 4, Goal: arena.Cell{Row: 2, Col: 3}, Cost: 5, HasCost: true}}
	first, err := runs.Create(context.Background(), "arena.scen", recs)
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := runs.Create(context.Background(), "arena.scen", recs)
	require.NoError(t, err)

	s := NewServer(&fakeArena{}, runs, db)

	w := serve(t, s, http.MethodGet, "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var list []store.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	w = serve(t, s, http.MethodGet, "/api/runs?id="+first.ID)
	require.Equal(t, http.StatusOK, w.Code)
	var one store.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&one))
	assert.Equal(t, first.ID, one.ID)
	require.Len(t, one.Agents, 1)

	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/api/runs?id=missing").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodGet, "/api/runs?limit=0").Code)
}

func TestShowVersion(t *testing.T) {
	t.Parallel()
	w := serve(t, NewServer(&fakeArena{}, nil, nil), http.MethodGet, "/api/version")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"dev"`)
	assert.NotContains(t, w.Body.String(), "schema_version")
}

func TestShowVersion_SchemaVersion(t *testing.T) {
	t.Parallel()
	db, err := store.Open(filepath.Join(t.TempDir(), "arena.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w := serve(t, NewServer(&fakeArena{}, nil, db), http.MethodGet, "/api/version")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "dev", got["version"])
	assert.Equal(t, float64(2), got["schema_version"])
	assert.NotContains(t, got, "schema_dirty")
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	t.Parallel()
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestStatusCodeColor(t *testing.T) {
	t.Parallel()
	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(500), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
