package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/engine"
	"github.com/banshee-data/arena.grid/internal/monitoring"
	"github.com/banshee-data/arena.grid/internal/occupancy"
	"github.com/banshee-data/arena.grid/internal/scenario"
	"github.com/banshee-data/arena.grid/internal/snapshot"
	"github.com/banshee-data/arena.grid/internal/solver"
	"github.com/banshee-data/arena.grid/internal/store"
	"github.com/banshee-data/arena.grid/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Arena is the part of the engine the HTTP surface drives.
type Arena interface {
	State() occupancy.State
	Phase() scenario.Phase
	RunID() string
	Prepare(ctx context.Context, mode scenario.GoalMode) (scenario.Report, error)
	Solve(ctx context.Context) (engine.Solution, error)
	Solution() (engine.Solution, error)
	View() snapshot.View
}

type Server struct {
	arena Arena
	runs  *store.RunStore
	db    *store.DB
}

// NewServer builds the HTTP surface. runs and db may be nil, in which case
// the run history and admin routes are not mounted.
func NewServer(a Arena, runs *store.RunStore, db *store.DB) *Server {
	return &Server{arena: a, runs: runs, db: db}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/grid", s.showGrid)
	mux.HandleFunc("/api/scenario", s.prepareScenario)
	mux.HandleFunc("/api/solve", s.solve)
	mux.HandleFunc("/api/paths", s.showPaths)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/grid.png", s.gridPNG)
	mux.HandleFunc("/grid.html", s.gridHTML)
	if s.runs != nil {
		mux.HandleFunc("/api/runs", s.listRuns)
	}
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// GridResponse is the body of GET /api/grid.
type GridResponse struct {
	Pass   uint64                `json:"pass"`
	Phase  string                `json:"phase"`
	RunID  string                `json:"run_id,omitempty"`
	Rows   int                   `json:"rows"`
	Cols   int                   `json:"cols"`
	Cells  [][]string            `json:"cells"`
	Robots map[string]arena.Cell `json:"robots"`
	Goals  map[string]arena.Cell `json:"goals"`
	Report occupancy.Report      `json:"report"`
	Errors []string              `json:"errors,omitempty"`
}

func (s *Server) showGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	st := s.arena.State()
	resp := GridResponse{
		Pass:   st.Pass,
		Phase:  s.arena.Phase().String(),
		RunID:  s.arena.RunID(),
		Robots: st.Robots,
		Goals:  st.Goals,
		Report: st.Report,
	}
	if st.Grid != nil {
		resp.Rows, resp.Cols = st.Grid.Rows(), st.Grid.Cols()
		for _, row := range st.Grid.Rows2D() {
			names := make([]string, len(row))
			for i, c := range row {
				names[i] = c.String()
			}
			resp.Cells = append(resp.Cells, names)
		}
	}
	if resp.Robots == nil {
		resp.Robots = map[string]arena.Cell{}
	}
	if resp.Goals == nil {
		resp.Goals = map[string]arena.Cell{}
	}
	for _, err := range st.Report.Errors() {
		resp.Errors = append(resp.Errors, err.Error())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ScenarioResponse is the body of POST /api/scenario.
type ScenarioResponse struct {
	RunID    string          `json:"run_id,omitempty"`
	Report   scenario.Report `json:"report"`
	Rejected []string        `json:"rejected,omitempty"`
}

func (s *Server) prepareScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	modeName := r.URL.Query().Get("goals")
	if modeName == "" {
		modeName = string(scenario.GoalsRandom)
	}
	mode, err := scenario.ParseGoalMode(modeName)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.arena.Prepare(r.Context(), mode)
	if err != nil {
		s.writeJSONError(w, statusFor(err), fmt.Sprintf("Failed to prepare scenario: %v", err))
		return
	}
	resp := ScenarioResponse{RunID: s.arena.RunID(), Report: rep}
	for _, rej := range rep.Rejected {
		resp.Rejected = append(resp.Rejected, rej.Error())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// SolveResponse is the body of POST /api/solve and GET /api/paths.
type SolveResponse struct {
	engine.Solution
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) solve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sol, err := s.arena.Solve(r.Context())
	if err != nil && len(sol.Agents) == 0 {
		s.writeJSONError(w, statusFor(err), fmt.Sprintf("Failed to solve: %v", err))
		return
	}
	resp := SolveResponse{Solution: sol}
	if err != nil {
		// Partial solution: some agents did not parse.
		resp.Errors = []string{err.Error()}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) showPaths(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sol, err := s.arena.Solution()
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, SolveResponse{Solution: sol})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		run, err := s.runs.Get(r.Context(), id)
		if err != nil {
			s.writeJSONError(w, statusFor(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, run)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	resp := versionResponse{Info: version.Current()}
	if s.db != nil {
		v, dirty, err := s.db.MigrateVersion()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("schema version: %v", err))
			return
		}
		resp.SchemaVersion = &v
		resp.SchemaDirty = dirty
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// versionResponse adds the run store's schema state when one is attached.
type versionResponse struct {
	version.Info
	SchemaVersion *uint `json:"schema_version,omitempty"`
	SchemaDirty   bool  `json:"schema_dirty,omitempty"`
}

func (s *Server) gridPNG(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "image/png", snapshot.WritePNG)
}

func (s *Server) gridHTML(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "text/html; charset=utf-8", snapshot.WriteHTML)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, contentType string, write func(w io.Writer, v snapshot.View) error) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	v := s.arena.View()
	if v.Grid == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, engine.ErrNoFrame.Error())
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, v); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render grid: %v", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(buf.Bytes())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoFrame):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrBusy), errors.Is(err, scenario.ErrPhase):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scenario.ErrNoFreeCell):
		return http.StatusUnprocessableEntity
	case errors.Is(err, solver.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, solver.ErrFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
