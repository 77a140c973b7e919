package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/scenario"
	"github.com/banshee-data/arena.grid/internal/timeutil"
)

// RunStatus is where a run is in its life.
type RunStatus string

const (
	RunWritten RunStatus = "written"
	RunSolved  RunStatus = "solved"
	RunFailed  RunStatus = "failed"
)

// RunAgent is one scenario line of a run. Cost is nil when no path existed
// at write time.
type RunAgent struct {
	Index   int        `json:"index"`
	RobotID string     `json:"robot_id"`
	Start   arena.Cell `json:"start"`
	Goal    arena.Cell `json:"goal"`
	Cost    *float64   `json:"cost,omitempty"`
}

// Run is one scenario handed to the solver.
type Run struct {
	ID           string        `json:"run_id"`
	CreatedAt    time.Time     `json:"created_at"`
	MapFile      string        `json:"map_file"`
	ScenarioFile string        `json:"scenario_file"`
	Rows         int           `json:"rows"`
	Cols         int           `json:"cols"`
	AgentCount   int           `json:"agent_count"`
	Status       RunStatus     `json:"status"`
	SolvedAt     time.Time     `json:"solved_at,omitzero"`
	SolveTime    time.Duration `json:"solve_time_ns,omitempty"`
	Plan         string        `json:"plan,omitempty"`
	Error        string        `json:"error,omitempty"`
	Agents       []RunAgent    `json:"agents,omitempty"`
}

// RunStore records runs.
type RunStore struct {
	db    *DB
	clock timeutil.Clock
}

func NewRunStore(db *DB, clock timeutil.Clock) *RunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunStore{db: db, clock: clock}
}

// Create stores a freshly written scenario and returns it with its new id.
// records are in scenario file order, so agent i is records[i].
func (s *RunStore) Create(ctx context.Context, scenarioFile string, records []scenario.Record) (Run, error) {
	run := Run{
		ID:           uuid.NewString(),
		CreatedAt:    s.clock.Now(),
		ScenarioFile: scenarioFile,
		AgentCount:   len(records),
		Status:       RunWritten,
	}
	for i, r := range records {
		if i == 0 {
			run.MapFile, run.Rows, run.Cols = r.MapFile, r.Rows, r.Cols
		}
		a := RunAgent{Index: i, RobotID: r.ID, Start: r.Start, Goal: r.Goal}
		if r.HasCost {
			cost := r.Cost
			a.Cost = &cost
		}
		run.Agents = append(run.Agents, a)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_unix_nanos, map_file, scenario_file,
			grid_rows, grid_cols, agent_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.MapFile, run.ScenarioFile,
		run.Rows, run.Cols, run.AgentCount, string(run.Status))
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	for _, a := range run.Agents {
		var cost sql.NullFloat64
		if a.Cost != nil {
			cost = sql.NullFloat64{Float64: *a.Cost, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_agents (run_id, agent_index, robot_id,
				start_row, start_col, goal_row, goal_col, cost)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, a.Index, a.RobotID, a.Start.Row, a.Start.Col, a.Goal.Row, a.Goal.Col, cost)
		if err != nil {
			return Run{}, fmt.Errorf("insert agent %d: %w", a.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Run{}, err
	}
	return run, nil
}

// MarkSolved attaches the translated plan to a run.
func (s *RunStore) MarkSolved(ctx context.Context, id, planText string, took time.Duration) error {
	return s.finish(ctx, id, RunSolved, sql.NullString{String: planText, Valid: true}, sql.NullString{}, took)
}

// MarkFailed records why the solve did not produce a plan.
func (s *RunStore) MarkFailed(ctx context.Context, id string, cause error, took time.Duration) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, id, RunFailed, sql.NullString{}, sql.NullString{String: msg, Valid: true}, took)
}

func (s *RunStore) finish(ctx context.Context, id string, status RunStatus, planText, errText sql.NullString, took time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, solved_unix_nanos = ?, solve_ms = ?,
			plan_text = ?, error_text = ?
		WHERE run_id = ?`,
		string(status), s.clock.Now().UnixNano(), took.Milliseconds(), planText, errText, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `run_id, created_unix_nanos, map_file, scenario_file, grid_rows,
	grid_cols, agent_count, status, solved_unix_nanos, solve_ms, plan_text, error_text`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                 Run
		created           int64
		status            string
		solved, solveMS   sql.NullInt64
		planText, errText sql.NullString
	)
	err := row.Scan(&r.ID, &created, &r.MapFile, &r.ScenarioFile, &r.Rows,
		&r.Cols, &r.AgentCount, &status, &solved, &solveMS, &planText, &errText)
	if err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.Unix(0, created)
	r.Status = RunStatus(status)
	if solved.Valid {
		r.SolvedAt = time.Unix(0, solved.Int64)
	}
	r.SolveTime = time.Duration(solveMS.Int64) * time.Millisecond
	r.Plan = planText.String
	r.Error = errText.String
	return r, nil
}

// Get loads a run with its agents.
func (s *RunStore) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_index, robot_id, start_row, start_col, goal_row, goal_col, cost
		FROM run_agents WHERE run_id = ? ORDER BY agent_index`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a RunAgent
		var cost sql.NullFloat64
		if err := rows.Scan(&a.Index, &a.RobotID, &a.Start.Row, &a.Start.Col, &a.Goal.Row, &a.Goal.Col, &cost); err != nil {
			return Run{}, err
		}
		if cost.Valid {
			c := cost.Float64
			a.Cost = &c
		}
		run.Agents = append(run.Agents, a)
	}
	return run, rows.Err()
}

// List returns up to limit runs, newest first, without their agents.
func (s *RunStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_unix_nanos DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
