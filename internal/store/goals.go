package store

import (
	"context"
	"fmt"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/timeutil"
)

// GoalStore persists the goal set in force so a restart can keep it.
type GoalStore struct {
	db    *DB
	clock timeutil.Clock
}

func NewGoalStore(db *DB, clock timeutil.Clock) *GoalStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &GoalStore{db: db, clock: clock}
}

// Save replaces the stored goal set.
func (s *GoalStore) Save(ctx context.Context, goals map[string]arena.Cell) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM goals`); err != nil {
		return fmt.Errorf("clear goals: %w", err)
	}
	now := s.clock.Now().UnixNano()
	for id, c := range goals {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO goals (robot_id, goal_row, goal_col, updated_unix_nanos) VALUES (?, ?, ?, ?)`,
			id, c.Row, c.Col, now)
		if err != nil {
			return fmt.Errorf("save goal for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Load returns the stored goal set; it is empty, not nil, when nothing
// was saved.
func (s *GoalStore) Load(ctx context.Context) (map[string]arena.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT robot_id, goal_row, goal_col FROM goals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	goals := make(map[string]arena.Cell)
	for rows.Next() {
		var id string
		var c arena.Cell
		if err := rows.Scan(&id, &c.Row, &c.Col); err != nil {
			return nil, err
		}
		goals[id] = c
	}
	return goals, rows.Err()
}
