package scenario

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/occupancy"
	"github.com/banshee-data/arena.grid/internal/pathcost"
)

var (
	// ErrInvalidGoal is wrapped by every GoalError.
	ErrInvalidGoal = errors.New("invalid goal")
	// ErrNoFreeCell means random assignment ran out of candidate cells.
	ErrNoFreeCell = errors.New("no free cell left for a goal")
)

// GoalError explains why a requested goal was rejected.
type GoalError struct {
	RobotID string
	Cell    arena.Cell
	Reason  string
}

func (e *GoalError) Error() string {
	return fmt.Sprintf("robot %s goal %v: %s", e.RobotID, e.Cell, e.Reason)
}

func (e *GoalError) Unwrap() error { return ErrInvalidGoal }

// GoalMode selects where goals come from.
type GoalMode string

const (
	// GoalsRandom picks a fresh random goal for every robot.
	GoalsRandom GoalMode = "random"
	// GoalsKeep reuses the current goals and re-picks the invalid ones.
	GoalsKeep GoalMode = "keep"
	// GoalsScenario replays the goals of the last scenario file.
	GoalsScenario GoalMode = "scen"
	// GoalsFile reads the goal-location file.
	GoalsFile GoalMode = "file"
)

// ParseGoalMode accepts the GoalMode strings; empty means random.
func ParseGoalMode(s string) (GoalMode, error) {
	switch m := GoalMode(s); m {
	case "":
		return GoalsRandom, nil
	case GoalsRandom, GoalsKeep, GoalsScenario, GoalsFile:
		return m, nil
	}
	return "", fmt.Errorf("unknown goal mode %q", s)
}

// ReadGoalFile parses "id col row" lines separated by any whitespace.
// Extra fields are ignored. Lines that do not parse are skipped and
// reported in the returned error; later duplicates of an id win.
func ReadGoalFile(r io.Reader) (map[string]arena.Cell, error) {
	goals := make(map[string]arena.Cell)
	var errs error
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		f := strings.Fields(sc.Text())
		if len(f) == 0 || strings.HasPrefix(f[0], "#") {
			continue
		}
		if len(f) < 3 {
			errs = multierr.Append(errs, fmt.Errorf("goal line %d: want id col row, got %d fields", lineNo, len(f)))
			continue
		}
		col, cerr := strconv.Atoi(f[1])
		row, rerr := strconv.Atoi(f[2])
		if err := multierr.Combine(cerr, rerr); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("goal line %d: %w", lineNo, err))
			continue
		}
		goals[f[0]] = arena.Cell{Row: row, Col: col}
	}
	if err := sc.Err(); err != nil {
		return goals, err
	}
	return goals, errs
}

// DefaultPickAttempts bounds how often a random goal is re-drawn when the
// drawn cell cannot be reached.
const DefaultPickAttempts = 8

// GoalAssigner validates requested goals and draws random ones.
type GoalAssigner struct {
	rng      *rand.Rand
	attempts int
}

// NewGoalAssigner seeds the random source; equal seeds give equal picks.
func NewGoalAssigner(seed int64) *GoalAssigner {
	return &GoalAssigner{rng: rand.New(rand.NewSource(seed)), attempts: DefaultPickAttempts}
}

// Assignment is the outcome of GoalAssigner.Assign.
type Assignment struct {
	Goals map[string]arena.Cell
	// Rejected lists requested goals that failed validation; those robots
	// were given random goals instead.
	Rejected []*GoalError
	// Unreachable robots kept a goal with no path from their start.
	Unreachable []string
}

// Assign gives every robot in st.Robots a goal. Requested goals are
// validated against the grid and each other; anything missing or invalid
// is replaced by a random free cell. Goals of robots that are not active
// this pass but still present in st.Goals are carried over untouched.
func (a *GoalAssigner) Assign(st occupancy.State, requested map[string]arena.Cell, est *pathcost.Estimator) (Assignment, error) {
	out := Assignment{Goals: make(map[string]arena.Cell, len(st.Goals))}
	used := make(map[arena.Cell]bool)

	for id, c := range st.Goals {
		if _, active := st.Robots[id]; !active {
			out.Goals[id] = c
			used[c] = true
		}
	}

	ids := occupancy.SortedIDs(st.Robots)
	var pending []string
	for _, id := range ids {
		c, ok := requested[id]
		if !ok {
			pending = append(pending, id)
			continue
		}
		if gerr := validateGoal(st, id, c, used); gerr != nil {
			out.Rejected = append(out.Rejected, gerr)
			pending = append(pending, id)
			continue
		}
		out.Goals[id] = c
		used[c] = true
		if _, err := est.OptimalLength(st.Robots[id], c); errors.Is(err, pathcost.ErrNoPath) {
			out.Unreachable = append(out.Unreachable, id)
		}
	}

	for _, id := range pending {
		c, reachable, err := a.pick(st, st.Robots[id], used, est)
		if err != nil {
			return out, fmt.Errorf("robot %s: %w", id, err)
		}
		out.Goals[id] = c
		used[c] = true
		if !reachable {
			out.Unreachable = append(out.Unreachable, id)
		}
	}
	occupancy.SortIDs(out.Unreachable)
	return out, nil
}

func validateGoal(st occupancy.State, id string, c arena.Cell, used map[arena.Cell]bool) *GoalError {
	switch {
	case !st.Grid.InRange(c):
		return &GoalError{RobotID: id, Cell: c, Reason: "outside the grid"}
	case !pathcost.Passable(st.Grid.At(c)):
		return &GoalError{RobotID: id, Cell: c, Reason: "cell is " + st.Grid.At(c).String()}
	case used[c]:
		return &GoalError{RobotID: id, Cell: c, Reason: "already another robot's goal"}
	}
	return nil
}

// pick draws uniformly among free cells, re-drawing unreachable ones a
// bounded number of times. The last draw is returned even if unreachable.
func (a *GoalAssigner) pick(st occupancy.State, start arena.Cell, used map[arena.Cell]bool, est *pathcost.Estimator) (arena.Cell, bool, error) {
	var free []arena.Cell
	for r := 0; r < st.Grid.Rows(); r++ {
		for c := 0; c < st.Grid.Cols(); c++ {
			cell := arena.Cell{Row: r, Col: c}
			if pathcost.Passable(st.Grid.At(cell)) && !used[cell] {
				free = append(free, cell)
			}
		}
	}
	if len(free) == 0 {
		return arena.Cell{}, false, ErrNoFreeCell
	}

	var last arena.Cell
	for i := 0; i < a.attempts && len(free) > 0; i++ {
		k := a.rng.Intn(len(free))
		last = free[k]
		if _, err := est.OptimalLength(start, last); err == nil {
			return last, true, nil
		}
		free[k] = free[len(free)-1]
		free = free[:len(free)-1]
	}
	return last, false, nil
}
