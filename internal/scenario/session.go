package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/fsutil"
	"github.com/banshee-data/arena.grid/internal/monitoring"
	"github.com/banshee-data/arena.grid/internal/occupancy"
	"github.com/banshee-data/arena.grid/internal/pathcost"
	"github.com/banshee-data/arena.grid/internal/plan"
)

// ErrPhase is returned when an operation runs out of order.
var ErrPhase = errors.New("wrong scenario phase")

// Phase is a step of the planning state machine.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseGoalsAssigned
	PhaseMapWritten
	PhaseScenarioWritten
	PhaseSolutionAvailable
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseGoalsAssigned:
		return "goals_assigned"
	case PhaseMapWritten:
		return "map_written"
	case PhaseScenarioWritten:
		return "scenario_written"
	case PhaseSolutionAvailable:
		return "solution_available"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Files names the files a session reads and writes.
type Files struct {
	Map      string
	Scenario string
	Goals    string
	Paths    string
	Plan     string
}

// Report describes one scenario build.
type Report struct {
	// Agents are the robot ids written to the scenario, in file order.
	// The solver's agent i is Agents[i].
	Agents []string `json:"agents"`
	// Excluded robots were bad or out of bounds this pass.
	Excluded []string `json:"excluded,omitempty"`
	// Unreachable robots were written without a cost.
	Unreachable []string     `json:"unreachable,omitempty"`
	Rejected    []*GoalError `json:"-"`
	Records     []Record     `json:"-"`
}

// Session carries one planning instance through its phases. It is safe
// for concurrent use.
type Session struct {
	fs       fsutil.FileSystem
	files    Files
	conn     pathcost.Connectivity
	assigner *GoalAssigner

	mu      sync.Mutex
	phase   Phase
	state   occupancy.State
	goals   map[string]arena.Cell
	report  Report
	paths   plan.PathTable
	planTxt []byte
}

// NewSession returns a session in PhaseEmpty.
func NewSession(fs fsutil.FileSystem, files Files, conn pathcost.Connectivity, assigner *GoalAssigner) *Session {
	return &Session{fs: fs, files: files, conn: conn, assigner: assigner}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Files() Files { return s.files }

// Goals returns a copy of the assigned goals.
func (s *Session) Goals() map[string]arena.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]arena.Cell, len(s.goals))
	for k, v := range s.goals {
		out[k] = v
	}
	return out
}

// AssignGoals chooses goals for the robots active in st. It may run from
// any phase and always lands in PhaseGoalsAssigned, discarding any
// previous solution.
func (s *Session) AssignGoals(st occupancy.State, mode GoalMode) (Assignment, error) {
	requested, err := s.requestedGoals(st, mode)
	if err != nil {
		return Assignment{}, err
	}

	est := pathcost.New(st.Grid, s.conn)

	s.mu.Lock()
	defer s.mu.Unlock()
	asg, err := s.assigner.Assign(st, requested, est)
	if err != nil {
		return asg, err
	}
	for _, rej := range asg.Rejected {
		monitoring.Logf("scenario: %v; picking a random goal", rej)
	}
	s.state = st
	s.goals = asg.Goals
	s.paths = nil
	s.planTxt = nil
	s.phase = PhaseGoalsAssigned
	return asg, nil
}

func (s *Session) requestedGoals(st occupancy.State, mode GoalMode) (map[string]arena.Cell, error) {
	switch mode {
	case GoalsRandom:
		return nil, nil
	case GoalsKeep:
		return st.Goals, nil
	case GoalsScenario:
		data, err := s.fs.ReadFile(s.files.Scenario)
		if err != nil {
			return nil, fmt.Errorf("read scenario: %w", err)
		}
		recs, perr := ParseScenario(bytes.NewReader(data))
		if perr != nil && recs == nil {
			return nil, perr
		}
		if perr != nil {
			monitoring.Logf("scenario: replay %s: %v", s.files.Scenario, perr)
		}
		return GoalsFromRecords(recs), nil
	case GoalsFile:
		data, err := s.fs.ReadFile(s.files.Goals)
		if err != nil {
			return nil, fmt.Errorf("read goals: %w", err)
		}
		goals, perr := ReadGoalFile(bytes.NewReader(data))
		if perr != nil {
			monitoring.Logf("scenario: goal file %s: %v", s.files.Goals, perr)
		}
		return goals, nil
	}
	return nil, fmt.Errorf("unknown goal mode %q", mode)
}

// WriteMap writes the map file for the grid goals were assigned on.
func (s *Session) WriteMap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase < PhaseGoalsAssigned {
		return fmt.Errorf("write map in phase %s: %w", s.phase, ErrPhase)
	}
	var buf bytes.Buffer
	if err := WriteMap(&buf, s.state.Grid); err != nil {
		return err
	}
	if err := s.fs.WriteFile(s.files.Map, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write map %s: %w", s.files.Map, err)
	}
	s.phase = PhaseMapWritten
	return nil
}

// WriteScenario writes one record per active robot, sorted by id. Bad and
// out-of-bounds robots are left out and listed in Report.Excluded.
func (s *Session) WriteScenario() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase < PhaseMapWritten {
		return Report{}, fmt.Errorf("write scenario in phase %s: %w", s.phase, ErrPhase)
	}

	st := s.state
	est := pathcost.New(st.Grid, s.conn)
	rep := Report{}
	rep.Excluded = append(rep.Excluded, st.Report.BadRobots...)
	rep.Excluded = append(rep.Excluded, st.Report.OutOfBoundsRobots...)
	occupancy.SortIDs(rep.Excluded)

	for _, id := range occupancy.SortedIDs(st.Robots) {
		goal, ok := s.goals[id]
		if !ok {
			return Report{}, fmt.Errorf("robot %s has no goal: %w", id, ErrPhase)
		}
		rec := Record{
			ID:      id,
			MapFile: s.files.Map,
			Rows:    st.Grid.Rows(),
			Cols:    st.Grid.Cols(),
			Start:   st.Robots[id],
			Goal:    goal,
		}
		cost, err := est.OptimalLength(rec.Start, goal)
		switch {
		case err == nil:
			rec.Cost, rec.HasCost = cost, true
		case errors.Is(err, pathcost.ErrNoPath):
			rep.Unreachable = append(rep.Unreachable, id)
		default:
			return Report{}, fmt.Errorf("robot %s: %w", id, err)
		}
		rep.Agents = append(rep.Agents, id)
		rep.Records = append(rep.Records, rec)
	}

	var buf bytes.Buffer
	if err := WriteScenario(&buf, rep.Records); err != nil {
		return Report{}, err
	}
	if err := s.fs.WriteFile(s.files.Scenario, buf.Bytes(), 0o644); err != nil {
		return Report{}, fmt.Errorf("write scenario %s: %w", s.files.Scenario, err)
	}
	s.report = rep
	s.phase = PhaseScenarioWritten
	return rep, nil
}

// Prepare runs AssignGoals, WriteMap and WriteScenario in order.
func (s *Session) Prepare(st occupancy.State, mode GoalMode) (Report, error) {
	asg, err := s.AssignGoals(st, mode)
	if err != nil {
		return Report{}, err
	}
	if err := s.WriteMap(); err != nil {
		return Report{}, err
	}
	rep, err := s.WriteScenario()
	rep.Rejected = asg.Rejected
	return rep, err
}

// AcceptSolution reads the solver's paths file, writes the plan file and
// moves to PhaseSolutionAvailable. Agents that fail to parse are reported
// in the returned error but do not block the others.
func (s *Session) AcceptSolution() (plan.PathTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseScenarioWritten && s.phase != PhaseSolutionAvailable {
		return nil, fmt.Errorf("accept solution in phase %s: %w", s.phase, ErrPhase)
	}
	data, err := s.fs.ReadFile(s.files.Paths)
	if err != nil {
		return nil, fmt.Errorf("read paths %s: %w", s.files.Paths, err)
	}

	var out bytes.Buffer
	table, perr := plan.Translate(bytes.NewReader(data), &out)
	if len(table) == 0 && perr != nil {
		return nil, perr
	}
	if err := s.fs.WriteFile(s.files.Plan, out.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write plan %s: %w", s.files.Plan, err)
	}
	s.paths = table
	s.planTxt = out.Bytes()
	s.phase = PhaseSolutionAvailable
	return table, perr
}

// Solution returns the path table, the plan text and the robot id of each
// solver agent. It fails with ErrPhase unless a solution is current.
func (s *Session) Solution() (plan.PathTable, []byte, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSolutionAvailable {
		return nil, nil, nil, fmt.Errorf("no current solution in phase %s: %w", s.phase, ErrPhase)
	}
	return s.paths, s.planTxt, append([]string(nil), s.report.Agents...), nil
}

// Preview routes each written agent to its goal on its own, ignoring the
// other robots. It is what the view shows between WriteScenario and a
// solver run. Unreachable agents are left out of the table.
func (s *Session) Preview() (plan.PathTable, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseScenarioWritten {
		return nil, nil, fmt.Errorf("preview in phase %s: %w", s.phase, ErrPhase)
	}
	est := pathcost.New(s.state.Grid, s.conn)
	var table plan.PathTable
	for i, rec := range s.report.Records {
		route, err := est.Route(rec.Start, rec.Goal)
		switch {
		case err == nil:
			table = append(table, plan.AgentPath{Agent: i, Cells: route})
		case errors.Is(err, pathcost.ErrNoPath):
		default:
			return nil, nil, fmt.Errorf("robot %s: %w", rec.ID, err)
		}
	}
	return table, append([]string(nil), s.report.Agents...), nil
}

// Report returns the last scenario report.
func (s *Session) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Observe compares a fresh pass with the layout the scenario was built
// from. Before a solution exists any change in obstacles or robot cells
// drops the session back to PhaseEmpty, so goals must be re-validated with
// AssignGoals before the files are written again. Once solved, robots are
// expected to move and only the blocked cells are compared. It reports
// whether the session was invalidated.
func (s *Session) Observe(st occupancy.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEmpty {
		return false
	}
	key := normalize
	if s.phase == PhaseSolutionAvailable {
		key = blocked
	}
	if sameLayout(s.state.Grid, st.Grid, key) {
		return false
	}
	monitoring.Logf("scenario: layout changed at pass %d, %s is stale", st.Pass, s.phase)
	s.phase = PhaseEmpty
	s.paths = nil
	s.planTxt = nil
	return true
}

// sameLayout reports whether key maps every cell of a and b to the same value.
func sameLayout(a, b *arena.Grid, key func(arena.CellState) arena.CellState) bool {
	if a == nil || b == nil || a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return false
	}
	for r := 0; r < a.Rows(); r++ {
		for c := 0; c < a.Cols(); c++ {
			cell := arena.Cell{Row: r, Col: c}
			if key(a.At(cell)) != key(b.At(cell)) {
				return false
			}
		}
	}
	return true
}

// blocked collapses a cell to obstacle or empty. A robot standing on an
// obstacle cell reads as Collision and still counts as blocked.
func blocked(s arena.CellState) arena.CellState {
	if s.IsObstacle() || s == arena.Collision {
		return arena.ObstacleReal
	}
	return arena.Empty
}

func normalize(s arena.CellState) arena.CellState {
	if s == arena.Goal {
		return arena.Empty
	}
	return s
}
