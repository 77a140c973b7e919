package occupancy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// ErrAmbiguous marks a robot whose markers do not agree on one cell.
var ErrAmbiguous = errors.New("ambiguous robot classification")

// Tolerance sets how strictly a robot's markers must agree on one cell.
type Tolerance int

const (
	// ToleranceAll requires every marker in the modal cell.
	ToleranceAll Tolerance = 0
	// ToleranceAllButOne allows a single stray marker.
	ToleranceAllButOne Tolerance = 1
	// ToleranceHalf requires at least half the markers in the modal cell.
	ToleranceHalf Tolerance = 2
)

// Valid reports whether t is one of the defined levels.
func (t Tolerance) Valid() bool { return t >= ToleranceAll && t <= ToleranceHalf }

// accepts applies the tolerance test to count markers out of n.
func (t Tolerance) accepts(count, n int) bool {
	if n == 0 {
		return false
	}
	switch t {
	case ToleranceAll:
		return count == n
	case ToleranceAllButOne:
		return count >= n-1
	case ToleranceHalf:
		return count*2 >= n
	}
	return false
}

// Body is one named marker set in the lab frame.
type Body struct {
	ID      string
	Markers []arena.Point
}

// Input is everything the pipeline needs for one pass.
type Input struct {
	Obstacles []Body
	Robots    []Body
	// Corners are optional calibration marker sets named by their
	// position suffix (TL, TR, BL, BR).
	Corners []Body
}

// Report collects the per-pass findings that are not fatal.
type Report struct {
	OutOfBoundsObstacles []string     `json:"out_of_bounds_obstacles,omitempty"`
	OutOfBoundsRobots    []string     `json:"out_of_bounds_robots,omitempty"`
	BadRobots            []string     `json:"bad_robots,omitempty"`
	Collisions           []arena.Cell `json:"collisions,omitempty"`
}

// Clean reports whether the pass found nothing worth mentioning.
func (r Report) Clean() bool {
	return len(r.OutOfBoundsObstacles) == 0 && len(r.OutOfBoundsRobots) == 0 &&
		len(r.BadRobots) == 0 && len(r.Collisions) == 0
}

// Errors expands the report into one error per finding, wrapping
// arena.ErrOutOfBounds or ErrAmbiguous so callers can use errors.Is.
func (r Report) Errors() []error {
	var errs []error
	for _, name := range r.OutOfBoundsObstacles {
		errs = append(errs, fmt.Errorf("obstacle %s: %w", name, arena.ErrOutOfBounds))
	}
	for _, id := range r.OutOfBoundsRobots {
		errs = append(errs, fmt.Errorf("robot %s: %w", id, arena.ErrOutOfBounds))
	}
	for _, id := range r.BadRobots {
		errs = append(errs, fmt.Errorf("robot %s: %w", id, ErrAmbiguous))
	}
	return errs
}

// LessID orders robot ids numerically when both parse as integers and
// lexically otherwise, so "2" sorts before "10".
func LessID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

// SortIDs sorts robot ids in place with LessID.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return LessID(ids[i], ids[j]) })
}

// SortedIDs returns the keys of m ordered with LessID.
func SortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}
