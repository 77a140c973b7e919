// Package plan reads the solver's per-agent path output and writes the
// agent-relative motion plan consumed by the robots.
package plan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// ErrMalformedLine is wrapped by every AgentError.
var ErrMalformedLine = errors.New("malformed solver line")

// AgentError reports one solver line that could not be parsed. Agent is
// -1 when the line did not get as far as naming its agent.
type AgentError struct {
	Line  int
	Agent int
	Err   error
}

func (e *AgentError) Error() string {
	if e.Agent < 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d (agent %d): %v", e.Line, e.Agent, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// AgentPath is one agent's waypoints in grid (row, col) order.
type AgentPath struct {
	Agent int          `json:"agent"`
	Cells []arena.Cell `json:"cells"`
}

// PathTable holds every parsed agent in file order.
type PathTable []AgentPath

// Lookup returns the waypoints of agent.
func (t PathTable) Lookup(agent int) ([]arena.Cell, bool) {
	for _, p := range t {
		if p.Agent == agent {
			return p.Cells, true
		}
	}
	return nil, false
}

// Parse reads solver output of the form
//
//	agent <id>: (r1,c1)->(r2,c2)->...
//
// Blank lines are ignored. Trailing "->" separators and empty segments
// are tolerated. A malformed line is skipped and reported as an
// *AgentError in the returned error (combined with multierr); the table
// still holds every agent that parsed. Read failures are returned as-is.
func Parse(r io.Reader) (PathTable, error) {
	var (
		table PathTable
		errs  error
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p, err := parseLine(line)
		if err != nil {
			errs = multierr.Append(errs, &AgentError{Line: lineNo, Agent: p.Agent, Err: err})
			continue
		}
		table = append(table, p)
	}
	if err := sc.Err(); err != nil {
		return table, fmt.Errorf("read solver output: %w", err)
	}
	return table, errs
}

func parseLine(line string) (AgentPath, error) {
	p := AgentPath{Agent: -1}

	head, body, ok := strings.Cut(line, ":")
	if !ok {
		return p, fmt.Errorf("%w: missing ':'", ErrMalformedLine)
	}
	fields := strings.Fields(head)
	if len(fields) != 2 || fields[0] != "agent" {
		return p, fmt.Errorf("%w: want \"agent <id>\", got %q", ErrMalformedLine, head)
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 {
		return p, fmt.Errorf("%w: bad agent id %q", ErrMalformedLine, fields[1])
	}
	p.Agent = id

	for i, seg := range strings.Split(body, "->") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		c, err := parseCell(seg)
		if err != nil {
			return p, fmt.Errorf("%w: step %d: %v", ErrMalformedLine, i, err)
		}
		p.Cells = append(p.Cells, c)
	}
	if len(p.Cells) == 0 {
		return p, fmt.Errorf("%w: no waypoints", ErrMalformedLine)
	}
	return p, nil
}

func parseCell(seg string) (arena.Cell, error) {
	if !strings.HasPrefix(seg, "(") || !strings.HasSuffix(seg, ")") {
		return arena.Cell{}, fmt.Errorf("want (row,col), got %q", seg)
	}
	rs, cs, ok := strings.Cut(seg[1:len(seg)-1], ",")
	if !ok {
		return arena.Cell{}, fmt.Errorf("want (row,col), got %q", seg)
	}
	row, err := strconv.Atoi(strings.TrimSpace(rs))
	if err != nil {
		return arena.Cell{}, fmt.Errorf("row in %q: %w", seg, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(cs))
	if err != nil {
		return arena.Cell{}, fmt.Errorf("col in %q: %w", seg, err)
	}
	return arena.Cell{Row: row, Col: col}, nil
}

// AgentErrors unpacks the error returned by Parse.
func AgentErrors(err error) []*AgentError {
	var out []*AgentError
	for _, e := range multierr.Errors(err) {
		var ae *AgentError
		if errors.As(e, &ae) {
			out = append(out, ae)
		}
	}
	return out
}
