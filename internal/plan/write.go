package plan

import (
	"bufio"
	"fmt"
	"io"

	"go.uber.org/multierr"
)

// Step is one waypoint of the motion plan, relative to the agent's start.
// X follows the grid column; Y points up, against the grid row.
type Step struct {
	X int `json:"x"`
	Y int `json:"y"`
	T int `json:"t"`
}

// Steps normalizes an agent's cells so the first step is (0,0) at t=0.
func Steps(p AgentPath) []Step {
	if len(p.Cells) == 0 {
		return nil
	}
	start := p.Cells[0]
	out := make([]Step, len(p.Cells))
	for i, c := range p.Cells {
		out[i] = Step{
			X: c.Col - start.Col,
			Y: -(c.Row - start.Row),
			T: i,
		}
	}
	return out
}

// WritePlan writes the schedule text for every agent in table order.
func WritePlan(w io.Writer, table PathTable) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("schedule:\n"); err != nil {
		return err
	}
	for _, p := range table {
		fmt.Fprintf(bw, "\tagent%d:\n", p.Agent)
		for _, s := range Steps(p) {
			fmt.Fprintf(bw, "\t\t- x: %d\n\t\t y: %d\n\t\t t: %d\n", s.X, s.Y, s.T)
		}
	}
	return bw.Flush()
}

// Translate parses solver output and renders the plan text in one go.
// Malformed agents are left out of both results and reported in err.
func Translate(r io.Reader, w io.Writer) (PathTable, error) {
	table, perr := Parse(r)
	if len(AgentErrors(perr)) != len(multierr.Errors(perr)) {
		return table, perr
	}
	if err := WritePlan(w, table); err != nil {
		return table, fmt.Errorf("write plan: %w", err)
	}
	return table, perr
}
