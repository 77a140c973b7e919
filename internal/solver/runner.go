// Package solver runs the external MAPF solver on a written scenario. It
// does not supervise the process: one attempt, bounded by a timeout.
package solver

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/arena.grid/internal/monitoring"
)

var (
	// ErrTimeout is returned when the solver outlives Runner.Timeout.
	ErrTimeout = errors.New("solver timed out")
	// ErrFailed is returned when the solver exits unsuccessfully.
	ErrFailed = errors.New("solver failed")
)

// Request names the files of one solve.
type Request struct {
	MapFile      string
	ScenarioFile string
	PathsFile    string
	Agents       int
}

// Result describes a finished run.
type Result struct {
	Args     []string
	Output   string
	Duration time.Duration
}

// Runner expands an argv template and executes it. The placeholders {map},
// {scen}, {paths} and {agents} are replaced in every argument.
type Runner struct {
	Command []string
	Timeout time.Duration
	// Dir is the working directory; empty means the current one.
	Dir string
	// DryRun expands the command without running it.
	DryRun bool
}

// Expand fills the command template for req.
func (r *Runner) Expand(req Request) []string {
	rep := strings.NewReplacer(
		"{map}", req.MapFile,
		"{scen}", req.ScenarioFile,
		"{paths}", req.PathsFile,
		"{agents}", strconv.Itoa(req.Agents),
	)
	args := make([]string, len(r.Command))
	for i, a := range r.Command {
		args[i] = rep.Replace(a)
	}
	return args
}

// Run executes the solver and waits for it.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if len(r.Command) == 0 || r.Command[0] == "" {
		return Result{}, fmt.Errorf("%w: no solver command configured", ErrFailed)
	}
	if req.Agents <= 0 {
		return Result{}, fmt.Errorf("%w: scenario has no agents", ErrFailed)
	}
	args := r.Expand(req)
	res := Result{Args: args}
	if r.DryRun {
		monitoring.Logf("solver: [dry-run] would execute %s", strings.Join(args, " "))
		return res, nil
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.Dir
	// A killed solver can leave children holding the output pipe.
	cmd.WaitDelay = 2 * time.Second
	start := time.Now()
	out, err := cmd.CombinedOutput()
	res.Duration = time.Since(start)
	res.Output = string(out)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %v", ErrTimeout, r.Timeout)
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("%w: %s: %v", ErrFailed, args[0], err)
	}
	monitoring.Logf("solver: %d agents solved in %v", req.Agents, res.Duration.Round(time.Millisecond))
	return res, nil
}
