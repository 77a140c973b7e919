// Command scen-check re-validates a scenario file against its map: grid
// size, start and goal cells, and the recorded optimal path lengths.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"go.uber.org/multierr"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/pathcost"
	"github.com/banshee-data/arena.grid/internal/scenario"
)

// costTolerance absorbs the float formatting of the scenario file.
const costTolerance = 1e-4

func main() {
	mapPath := flag.String("map", "data/map.map", "Map file")
	scenPath := flag.String("scen", "data/scen.scen", "Scenario file")
	conn := flag.Int("connectivity", 8, "Grid connectivity used for costs (4 or 8)")
	flag.Parse()

	if !pathcost.Connectivity(*conn).Valid() {
		log.Fatalf("connectivity must be 4 or 8, got %d", *conn)
	}
	mf, err := os.Open(*mapPath)
	if err != nil {
		log.Fatal(err)
	}
	defer mf.Close()
	sf, err := os.Open(*scenPath)
	if err != nil {
		log.Fatal(err)
	}
	defer sf.Close()

	n, err := check(mf, sf, pathcost.Connectivity(*conn))
	for _, e := range multierr.Errors(err) {
		fmt.Println(e)
	}
	fmt.Printf("%d agents checked, %d problems\n", n, len(multierr.Errors(err)))
	if err != nil {
		os.Exit(1)
	}
}

// check returns how many records were read and every problem found.
func check(mapR, scenR io.Reader, conn pathcost.Connectivity) (int, error) {
	grid, err := scenario.ParseMap(mapR)
	if err != nil {
		return 0, fmt.Errorf("map: %w", err)
	}
	recs, errs := scenario.ParseScenario(scenR)
	if recs == nil && errs != nil {
		return 0, fmt.Errorf("scenario: %w", errs)
	}

	est := pathcost.New(grid, conn)
	for i, rec := range recs {
		if rec.Rows != grid.Rows() || rec.Cols != grid.Cols() {
			errs = multierr.Append(errs, fmt.Errorf("agent %d (%s): scenario grid %dx%d, map is %dx%d",
				i, rec.ID, rec.Rows, rec.Cols, grid.Rows(), grid.Cols()))
			continue
		}
		if err := checkCell(grid, "start", rec.Start); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("agent %d (%s): %w", i, rec.ID, err))
			continue
		}
		if err := checkCell(grid, "goal", rec.Goal); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("agent %d (%s): %w", i, rec.ID, err))
			continue
		}

		cost, err := est.OptimalLength(rec.Start, rec.Goal)
		switch {
		case errors.Is(err, pathcost.ErrNoPath):
			if rec.HasCost {
				errs = multierr.Append(errs, fmt.Errorf("agent %d (%s): recorded cost %g but goal is unreachable", i, rec.ID, rec.Cost))
			}
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("agent %d (%s): %w", i, rec.ID, err))
		case !rec.HasCost:
			errs = multierr.Append(errs, fmt.Errorf("agent %d (%s): no recorded cost, optimal is %g", i, rec.ID, cost))
		case math.Abs(cost-rec.Cost) > costTolerance:
			errs = multierr.Append(errs, fmt.Errorf("agent %d (%s): recorded cost %g, optimal is %g", i, rec.ID, rec.Cost, cost))
		}
	}
	return len(recs), errs
}

func checkCell(g *arena.Grid, what string, c arena.Cell) error {
	if !g.InRange(c) {
		return fmt.Errorf("%s %v: %w", what, c, arena.ErrOutOfBounds)
	}
	if s := g.At(c); !pathcost.Passable(s) {
		return fmt.Errorf("%s %v is %s", what, c, s)
	}
	return nil
}
