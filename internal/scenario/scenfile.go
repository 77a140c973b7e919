package scenario

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// Record is one line of a scenario file.
type Record struct {
	ID      string
	MapFile string
	Rows    int
	Cols    int
	Start   arena.Cell
	Goal    arena.Cell
	// Cost is only written when HasCost is set.
	Cost    float64
	HasCost bool
}

// WriteScenario writes the "version 1" header and one tab-separated line
// per record, in the order given:
//
//	id  map  rows  cols  start_col  start_row  goal_col  goal_row  cost
func WriteScenario(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("version 1\n")
	for _, rec := range records {
		fmt.Fprintf(bw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d",
			rec.ID, rec.MapFile, rec.Rows, rec.Cols,
			rec.Start.Col, rec.Start.Row, rec.Goal.Col, rec.Goal.Row)
		if rec.HasCost {
			bw.WriteString("\t" + strconv.FormatFloat(rec.Cost, 'f', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ParseScenario reads a scenario file. Lines that do not parse are
// skipped and reported together in the returned error.
func ParseScenario(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty scenario file")
	}
	if v := strings.TrimSpace(sc.Text()); v != "version 1" {
		return nil, fmt.Errorf("scenario header %q, want \"version 1\"", v)
	}

	var (
		records []Record
		errs    error
	)
	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("scenario line %d: %w", lineNo, err))
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, err
	}
	return records, errs
}

func parseRecord(line string) (Record, error) {
	f := strings.Split(line, "\t")
	if len(f) < 8 {
		f = strings.Fields(line)
	}
	if len(f) < 8 {
		return Record{}, fmt.Errorf("want at least 8 fields, got %d", len(f))
	}
	var ints [6]int
	for i := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(f[2+i]))
		if err != nil {
			return Record{}, fmt.Errorf("field %d: %w", 3+i, err)
		}
		ints[i] = v
	}
	rec := Record{
		ID:      strings.TrimSpace(f[0]),
		MapFile: strings.TrimSpace(f[1]),
		Rows:    ints[0],
		Cols:    ints[1],
		Start:   arena.Cell{Row: ints[3], Col: ints[2]},
		Goal:    arena.Cell{Row: ints[5], Col: ints[4]},
	}
	if len(f) > 8 && strings.TrimSpace(f[8]) != "" {
		cost, err := strconv.ParseFloat(strings.TrimSpace(f[8]), 64)
		if err != nil {
			return Record{}, fmt.Errorf("cost: %w", err)
		}
		rec.Cost, rec.HasCost = cost, true
	}
	return rec, nil
}

// GoalsFromRecords indexes the goal cells of a parsed scenario by robot id.
func GoalsFromRecords(records []Record) map[string]arena.Cell {
	out := make(map[string]arena.Cell, len(records))
	for _, rec := range records {
		out[rec.ID] = rec.Goal
	}
	return out
}
