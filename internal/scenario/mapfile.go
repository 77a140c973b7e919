package scenario

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/arena.grid/internal/arena"
)

// WriteMap writes g in octile map format. Obstacle cells become '@' and
// everything else '.', so robots and goal markers are free space.
func WriteMap(w io.Writer, g *arena.Grid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "type octile\nheight %d\nwidth %d\nmap\n", g.Rows(), g.Cols())
	line := make([]byte, g.Cols()+1)
	line[g.Cols()] = '\n'
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			line[c] = '.'
			if g.At(arena.Cell{Row: r, Col: c}).IsObstacle() {
				line[c] = '@'
			}
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseMap reads an octile map. Blocked cells ('@', 'T' and 'O') come
// back as ObstacleReal; everything else is Empty.
func ParseMap(r io.Reader) (*arena.Grid, error) {
	sc := bufio.NewScanner(r)
	header := map[string]string{}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "map" {
			break
		}
		key, val, _ := strings.Cut(line, " ")
		header[key] = strings.TrimSpace(val)
	}
	if t := header["type"]; t != "octile" {
		return nil, fmt.Errorf("map type %q, want octile", t)
	}
	rows, err := strconv.Atoi(header["height"])
	if err != nil || rows < 1 {
		return nil, fmt.Errorf("bad map height %q", header["height"])
	}
	cols, err := strconv.Atoi(header["width"])
	if err != nil || cols < 1 {
		return nil, fmt.Errorf("bad map width %q", header["width"])
	}

	g := arena.NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("map ends after %d of %d rows", r, rows)
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if len(line) != cols {
			return nil, fmt.Errorf("map row %d has %d cells, want %d", r, len(line), cols)
		}
		for c := 0; c < cols; c++ {
			switch line[c] {
			case '@', 'T', 'O':
				g.Set(arena.Cell{Row: r, Col: c}, arena.ObstacleReal)
			}
		}
	}
	return g, nil
}
