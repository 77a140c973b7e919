// Package snapshot renders a classified grid for people: a PNG heatmap for
// logs and reports, and an interactive HTML page for the browser.
package snapshot

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/plan"
)

// View is everything drawn in one snapshot.
type View struct {
	Title  string
	Grid   *arena.Grid
	Robots map[string]arena.Cell
	Goals  map[string]arena.Cell
	// Paths are drawn when set; Agents[i] labels Paths agent i.
	Paths  plan.PathTable
	Agents []string
}

// States lists the cell states in legend order; a state's index is the
// value drawn for it.
var States = []arena.CellState{
	arena.Empty,
	arena.Collision,
	arena.RobotFull,
	arena.RobotPartial,
	arena.ObstacleReal,
	arena.ObstacleArt,
	arena.Goal,
}

var stateColors = map[arena.CellState]color.RGBA{
	arena.Empty:        {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	arena.Collision:    {R: 0xff, G: 0x66, B: 0x91, A: 0xff},
	arena.RobotFull:    {R: 0x00, G: 0xc8, B: 0x53, A: 0xff},
	arena.RobotPartial: {R: 0xff, G: 0x17, B: 0x44, A: 0xff},
	arena.ObstacleReal: {R: 0x00, G: 0x00, B: 0x00, A: 0xff},
	arena.ObstacleArt:  {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	arena.Goal:         {R: 0xf2, G: 0xc1, B: 0x4e, A: 0xff},
}

// RGBA is the display colour of s.
func RGBA(s arena.CellState) color.RGBA {
	if c, ok := stateColors[s]; ok {
		return c
	}
	return color.RGBA{R: 0xff, B: 0xff, A: 0xff}
}

// Hex is RGBA as "#rrggbb".
func Hex(s arena.CellState) string {
	c := RGBA(s)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func stateIndex(s arena.CellState) int {
	for i, v := range States {
		if v == s {
			return i
		}
	}
	return 0
}

func sortedKeys(m map[string]arena.Cell) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func agentLabel(agents []string, i int) string {
	if i >= 0 && i < len(agents) {
		return agents[i]
	}
	return "?"
}
