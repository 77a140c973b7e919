package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaConfig_Defaults(t *testing.T) {
	t.Parallel()

	c := &ArenaConfig{}
	require.NoError(t, c.Validate())
	assert.Equal(t, 0.3, c.GetCellSize())
	assert.Equal(t, 6.0, c.GetArenaHeight())
	assert.Equal(t, 8.0, c.GetArenaWidth())
	assert.Equal(t, "round", c.GetRounding())
	assert.Equal(t, 0.01, c.GetRasterStep())
	assert.Equal(t, 0, c.GetTolerance())
	assert.Equal(t, 8, c.GetConnectivity())
	assert.False(t, c.GetBorderWalls())
	assert.Equal(t, "data/map.map", c.GetMapFile())
	assert.Equal(t, "data/scen.scen", c.GetScenarioFile())
	assert.Equal(t, "data/goals.txt", c.GetGoalsFile())
	assert.Equal(t, "data/paths.txt", c.GetPathsFile())
	assert.Equal(t, "data/plan.txt", c.GetPlanFile())
	assert.Equal(t, 60*time.Second, c.GetSolverTimeout())
	assert.Equal(t, time.Second, c.GetPassInterval())
	assert.Equal(t, int64(0), c.GetGoalSeed())
	assert.Equal(t, DefaultSolverCommand, c.GetSolverCommand())
}

func TestArenaConfig_SolverCommandIsCopied(t *testing.T) {
	t.Parallel()

	c := &ArenaConfig{}
	cmd := c.GetSolverCommand()
	cmd[0] = "mutated"
	assert.Equal(t, "cbs", DefaultSolverCommand[0])
}

func TestPreset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		height, width float64
	}{
		{"SMALL", 2, 2},
		{"medium", 3, 6},
		{"LARGE", 6, 8},
	}
	for _, tt := range tests {
		c, err := Preset(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, 0.3, c.GetCellSize())
		assert.Equal(t, tt.height, c.GetArenaHeight(), tt.name)
		assert.Equal(t, tt.width, c.GetArenaWidth(), tt.name)
		assert.NoError(t, c.Validate())
	}

	_, err := Preset("HUGE")
	assert.Error(t, err)
	assert.Equal(t, []string{"LARGE", "MEDIUM", "SMALL"}, PresetNames())
}

func TestPreset_ExplicitFieldsWin(t *testing.T) {
	t.Parallel()

	c, err := ParseArenaConfig([]byte(`{"preset": "SMALL", "arena_width": 3.5}`))
	require.NoError(t, err)
	assert.Equal(t, 2.0, c.GetArenaHeight())
	assert.Equal(t, 3.5, c.GetArenaWidth())
}

func TestParseArenaConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown field":    `{"cell_sise": 0.3}`,
		"negative cell":    `{"cell_size": -1}`,
		"too wide":         `{"arena_width": 13}`,
		"smaller than one": `{"cell_size": 1, "arena_height": 0.5}`,
		"rounding":         `{"rounding": "ceil"}`,
		"raster step":      `{"raster_step": 0.5}`,
		"tolerance":        `{"tolerance": 3}`,
		"connectivity":     `{"connectivity": 6}`,
		"keep out":         `{"keep_out": [[1, -1]]}`,
		"solver":           `{"solver_command": []}`,
		"timeout":          `{"solver_timeout": "soon"}`,
		"interval":         `{"pass_interval": "-1s"}`,
		"preset":           `{"preset": "TINY"}`,
		"not json":         `{`,
	}
	for name, in := range tests {
		_, err := ParseArenaConfig([]byte(in))
		assert.Error(t, err, name)
	}
}

func TestLoadArenaConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "arena.json")
	body := `{
		"cell_size": 0.25,
		"arena_height": 4,
		"arena_width": 5,
		"tolerance": 2,
		"connectivity": 4,
		"rounding": "floor",
		"border_walls": true,
		"keep_out": [[2, 3], [4, 5]],
		"solver_command": ["./solver", "{map}", "{scen}"],
		"solver_timeout": "5s",
		"goal_seed": 11,
		"pass_interval": "250ms"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := LoadArenaConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, c.GetCellSize())
	assert.Equal(t, 2, c.GetTolerance())
	assert.Equal(t, 4, c.GetConnectivity())
	assert.Equal(t, "floor", c.GetRounding())
	assert.True(t, c.GetBorderWalls())
	assert.Equal(t, [][2]int{{2, 3}, {4, 5}}, c.KeepOut)
	assert.Equal(t, []string{"./solver", "{map}", "{scen}"}, c.GetSolverCommand())
	assert.Equal(t, 5*time.Second, c.GetSolverTimeout())
	assert.Equal(t, int64(11), c.GetGoalSeed())
	assert.Equal(t, 250*time.Millisecond, c.GetPassInterval())
}

func TestLoadArenaConfig_FileChecks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadArenaConfig(filepath.Join(dir, "arena.yaml"))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadArenaConfig(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "stat")

	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, []byte(`{"preset":"SMALL"`+strings.Repeat(" ", 1<<20)+`}`), 0o644))
	_, err = LoadArenaConfig(big)
	assert.ErrorContains(t, err, "too large")
}

func TestArenaConfig_PointerFields(t *testing.T) {
	t.Parallel()

	c := &ArenaConfig{Tolerance: ptr(1), Rounding: ptr("floor")}
	assert.Equal(t, 1, c.GetTolerance())
	assert.Equal(t, "floor", c.GetRounding())
}
