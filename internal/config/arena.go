package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MaxArenaSide is the largest arena edge, in metres, the tracking volume
// covers.
const MaxArenaSide = 12.0

// ArenaConfig is the JSON configuration of one arena deployment. Every
// field is optional; the Get* accessors supply defaults.
type ArenaConfig struct {
	// Preset seeds cell_size, arena_height and arena_width from a named
	// demo arena (SMALL, MEDIUM, LARGE). Explicit fields still win.
	Preset *string `json:"preset,omitempty"`

	// Geometry
	CellSize    *float64 `json:"cell_size,omitempty"`    // metres
	ArenaHeight *float64 `json:"arena_height,omitempty"` // metres, along lab x
	ArenaWidth  *float64 `json:"arena_width,omitempty"`  // metres, along lab y
	Rounding    *string  `json:"rounding,omitempty"`     // "round" or "floor"
	RasterStep  *float64 `json:"raster_step,omitempty"`  // metres

	// Classification
	Tolerance    *int     `json:"tolerance,omitempty"`
	Connectivity *int     `json:"connectivity,omitempty"`
	BorderWalls  *bool    `json:"border_walls,omitempty"`
	KeepOut      [][2]int `json:"keep_out,omitempty"` // [row, col] grid cells

	// Files
	MapFile      *string `json:"map_file,omitempty"`
	ScenarioFile *string `json:"scenario_file,omitempty"`
	GoalsFile    *string `json:"goals_file,omitempty"`
	PathsFile    *string `json:"paths_file,omitempty"`
	PlanFile     *string `json:"plan_file,omitempty"`

	// Solver
	SolverCommand []string `json:"solver_command,omitempty"`
	SolverTimeout *string  `json:"solver_timeout,omitempty"` // duration string like "60s"

	GoalSeed     *int64  `json:"goal_seed,omitempty"`     // 0 seeds from the clock
	PassInterval *string `json:"pass_interval,omitempty"` // duration string like "1s"
}

type preset struct {
	cellSize, height, width float64
}

var presets = map[string]preset{
	"SMALL":  {0.3, 2.0, 2.0},
	"MEDIUM": {0.3, 3.0, 6.0},
	"LARGE":  {0.3, 6.0, 8.0},
}

// PresetNames lists the built-in arenas.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Preset returns a config for a built-in arena.
func Preset(name string) (*ArenaConfig, error) {
	name = strings.ToUpper(name)
	if _, ok := presets[name]; !ok {
		return nil, fmt.Errorf("unknown preset %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return &ArenaConfig{Preset: &name}, nil
}

func ptr[T any](v T) *T { return &v }

// LoadArenaConfig reads and validates a JSON config file. The file must
// have a .json extension and be at most 1MB.
func LoadArenaConfig(path string) (*ArenaConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseArenaConfig(data)
}

// ParseArenaConfig decodes and validates config JSON. Unknown fields are
// rejected so typos do not silently fall back to defaults.
func ParseArenaConfig(data []byte) (*ArenaConfig, error) {
	cfg := &ArenaConfig{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every set field.
func (c *ArenaConfig) Validate() error {
	if c.Preset != nil {
		if _, ok := presets[strings.ToUpper(*c.Preset)]; !ok {
			return fmt.Errorf("unknown preset %q", *c.Preset)
		}
	}
	if v := c.GetCellSize(); v <= 0 {
		return fmt.Errorf("cell_size must be positive, got %f", v)
	}
	for name, v := range map[string]float64{"arena_height": c.GetArenaHeight(), "arena_width": c.GetArenaWidth()} {
		if v <= 0 || v > MaxArenaSide {
			return fmt.Errorf("%s must be in (0, %.0f], got %f", name, MaxArenaSide, v)
		}
		if v < c.GetCellSize() {
			return fmt.Errorf("%s %f is smaller than one cell", name, v)
		}
	}
	if r := c.GetRounding(); r != "round" && r != "floor" {
		return fmt.Errorf("rounding must be \"round\" or \"floor\", got %q", r)
	}
	if v := c.GetRasterStep(); v <= 0 || v > c.GetCellSize() {
		return fmt.Errorf("raster_step must be in (0, cell_size], got %f", v)
	}
	if v := c.GetTolerance(); v < 0 || v > 2 {
		return fmt.Errorf("tolerance must be 0, 1 or 2, got %d", v)
	}
	if v := c.GetConnectivity(); v != 4 && v != 8 {
		return fmt.Errorf("connectivity must be 4 or 8, got %d", v)
	}
	for _, rc := range c.KeepOut {
		if rc[0] < 0 || rc[1] < 0 {
			return fmt.Errorf("keep_out cell %v has a negative index", rc)
		}
	}
	if c.SolverCommand != nil && (len(c.SolverCommand) == 0 || c.SolverCommand[0] == "") {
		return fmt.Errorf("solver_command must name a program")
	}
	for name, s := range map[string]*string{"solver_timeout": c.SolverTimeout, "pass_interval": c.PassInterval} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

func (c *ArenaConfig) preset() (preset, bool) {
	if c.Preset == nil {
		return preset{}, false
	}
	p, ok := presets[strings.ToUpper(*c.Preset)]
	return p, ok
}

// GetCellSize returns cell_size, the preset's, or 0.3.
func (c *ArenaConfig) GetCellSize() float64 {
	if c.CellSize != nil {
		return *c.CellSize
	}
	if p, ok := c.preset(); ok {
		return p.cellSize
	}
	return 0.3
}

// GetArenaHeight returns arena_height, the preset's, or 6.
func (c *ArenaConfig) GetArenaHeight() float64 {
	if c.ArenaHeight != nil {
		return *c.ArenaHeight
	}
	if p, ok := c.preset(); ok {
		return p.height
	}
	return 6.0
}

// GetArenaWidth returns arena_width, the preset's, or 8.
func (c *ArenaConfig) GetArenaWidth() float64 {
	if c.ArenaWidth != nil {
		return *c.ArenaWidth
	}
	if p, ok := c.preset(); ok {
		return p.width
	}
	return 8.0
}

func (c *ArenaConfig) GetRounding() string {
	if c.Rounding == nil || *c.Rounding == "" {
		return "round"
	}
	return *c.Rounding
}

func (c *ArenaConfig) GetRasterStep() float64 {
	if c.RasterStep == nil {
		return 0.01
	}
	return *c.RasterStep
}

func (c *ArenaConfig) GetTolerance() int {
	if c.Tolerance == nil {
		return 0
	}
	return *c.Tolerance
}

func (c *ArenaConfig) GetConnectivity() int {
	if c.Connectivity == nil {
		return 8
	}
	return *c.Connectivity
}

func (c *ArenaConfig) GetBorderWalls() bool {
	return c.BorderWalls != nil && *c.BorderWalls
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func (c *ArenaConfig) GetMapFile() string      { return stringOr(c.MapFile, "data/map.map") }
func (c *ArenaConfig) GetScenarioFile() string { return stringOr(c.ScenarioFile, "data/scen.scen") }
func (c *ArenaConfig) GetGoalsFile() string    { return stringOr(c.GoalsFile, "data/goals.txt") }
func (c *ArenaConfig) GetPathsFile() string    { return stringOr(c.PathsFile, "data/paths.txt") }
func (c *ArenaConfig) GetPlanFile() string     { return stringOr(c.PlanFile, "data/plan.txt") }

// DefaultSolverCommand runs CBSH2-RTC with a 60 second budget.
var DefaultSolverCommand = []string{
	"cbs", "-m", "{map}", "-a", "{scen}", "-o", "data/stats.csv",
	"--outputPaths={paths}", "-k", "{agents}", "-t", "60",
}

// GetSolverCommand returns a copy of the solver argv template.
func (c *ArenaConfig) GetSolverCommand() []string {
	if len(c.SolverCommand) == 0 {
		return append([]string(nil), DefaultSolverCommand...)
	}
	return append([]string(nil), c.SolverCommand...)
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetSolverTimeout parses solver_timeout, defaulting to 60s.
func (c *ArenaConfig) GetSolverTimeout() time.Duration {
	return parseDurationOr(c.SolverTimeout, 60*time.Second)
}

// GetPassInterval parses pass_interval, defaulting to 1s.
func (c *ArenaConfig) GetPassInterval() time.Duration {
	return parseDurationOr(c.PassInterval, time.Second)
}

// GetGoalSeed returns goal_seed, or 0 when unset.
func (c *ArenaConfig) GetGoalSeed() int64 {
	if c.GoalSeed == nil {
		return 0
	}
	return *c.GoalSeed
}
