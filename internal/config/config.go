// Package config loads frontline settings from defaults, an optional file and
// FRONTLINE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/visibility"
	"github.com/talgya/frontline/internal/world"
)

// Planner names accepted by sim.planner.
const (
	PlannerAStar = "astar"
	PlannerDStar = "dstar"
)

// GridConfig selects where the battlefield comes from.
type GridConfig struct {
	world.GenConfig `mapstructure:",squash"`
	LayoutFile      string `mapstructure:"layoutFile"`
}

// SimConfig drives the tick loop and the planners.
type SimConfig struct {
	Ticks       uint64        `mapstructure:"ticks"` // 0 = run until signalled
	Interval    time.Duration `mapstructure:"interval"`
	Speed       float64       `mapstructure:"speed"`
	ReportEvery uint64        `mapstructure:"reportEvery"`
	Planner     string        `mapstructure:"planner"`
	Diagonal    bool          `mapstructure:"diagonal"`
	FogOfWar    bool          `mapstructure:"fogOfWar"`
	MaxSearch   int           `mapstructure:"maxSearch"`
	Stealth     float64       `mapstructure:"stealth"`
}

// RegionConfig founds one region and recruits its starting units at the anchor.
type RegionConfig struct {
	ID         string    `mapstructure:"id"`
	Side       string    `mapstructure:"side"`
	Capacity   int       `mapstructure:"capacity"`
	Anchor     world.Pos `mapstructure:"anchor"`
	Units      int       `mapstructure:"units"`
	UnitWeight float64   `mapstructure:"unitWeight"`
}

// APIConfig configures the observation server.
type APIConfig struct {
	Port     int    `mapstructure:"port"`
	AdminKey string `mapstructure:"adminKey"`
}

// Config is the complete process configuration.
type Config struct {
	LogLevel string            `mapstructure:"logLevel"`
	DBPath   string            `mapstructure:"dbPath"`
	Grid     GridConfig        `mapstructure:"grid"`
	Sim      SimConfig         `mapstructure:"sim"`
	Vision   visibility.Params `mapstructure:"vision"`
	Weights  territory.Weights `mapstructure:"weights"`
	Regions  []RegionConfig    `mapstructure:"regions"`
	API      APIConfig         `mapstructure:"api"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("dbPath", "frontline.db")

	gen := world.DefaultGenConfig()
	v.SetDefault("grid.width", gen.Width)
	v.SetDefault("grid.height", gen.Height)
	v.SetDefault("grid.seed", gen.Seed)
	v.SetDefault("grid.waterLevel", gen.WaterLevel)
	v.SetDefault("grid.maxHeight", gen.MaxHeight)
	v.SetDefault("grid.layoutFile", "")

	v.SetDefault("sim.ticks", 0)
	v.SetDefault("sim.interval", "1s")
	v.SetDefault("sim.speed", 1.0)
	v.SetDefault("sim.reportEvery", 100)
	v.SetDefault("sim.planner", PlannerAStar)
	v.SetDefault("sim.diagonal", true)
	v.SetDefault("sim.fogOfWar", true)
	v.SetDefault("sim.maxSearch", 0)
	v.SetDefault("sim.stealth", 0.0)

	vis := visibility.DefaultParams()
	v.SetDefault("vision.halfAngle", vis.HalfAngle)
	v.SetDefault("vision.range", vis.Range)
	v.SetDefault("vision.stride", vis.Stride)
	v.SetDefault("vision.occlusionThreshold", vis.OcclusionThreshold)
	v.SetDefault("vision.elevationJump", vis.ElevationJump)

	w := territory.DefaultWeights()
	v.SetDefault("weights.contestedPriority", w.ContestedPriority)
	v.SetDefault("weights.unclaimedPriority", w.UnclaimedPriority)
	v.SetDefault("weights.desireLineBonus", w.DesireLineBonus)
	v.SetDefault("weights.capacityPressure", w.CapacityPressure)
	v.SetDefault("weights.elevationClimb", w.ElevationClimb)
	v.SetDefault("weights.elevationDescend", w.ElevationDescend)
	v.SetDefault("weights.proximityBonus", w.ProximityBonus)
	v.SetDefault("weights.concealmentDivisor", w.ConcealmentDivisor)
	v.SetDefault("weights.interestThreshold", w.InterestThreshold)
	v.SetDefault("weights.maxInterests", w.MaxInterests)

	v.SetDefault("regions", []map[string]any{
		{"id": "Alpha", "side": "A", "capacity": 40, "anchor": map[string]any{"x": 5, "y": 5}, "units": 4, "unitWeight": 1.0},
		{"id": "Bravo", "side": "B", "capacity": 40, "anchor": map[string]any{"x": 44, "y": 44}, "units": 4, "unitWeight": 1.0},
	})

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.adminKey", "")
}

// Load reads configuration into a Config. An empty path uses defaults and the
// environment only; otherwise the file's extension picks the format.
func Load(path string) (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	v.SetEnvPrefix("FRONTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".json":
			v.SetConfigType("json")
		case ".yaml", ".yml":
			v.SetConfigType("yaml")
		default:
			return nil, fmt.Errorf("error reading config file: unsupported extension %q", ext)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the simulation cannot start with. Region anchors
// are only checked against the generator size when no layout file is given.
func (c *Config) Validate() error {
	if c.Grid.LayoutFile == "" && (c.Grid.Width <= 0 || c.Grid.Height <= 0) {
		return fmt.Errorf("grid size %dx%d must be positive", c.Grid.Width, c.Grid.Height)
	}
	switch c.Sim.Planner {
	case PlannerAStar, PlannerDStar:
	default:
		return fmt.Errorf("unknown planner %q", c.Sim.Planner)
	}
	if c.Sim.Speed <= 0 {
		return fmt.Errorf("speed %v must be positive", c.Sim.Speed)
	}
	if c.Vision.Stride <= 0 {
		return fmt.Errorf("vision stride %v must be positive", c.Vision.Stride)
	}

	seen := make(map[string]bool)
	for _, r := range c.Regions {
		if r.ID == "" {
			return fmt.Errorf("region with empty id")
		}
		if seen[r.ID] {
			return fmt.Errorf("region %s listed twice", r.ID)
		}
		seen[r.ID] = true
		if _, err := world.ParseSide(r.Side); err != nil {
			return fmt.Errorf("region %s: %w", r.ID, err)
		}
		if r.Capacity < 1 {
			return fmt.Errorf("region %s: capacity %d < 1", r.ID, r.Capacity)
		}
		if r.Units < 0 {
			return fmt.Errorf("region %s: negative unit count", r.ID)
		}
		if c.Grid.LayoutFile == "" {
			a := r.Anchor
			if a.X < 0 || a.Y < 0 || a.X >= c.Grid.Width || a.Y >= c.Grid.Height {
				return fmt.Errorf("region %s: anchor %s outside %dx%d grid", r.ID, a, c.Grid.Width, c.Grid.Height)
			}
		}
	}
	return nil
}

// ParseLevel converts a log level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
