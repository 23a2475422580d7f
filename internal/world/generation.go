// Terrain generation using layered simplex noise.
// Generates elevation, vegetation, and richness layers, then derives tile attributes.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds terrain generation parameters.
type GenConfig struct {
	Width      int     `mapstructure:"width"`
	Height     int     `mapstructure:"height"`
	Seed       int64   `mapstructure:"seed"`       // Random seed (0 = random)
	WaterLevel float64 `mapstructure:"waterLevel"` // Normalized elevation below which tiles are water (0.0–1.0)
	MaxHeight  int     `mapstructure:"maxHeight"`  // Elevation of the highest peak
}

// DefaultGenConfig returns a 50×50 battlefield with scattered lakes.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:      50,
		Height:     50,
		Seed:       0,
		WaterLevel: 0.22,
		MaxHeight:  40,
	}
}

// SmallTestConfig returns a tiny battlefield for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:      12,
		Height:     12,
		Seed:       42,
		WaterLevel: 0.15,
		MaxHeight:  20,
	}
}

// Generate creates a grid with terrain, concealment, cover, and resources.
// Output is deterministic for a non-zero seed.
func Generate(cfg GenConfig) *Grid {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = DefaultGenConfig().MaxHeight
	}

	// Three noise generators for independent layers.
	elevNoise := opensimplex.NewNormalized(seed)
	vegNoise := opensimplex.NewNormalized(seed + 1)
	richNoise := opensimplex.NewNormalized(seed + 2)

	g := NewGrid(cfg.Width, cfg.Height)

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			fx, fy := float64(x), float64(y)

			elev := octaveNoise(elevNoise, fx, fy, 4, 0.06, 0.5)
			veg := octaveNoise(vegNoise, fx, fy, 3, 0.09, 0.5)
			rich := octaveNoise(richNoise, fx, fy, 2, 0.12, 0.5)

			t := g.Tile(Pos{X: x, Y: y})
			t.Elevation = int(math.Round(elev * float64(cfg.MaxHeight)))

			if elev < cfg.WaterLevel {
				t.Water = true
				continue
			}

			// Dense vegetation hides occupants but slows movement.
			t.Concealment = clampPercent(int(veg * 100))
			t.Cover = clampPercent(int((veg*0.6 + elev*0.4) * 100))
			t.Maneuver = -int(veg*4) - int(math.Max(0, elev-0.7)*20)

			if rich > 0.55 {
				scale := (rich - 0.55) / 0.45
				t.Fuel = int(scale * 20)
				t.Manpower = int(scale * 15)
				t.Resources = int(scale * 25)
			}
		}
	}

	// Post-pass: steep slopes next to lowland are harder to traverse.
	markSlopes(g)

	return g
}

// markSlopes penalizes maneuver on tiles with a large elevation step to any neighbour.
func markSlopes(g *Grid) {
	var steep []Pos
	for _, p := range g.Positions() {
		t := g.Tile(p)
		if t.Water {
			continue
		}
		for _, n := range g.Adjacent(p) {
			if abs(n.Elevation-t.Elevation) > 5 {
				steep = append(steep, p)
				break
			}
		}
	}
	for _, p := range steep {
		g.Tile(p).Maneuver -= 2
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clampPercent(v int) int {
	return min(100, max(0, v))
}

// TerrainSummary counts land, water, and resource-bearing tiles.
type TerrainSummary struct {
	Land      int
	Water     int
	Resources int
}

// Summarize returns a terrain distribution summary for logging.
func Summarize(g *Grid) TerrainSummary {
	var s TerrainSummary
	for i := range g.tiles {
		t := &g.tiles[i]
		if t.Water {
			s.Water++
			continue
		}
		s.Land++
		if t.ResourceValue() > 0 {
			s.Resources++
		}
	}
	return s
}
