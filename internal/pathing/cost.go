// Package pathing provides terrain cost models and the two grid pathfinders:
// a one-shot A* search and an incremental D* Lite planner that repairs its
// search tree when tiles change.
package pathing

import (
	"math"

	"github.com/talgya/frontline/internal/world"
)

// HeavyUnitWeight is the unit weight above which TerrainCost treats very poor
// or very steep ground as impassable instead of merely expensive.
const HeavyUnitWeight = 15.0

// MinStepCost is the TerrainCost floor that keeps every edge positive.
const MinStepCost = 0.1

// CostModel prices a single step between adjacent tiles.
// A return of +Inf marks the step as impassable.
type CostModel interface {
	Cost(from, to *world.Tile) float64
}

// StealthCost is the static pathfinder's cost model. It charges for poor
// maneuver, climbing (1.5×) and descending (1×) scaled by unit weight, exposed
// tiles when stealth matters, and a flat cover surcharge.
type StealthCost struct {
	UnitWeight      float64
	StealthPriority float64
}

// Cost implements CostModel.
func (c StealthCost) Cost(from, to *world.Tile) float64 {
	if to.Water {
		return math.Inf(1)
	}
	maneuverPenalty := float64(max(0, -to.Maneuver))
	elevationPenalty := ElevationPenalty(from.Elevation, to.Elevation, 1.5, 1.0)
	concealmentPenalty := 0.0
	if c.StealthPriority != 0 {
		concealmentPenalty = float64(100-to.Concealment) * c.StealthPriority
	}
	coverPenalty := float64(1 + to.Cover/100)

	return maneuverPenalty + elevationPenalty*c.UnitWeight + concealmentPenalty + coverPenalty
}

// TerrainCost is the incremental planner's terrain-only cost model.
type TerrainCost struct {
	UnitWeight        float64
	StealthPreference float64
}

// Cost implements CostModel.
func (c TerrainCost) Cost(from, to *world.Tile) float64 {
	if to.Water {
		return math.Inf(1)
	}
	altitudeDiff := float64(abs(to.Elevation - from.Elevation))

	if c.UnitWeight > HeavyUnitWeight && (to.Maneuver < -50 || altitudeDiff > 15) {
		return math.Inf(1)
	}
	base := float64(-to.Maneuver)
	base += math.Max(0, altitudeDiff-5) / 5
	base -= float64(to.Concealment) / 100 * c.StealthPreference
	return math.Max(MinStepCost, base)
}

// ElevationPenalty prices an elevation change asymmetrically: climbing costs
// climb×Δ, descending costs descend×|Δ|.
func ElevationPenalty(fromElev, toElev int, climb, descend float64) float64 {
	diff := toElev - fromElev
	if diff > 0 {
		return float64(diff) * climb
	}
	return float64(-diff) * descend
}

// PathCost sums the model's step costs along path. An empty or single-tile
// path costs zero.
func PathCost(g *world.Grid, model CostModel, path []world.Pos) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += model.Cost(g.Tile(path[i-1]), g.Tile(path[i]))
	}
	return total
}

func manhattan(a, b world.Pos) float64 {
	return float64(world.Manhattan(a, b))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
