// Package visibility computes what an observer can see on the terrain grid.
// Sight is ray-cast across a cone; concealment and cover accumulate along each
// ray and a sharp rise in elevation blocks it.
package visibility

import (
	"math"
	"sort"

	"github.com/talgya/frontline/internal/world"
)

// Params tunes the ray caster.
type Params struct {
	HalfAngle          float64 `mapstructure:"halfAngle"`          // degrees either side of the facing
	Range              int     `mapstructure:"range"`              // tiles
	Stride             float64 `mapstructure:"stride"`             // degrees between rays
	OcclusionThreshold int     `mapstructure:"occlusionThreshold"` // concealment+cover that stops a ray
	ElevationJump      int     `mapstructure:"elevationJump"`      // max rise between consecutive tiles
}

// DefaultParams returns a 90° cone reaching eight tiles.
func DefaultParams() Params {
	return Params{
		HalfAngle:          45,
		Range:              8,
		Stride:             10,
		OcclusionThreshold: 100,
		ElevationJump:      3,
	}
}

// Observer is a position plus the way it faces. DirNone looks all around.
type Observer struct {
	Pos    world.Pos
	Facing world.Direction
}

// Set is a set of visible positions.
type Set map[world.Pos]struct{}

// Add marks p visible.
func (s Set) Add(p world.Pos) { s[p] = struct{}{} }

// Has reports whether p is visible.
func (s Set) Has(p world.Pos) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of visible positions.
func (s Set) Len() int { return len(s) }

// Union adds every position of o to s.
func (s Set) Union(o Set) {
	for p := range o {
		s[p] = struct{}{}
	}
}

// Sorted returns the positions in row-major order.
func (s Set) Sorted() []world.Pos {
	out := make([]world.Pos, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return world.Less(out[i], out[j]) })
	return out
}

// Visible returns the tiles seen from origin looking toward facing.
func Visible(g *world.Grid, origin world.Pos, facing world.Direction, params Params) Set {
	seen := make(Set)
	if !g.InBounds(origin) {
		return seen
	}
	seen.Add(origin)

	stride := params.Stride
	if stride <= 0 {
		stride = DefaultParams().Stride
	}

	if facing == world.DirNone {
		for a := 0.0; a < 360; a += stride {
			castRay(g, origin, a, params, seen)
		}
		return seen
	}

	center := float64(facing.Degrees())
	half := math.Max(0, params.HalfAngle)
	for off := -half; off <= half+1e-9; off += stride {
		castRay(g, origin, center+off, params, seen)
	}
	return seen
}

// castRay walks one tile per step along a compass bearing (0° = +Y, 90° = +X)
// and records every tile it reaches. The tile that stops the ray is seen.
func castRay(g *world.Grid, origin world.Pos, bearing float64, params Params, seen Set) {
	rad := bearing * math.Pi / 180
	dx, dy := math.Sin(rad), math.Cos(rad)

	prev := origin
	prevElev := g.Tile(origin).Elevation
	occlusion := 0

	for t := 1; t <= params.Range; t++ {
		p := world.Pos{
			X: origin.X + int(math.Round(float64(t)*dx)),
			Y: origin.Y + int(math.Round(float64(t)*dy)),
		}
		if p == prev {
			continue
		}
		tile, ok := g.Lookup(p)
		if !ok {
			return
		}
		seen.Add(p)

		if tile.Elevation-prevElev > params.ElevationJump {
			return
		}
		occlusion += tile.Concealment + tile.Cover
		if occlusion >= params.OcclusionThreshold {
			return
		}
		prev, prevElev = p, tile.Elevation
	}
}

// SideVisibility unions what every observer sees.
func SideVisibility(g *world.Grid, observers []Observer, params Params) Set {
	all := make(Set)
	for _, o := range observers {
		all.Union(Visible(g, o.Pos, o.Facing, params))
	}
	return all
}
