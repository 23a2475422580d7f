package territory

import (
	"math"
	"sort"

	"github.com/talgya/frontline/internal/pathing"
	"github.com/talgya/frontline/internal/world"
)

// reach is how far from the controlled set a point of interest may lie.
func (c *Controller) reach() int {
	return 2 * int(math.Ceil(math.Sqrt(float64(c.region.Capacity)/math.Pi)))
}

// Recalibrate recomputes points of interest and desire-line weights. It does
// nothing unless the region's footprint or the terrain changed since the
// last run.
func (c *Controller) Recalibrate() {
	stamp := calibration{footprint: c.region.Footprint(), terrain: c.grid.Version()}
	if c.calibrated && stamp == c.stamp {
		return
	}

	c.interests = c.findInterests()
	freq := make(map[world.Pos]int)
	peak := 0
	search := pathing.NewAStar(c.grid, pathing.StealthCost{UnitWeight: 1})
	for i := 0; i < len(c.interests); i++ {
		for j := i + 1; j < len(c.interests); j++ {
			for _, p := range search.FindPath(c.interests[i], c.interests[j]) {
				freq[p]++
				if freq[p] > peak {
					peak = freq[p]
				}
			}
		}
	}

	c.desire = make(map[world.Pos]float64, len(freq))
	for p, n := range freq {
		c.desire[p] = float64(n) / float64(peak)
	}
	c.stamp = stamp
	c.calibrated = true
}

// findInterests returns the anchor followed by the richest-nearby tiles, nearest
// first.
func (c *Controller) findInterests() []world.Pos {
	type poi struct {
		pos  world.Pos
		dist int
	}
	anchor := c.region.Anchor()
	origins := c.region.ControlledTiles()
	if len(origins) == 0 {
		origins = []world.Pos{anchor}
	}
	reach := c.reach()

	var found []poi
	for _, p := range c.grid.Positions() {
		if p == anchor {
			continue
		}
		t := c.grid.Tile(p)
		if t.Water || t.ResourceValue() < c.weights.InterestThreshold {
			continue
		}
		d := math.MaxInt
		for _, o := range origins {
			if m := world.Manhattan(p, o); m < d {
				d = m
			}
		}
		if d <= reach {
			found = append(found, poi{pos: p, dist: d})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return world.Less(found[i].pos, found[j].pos)
	})
	if len(found) > c.weights.MaxInterests {
		found = found[:max(0, c.weights.MaxInterests)]
	}

	out := []world.Pos{anchor}
	for _, f := range found {
		out = append(out, f.pos)
	}
	return out
}

// InterestPoints returns the current points of interest, anchor first.
func (c *Controller) InterestPoints() []world.Pos {
	c.Recalibrate()
	return append([]world.Pos(nil), c.interests...)
}

// CachedInterests returns the points of interest from the last calibration
// without recomputing them.
func (c *Controller) CachedInterests() []world.Pos {
	return append([]world.Pos(nil), c.interests...)
}

// DesireWeight is the normalized desire-line frequency of p in [0, 1].
func (c *Controller) DesireWeight(p world.Pos) float64 {
	return c.desire[p]
}

// IsInterior reports whether rays cast from p in the four cardinal directions
// all meet a controlled tile within sqrt(capacity/π) steps.
func (c *Controller) IsInterior(p world.Pos) bool {
	limit := max(1, int(math.Sqrt(float64(c.region.Capacity)/math.Pi)))
	for _, d := range world.CardinalOffsets {
		hit := false
		q := p
		for step := 0; step < limit; step++ {
			q = q.Add(d)
			if !c.grid.InBounds(q) {
				break
			}
			if c.region.Controls(q) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
