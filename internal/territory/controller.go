package territory

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/frontline/internal/pathing"
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/visibility"
	"github.com/talgya/frontline/internal/world"
)

// Kind tells expansion targets from guard posts.
type Kind uint8

const (
	Expand Kind = iota
	Defend
)

func (k Kind) String() string {
	if k == Defend {
		return "defend"
	}
	return "expand"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Candidate is a scored target for one unit.
type Candidate struct {
	Pos       world.Pos `json:"pos"`
	Score     float64   `json:"score"`
	Kind      Kind      `json:"kind"`
	Contested bool      `json:"contested,omitempty"`
}

// AssignmentReport summarizes one controller tick.
type AssignmentReport struct {
	Region        world.RegionID `json:"region"`
	Expansions    int            `json:"expansions"`
	Defenses      int            `json:"defenses"`
	Reassignments int            `json:"reassignments"`
	Unreachable   int            `json:"unreachable"`
	CapacitySkips int            `json:"capacity_skips"`
	LostPosts     int            `json:"lost_posts"`
}

type calibration struct {
	footprint uint64
	terrain   uint64
}

// Controller decides, once per tick, where a region's units go.
type Controller struct {
	region   *Region
	registry *Registry
	grid     *world.Grid
	roster   *units.Roster
	planner  units.Planner
	weights  Weights

	intel visibility.Set

	interests  []world.Pos
	desire     map[world.Pos]float64
	stamp      calibration
	calibrated bool

	ins instruments
}

// NewController binds a controller to a founded region.
func NewController(reg *Registry, id world.RegionID, roster *units.Roster, planner units.Planner, w Weights) (*Controller, error) {
	region, err := reg.Region(id)
	if err != nil {
		return nil, fmt.Errorf("new controller: %w", err)
	}
	return &Controller{
		region:   region,
		registry: reg,
		grid:     reg.grid,
		roster:   roster,
		planner:  planner,
		weights:  w,
		desire:   make(map[world.Pos]float64),
		ins:      reg.ins,
	}, nil
}

// Region returns the controlled region.
func (c *Controller) Region() *Region { return c.region }

// SetIntel limits what the controller knows about enemy holdings to the given
// visible set. A nil set means full knowledge.
func (c *Controller) SetIntel(s visibility.Set) { c.intel = s }

func (c *Controller) knows(p world.Pos) bool {
	return c.intel == nil || c.intel.Has(p)
}

// priority returns the base priority for taking p. ok is false for tiles
// already held by a friendly region.
func (c *Controller) priority(p world.Pos) (priority float64, contested, ok bool) {
	owner, owned := c.grid.Occupation(p)
	if owned && owner.Side == c.region.Side {
		return 0, false, false
	}
	if owned && c.knows(p) {
		return c.weights.ContestedPriority, true, true
	}
	return c.weights.UnclaimedPriority + c.weights.DesireLineBonus*c.DesireWeight(p), false, true
}

// ExpansionCandidates scores every tile adjacent to the frontier that the
// region could take: not controlled, not water, not held by a friendly region
// and not already targeted by any unit of the same side.
func (c *Controller) ExpansionCandidates() []Candidate {
	c.Recalibrate()
	r := c.region
	remaining := math.Max(0, float64(r.Capacity-r.Size()))
	pressure := c.weights.CapacityPressure * remaining / float64(r.Capacity)

	best := make(map[world.Pos]Candidate)
	for _, f := range r.FrontierTiles(c.grid) {
		from := c.grid.Tile(f)
		for _, to := range c.grid.Adjacent(f) {
			p := to.Pos
			if r.Controls(p) || to.Water || c.registry.ClaimedBySide(r.Side, p) {
				continue
			}
			prio, contested, ok := c.priority(p)
			if !ok {
				continue
			}
			terrain := float64(to.Maneuver) - pathing.ElevationPenalty(from.Elevation, to.Elevation, c.weights.ElevationClimb, c.weights.ElevationDescend)
			score := prio + float64(to.ResourceValue()) + pressure + terrain
			if cur, seen := best[p]; !seen || score > cur.Score {
				best[p] = Candidate{Pos: p, Score: score, Kind: Expand, Contested: contested}
			}
		}
	}
	return sortCandidates(best)
}

// DefenseCandidates scores every controlled, unguarded, dry tile.
func (c *Controller) DefenseCandidates() []Candidate {
	c.Recalibrate()
	out := make(map[world.Pos]Candidate)
	for _, p := range c.region.ControlledTiles() {
		t := c.grid.Tile(p)
		if t.Water || c.region.IsGuarded(p) {
			continue
		}
		near := math.Inf(1)
		for _, poi := range c.interests {
			near = math.Min(near, float64(world.Manhattan(p, poi)))
		}
		if math.IsInf(near, 1) {
			near = float64(world.Manhattan(p, c.region.Anchor()))
		}
		score := c.weights.ProximityBonus/(1+near) +
			float64(t.ResourceValue()) +
			float64(t.Concealment)/c.weights.ConcealmentDivisor
		out[p] = Candidate{Pos: p, Score: score, Kind: Defend}
	}
	return sortCandidates(out)
}

// RankCandidates merges both lists, best first. Expansion targets come first
// among equal scores.
func (c *Controller) RankCandidates() []Candidate {
	ranked := append(c.ExpansionCandidates(), c.DefenseCandidates()...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

func sortCandidates(m map[world.Pos]Candidate) []Candidate {
	out := make([]Candidate, 0, len(m))
	for _, cand := range m {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return world.Less(out[i].Pos, out[j].Pos)
	})
	return out
}

// Tick assigns idle units to the ranked candidates, then lets defenders move
// to anything that beats the post they hold, then refreshes desire lines.
func (c *Controller) Tick() (AssignmentReport, error) {
	report := AssignmentReport{Region: c.region.ID}
	report.LostPosts = c.abandonLostPosts()

	ranked := c.RankCandidates()
	idle := c.idleUnits()
	taken := make(map[world.Pos]bool)

	for _, cand := range ranked {
		if len(idle) == 0 {
			break
		}
		if cand.Kind == Expand && !c.region.hasRoom() {
			report.CapacitySkips++
			continue
		}
		i := nearestUnit(idle, cand.Pos)
		ok, err := c.give(idle[i], cand, cand.Kind.String())
		if err != nil {
			return report, err
		}
		if !ok {
			report.Unreachable++
			continue
		}
		idle = append(idle[:i], idle[i+1:]...)
		taken[cand.Pos] = true
		if cand.Kind == Expand {
			report.Expansions++
		} else {
			report.Defenses++
		}
	}

	if err := c.reassignDefenders(ranked, taken, &report); err != nil {
		return report, err
	}
	c.Recalibrate()

	if report.CapacitySkips > 0 {
		slog.Debug("expansion skipped at capacity", "region", c.region.ID, "skipped", report.CapacitySkips, "size", c.region.Size(), "capacity", c.region.Capacity)
	}
	return report, nil
}

// reassignDefenders moves each defender at most once, to a candidate scoring
// above the priority of the post it holds. The old post is released only
// once the new route is known.
func (c *Controller) reassignDefenders(ranked []Candidate, taken map[world.Pos]bool, report *AssignmentReport) error {
	defenders := c.defenders()
	if len(defenders) == 0 {
		return nil
	}
	moved := make(map[units.ID]bool)

	for _, cand := range ranked {
		if taken[cand.Pos] {
			continue
		}
		if cand.Kind == Expand && !c.region.hasRoom() {
			continue
		}

		best := -1
		var bestDef units.Defense
		for i, u := range defenders {
			d, _ := u.Defense()
			if moved[u.ID] || cand.Score <= d.Priority || d.Pos == cand.Pos {
				continue
			}
			if best < 0 {
				best, bestDef = i, d
				continue
			}
			dist, bestDist := world.Manhattan(u.Pos, cand.Pos), world.Manhattan(defenders[best].Pos, cand.Pos)
			if dist < bestDist || (dist == bestDist && d.Priority < bestDef.Priority) {
				best, bestDef = i, d
			}
		}
		if best < 0 {
			continue
		}

		u := defenders[best]
		if _, ok := u.HandleAssignedLocation(c.planner, cand.Pos); !ok {
			report.Unreachable++
			continue
		}
		old, _ := u.ReleaseDefense()
		c.region.Unguard(old.Pos)
		if err := c.claim(u, cand, "reassign"); err != nil {
			return err
		}
		moved[u.ID] = true
		taken[cand.Pos] = true
		report.Reassignments++
	}
	return nil
}

// AssignUnitsToExpand hands expansion targets, best first, to idle units in
// roster order. Defense is not considered. It returns how many units were
// given orders.
func (c *Controller) AssignUnitsToExpand() (int, error) {
	if !c.region.CanExpand() {
		return 0, nil
	}
	targets := c.ExpansionCandidates()
	n := 0
	for _, u := range c.idleUnits() {
		for len(targets) > 0 {
			if !c.region.hasRoom() {
				return n, nil
			}
			t := targets[0]
			targets = targets[1:]
			ok, err := c.give(u, t, "expand")
			if err != nil {
				return n, err
			}
			if ok {
				n++
				break
			}
		}
	}
	return n, nil
}

// give routes u to cand and, if a route exists, records the claim.
func (c *Controller) give(u *units.Unit, cand Candidate, label string) (bool, error) {
	if _, ok := u.HandleAssignedLocation(c.planner, cand.Pos); !ok {
		return false, nil
	}
	return true, c.claim(u, cand, label)
}

func (c *Controller) claim(u *units.Unit, cand Candidate, label string) error {
	switch cand.Kind {
	case Expand:
		if err := c.region.Assign(cand.Pos, u.ID); err != nil {
			return err
		}
	case Defend:
		c.region.Guard(cand.Pos, u.ID)
		u.Defend(cand.Pos, cand.Score)
	}
	c.ins.recordAssignment(c.region.ID, label)
	return nil
}

// abandonLostPosts releases defenders whose post is no longer controlled.
func (c *Controller) abandonLostPosts() int {
	lost := 0
	for _, u := range c.defenders() {
		d, _ := u.Defense()
		if c.region.Controls(d.Pos) {
			continue
		}
		u.ReleaseDefense()
		u.ClearOrders()
		c.region.Unguard(d.Pos)
		lost++
	}
	return lost
}

func (c *Controller) regionUnits(keep func(*units.Unit) bool) []*units.Unit {
	var out []*units.Unit
	for _, id := range c.region.Units() {
		if u, ok := c.roster.Get(id); ok && keep(u) {
			out = append(out, u)
		}
	}
	return out
}

func (c *Controller) idleUnits() []*units.Unit {
	return c.regionUnits(func(u *units.Unit) bool { return u.IsIdle() && !u.IsDefending() })
}

func (c *Controller) defenders() []*units.Unit {
	return c.regionUnits(func(u *units.Unit) bool { return u.IsDefending() })
}

// nearestUnit returns the index of the unit closest to p; the earliest wins ties.
func nearestUnit(pool []*units.Unit, p world.Pos) int {
	best, bestDist := 0, math.MaxInt
	for i, u := range pool {
		if d := world.Manhattan(u.Pos, p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
