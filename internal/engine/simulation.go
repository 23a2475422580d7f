// Simulation ties together all battlefield systems and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/visibility"
	"github.com/talgya/frontline/internal/world"
)

const maxEvents = 1000

// Event is a notable occurrence on the battlefield.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "claim", "overrun", "reroute", "stranded", "recruit"
}

// SimStats are running totals since the simulation was built.
type SimStats struct {
	Expansions     int `json:"expansions"`
	Defenses       int `json:"defenses"`
	Reassignments  int `json:"reassignments"`
	Unreachable    int `json:"unreachable"`
	CapacitySkips  int `json:"capacity_skips"`
	Incorporations int `json:"incorporations"`
	Overruns       int `json:"overruns"`
}

// Invalidator is implemented by planners that cache search state across
// terrain changes.
type Invalidator interface {
	Invalidate(p world.Pos)
}

// Options configure a Simulation.
type Options struct {
	Planner  units.Planner
	Weights  territory.Weights
	Vision   visibility.Params
	FogOfWar bool
}

// Simulation holds the complete battlefield state. Step and every mutating
// method take the write lock; snapshots take the read lock.
type Simulation struct {
	mu sync.RWMutex

	Grid     *world.Grid
	Registry *territory.Registry
	Roster   *units.Roster
	Planner  units.Planner
	Vision   visibility.Params
	FogOfWar bool

	controllers []*territory.Controller
	byRegion    map[world.RegionID]*territory.Controller

	Sightings map[world.Side]visibility.Set
	Events    []Event
	LastTick  uint64
	Stats     SimStats
}

// NewSimulation builds a controller for every region in reg, in founding order.
func NewSimulation(g *world.Grid, reg *territory.Registry, roster *units.Roster, opts Options) (*Simulation, error) {
	if opts.Planner == nil {
		return nil, fmt.Errorf("new simulation: no planner")
	}
	s := &Simulation{
		Grid:      g,
		Registry:  reg,
		Roster:    roster,
		Planner:   opts.Planner,
		Vision:    opts.Vision,
		FogOfWar:  opts.FogOfWar,
		byRegion:  make(map[world.RegionID]*territory.Controller),
		Sightings: make(map[world.Side]visibility.Set),
	}
	for _, r := range reg.Regions() {
		c, err := territory.NewController(reg, r.ID, roster, opts.Planner, opts.Weights)
		if err != nil {
			return nil, fmt.Errorf("new simulation: %w", err)
		}
		s.controllers = append(s.controllers, c)
		s.byRegion[r.ID] = c
	}
	return s, nil
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// Step runs one tick: visibility, then region assignment in founding order,
// then one move per unit in ID order, then incorporation of arrivals. An
// invariant violation is returned and must stop the run.
func (s *Simulation) Step(tick uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateSightings()

	for _, c := range s.controllers {
		report, err := c.Tick()
		if err != nil {
			return fmt.Errorf("region %s: %w", c.Region().ID, err)
		}
		s.Stats.Expansions += report.Expansions
		s.Stats.Defenses += report.Defenses
		s.Stats.Reassignments += report.Reassignments
		s.Stats.Unreachable += report.Unreachable
		s.Stats.CapacitySkips += report.CapacitySkips
	}

	var arrived []*units.Unit
	for _, u := range s.Roster.All() {
		if u.Move() {
			arrived = append(arrived, u)
		}
	}

	for _, u := range arrived {
		if err := s.incorporate(tick, u); err != nil {
			return err
		}
	}

	if err := s.Registry.CheckInvariants(); err != nil {
		slog.Error("territory invariant violated", "tick", tick, "error", err)
		return err
	}

	s.LastTick = tick
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
	slog.Debug("tick", "tick", tick, "arrivals", len(arrived), "units", s.Roster.Len())
	return nil
}

func (s *Simulation) updateSightings() {
	for _, side := range []world.Side{world.SideA, world.SideB} {
		var observers []visibility.Observer
		for _, u := range s.Roster.BySide(side) {
			observers = append(observers, visibility.Observer{Pos: u.Pos, Facing: u.Facing})
		}
		s.Sightings[side] = visibility.SideVisibility(s.Grid, observers, s.Vision)
	}
	for _, c := range s.controllers {
		if s.FogOfWar {
			c.SetIntel(s.Sightings[c.Region().Side])
		} else {
			c.SetIntel(nil)
		}
	}
}

// incorporate hands an arrived unit's tile to its region when the unit was
// sent to take it. Guards arriving at their post change nothing.
func (s *Simulation) incorporate(tick uint64, u *units.Unit) error {
	reg, err := s.Registry.Region(u.Region)
	if err != nil {
		slog.Warn("unit arrived for unknown region", "unit", u.ID, "region", u.Region)
		return nil
	}
	if !reg.IsAssigned(u.Pos) {
		return nil
	}

	prev, held := s.Grid.Occupation(u.Pos)
	added, err := s.Registry.Incorporate(reg.ID, u.Pos)
	if err != nil {
		return fmt.Errorf("incorporate %s into %s: %w", u.Pos, reg.ID, err)
	}
	if !added {
		return nil
	}

	s.Stats.Incorporations++
	if held && prev.Side != reg.Side {
		s.Stats.Overruns++
		s.addEvent(tick, "overrun", fmt.Sprintf("%s took %s from %s", reg.ID, u.Pos, prev.Region))
	} else {
		s.addEvent(tick, "claim", fmt.Sprintf("%s claimed %s", reg.ID, u.Pos))
	}
	return nil
}

func (s *Simulation) addEvent(tick uint64, category, desc string) {
	s.Events = append(s.Events, Event{Tick: tick, Description: desc, Category: category})
}

// ChangeTerrain mutates a tile, tells a caching planner about it and re-plans
// every unit whose remaining route crosses the tile. Units that can no longer
// reach their goal drop their orders and the region forgets the claim.
func (s *Simulation) ChangeTerrain(p world.Pos, fn func(t *world.Tile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Grid.InBounds(p) {
		return fmt.Errorf("change terrain: %s out of bounds", p)
	}
	s.Grid.Update(p, fn)
	if inv, ok := s.Planner.(Invalidator); ok {
		inv.Invalidate(p)
	}

	for _, u := range s.Roster.All() {
		if !slices.Contains(u.Path, p) {
			continue
		}
		goal, ok := u.Goal()
		if !ok {
			continue
		}
		u.Path = nil
		if _, ok := u.HandleAssignedLocation(s.Planner, goal); ok {
			s.addEvent(s.LastTick, "reroute", fmt.Sprintf("unit %d rerouted to %s", u.ID, goal))
			continue
		}
		s.strand(u, goal)
	}
	return nil
}

func (s *Simulation) strand(u *units.Unit, goal world.Pos) {
	u.ClearOrders()
	if reg, err := s.Registry.Region(u.Region); err == nil {
		reg.Unassign(goal)
		if d, ok := u.Defense(); ok && d.Pos == goal {
			u.ReleaseDefense()
			reg.Unguard(goal)
		}
	}
	s.addEvent(s.LastTick, "stranded", fmt.Sprintf("unit %d can no longer reach %s", u.ID, goal))
}

// Recruit creates a unit for a region at pos.
func (s *Simulation) Recruit(regionID world.RegionID, pos world.Pos, weight float64) (*units.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.Registry.Region(regionID)
	if err != nil {
		return nil, fmt.Errorf("recruit: %w", err)
	}
	if !s.Grid.InBounds(pos) {
		return nil, fmt.Errorf("recruit: %s out of bounds", pos)
	}
	u := s.Roster.Recruit(reg.Side, reg.ID, pos, weight)
	reg.AssignUnit(u)
	s.addEvent(s.LastTick, "recruit", fmt.Sprintf("unit %d joined %s at %s", u.ID, reg.ID, pos))
	return u, nil
}

// Controller returns the controller of a region.
func (s *Simulation) Controller(id world.RegionID) (*territory.Controller, bool) {
	c, ok := s.byRegion[id]
	return c, ok
}

// Candidates returns a region's ranked targets as the next tick would see them.
func (s *Simulation) Candidates(id world.RegionID) ([]territory.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byRegion[id]
	if !ok {
		return nil, fmt.Errorf("candidates %s: %w", id, territory.ErrUnknownRegion)
	}
	return c.RankCandidates(), nil
}

// ReadLocked runs fn while holding the read lock so callers can copy state
// that has no snapshot view.
func (s *Simulation) ReadLocked(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}
