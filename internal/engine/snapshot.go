package engine

import (
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/world"
)

// RegionView is a read-only copy of a region for observers.
type RegionView struct {
	ID        world.RegionID `json:"id"`
	Side      string         `json:"side"`
	Capacity  int            `json:"capacity"`
	Anchor    world.Pos      `json:"anchor"`
	Tiles     []world.Pos    `json:"tiles"`
	Assigned  []world.Pos    `json:"assigned"`
	Guarded   []world.Pos    `json:"guarded"`
	Frontier  int            `json:"frontier"`
	Interior  int            `json:"interior"`
	Units     []units.ID     `json:"units"`
	Interests []world.Pos    `json:"interests"`
}

// UnitView is a read-only copy of a unit for observers.
type UnitView struct {
	ID        units.ID       `json:"id"`
	Side      string         `json:"side"`
	Region    world.RegionID `json:"region"`
	Pos       world.Pos      `json:"pos"`
	Weight    float64        `json:"weight"`
	Tasking   string         `json:"tasking"`
	Facing    string         `json:"facing"`
	Goal      *world.Pos     `json:"goal,omitempty"`
	Path      []world.Pos    `json:"path,omitempty"`
	Defending *units.Defense `json:"defending,omitempty"`
}

// TileView is one tile of the map with its owner, if any.
type TileView struct {
	Pos       world.Pos      `json:"pos"`
	Maneuver  int            `json:"maneuver"`
	Elevation int            `json:"elevation"`
	Water     bool           `json:"water,omitempty"`
	Resources int            `json:"resources,omitempty"`
	Owner     world.RegionID `json:"owner,omitempty"`
	Side      string         `json:"side,omitempty"`
}

// Snapshot is a consistent copy of the battlefield at one tick.
type Snapshot struct {
	Tick    uint64       `json:"tick"`
	Regions []RegionView `json:"regions"`
	Units   []UnitView   `json:"units"`
	Stats   SimStats     `json:"stats"`
	Events  []Event      `json:"events"`
}

// MapView is the whole grid with ownership.
type MapView struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Tiles  []TileView `json:"tiles"`
}

// Snapshot copies regions, units, stats and the most recent events.
func (s *Simulation) Snapshot(recentEvents int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Tick: s.LastTick, Stats: s.Stats}
	for _, c := range s.controllers {
		r := c.Region()
		tiles := r.ControlledTiles()
		interior := 0
		for _, p := range tiles {
			if c.IsInterior(p) {
				interior++
			}
		}
		snap.Regions = append(snap.Regions, RegionView{
			ID:        r.ID,
			Side:      r.Side.String(),
			Capacity:  r.Capacity,
			Anchor:    r.Anchor(),
			Tiles:     tiles,
			Assigned:  r.AssignedTiles(),
			Guarded:   r.GuardedTiles(),
			Frontier:  len(r.FrontierTiles(s.Grid)),
			Interior:  interior,
			Units:     r.Units(),
			Interests: c.CachedInterests(),
		})
	}
	for _, u := range s.Roster.All() {
		snap.Units = append(snap.Units, viewUnit(u))
	}

	start := max(0, len(s.Events)-recentEvents)
	snap.Events = append([]Event(nil), s.Events[start:]...)
	return snap
}

func viewUnit(u *units.Unit) UnitView {
	v := UnitView{
		ID:      u.ID,
		Side:    u.Side.String(),
		Region:  u.Region,
		Pos:     u.Pos,
		Weight:  u.Weight,
		Tasking: u.Tasking.String(),
		Facing:  u.Facing.String(),
		Path:    append([]world.Pos(nil), u.Path...),
	}
	if g, ok := u.Goal(); ok {
		v.Goal = &g
	}
	if d, ok := u.Defense(); ok {
		v.Defending = &d
	}
	return v
}

// Map copies every tile with its current owner.
func (s *Simulation) Map() MapView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mv := MapView{Width: s.Grid.Width(), Height: s.Grid.Height()}
	for _, p := range s.Grid.Positions() {
		t := s.Grid.Tile(p)
		tv := TileView{
			Pos:       p,
			Maneuver:  t.Maneuver,
			Elevation: t.Elevation,
			Water:     t.Water,
			Resources: t.ResourceValue(),
		}
		if occ, ok := s.Grid.Occupation(p); ok {
			tv.Owner = occ.Region
			tv.Side = occ.Side.String()
		}
		mv.Tiles = append(mv.Tiles, tv)
	}
	return mv
}

// TileDetail is a single tile with every attribute and who can see it.
type TileDetail struct {
	world.Tile
	Owner  world.RegionID `json:"owner,omitempty"`
	Side   string         `json:"side,omitempty"`
	SeenBy []string       `json:"seen_by"`
}

// TileAt copies one tile, or reports false when p is off the grid.
func (s *Simulation) TileAt(p world.Pos) (TileDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.Grid.Lookup(p)
	if !ok {
		return TileDetail{}, false
	}
	d := TileDetail{Tile: *t, SeenBy: []string{}}
	if occ, ok := s.Grid.Occupation(p); ok {
		d.Owner = occ.Region
		d.Side = occ.Side.String()
	}
	for _, side := range []world.Side{world.SideA, world.SideB} {
		if s.Sightings[side].Has(p) {
			d.SeenBy = append(d.SeenBy, side.String())
		}
	}
	return d, true
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(0, len(s.Events)-n)
	return append([]Event(nil), s.Events[start:]...)
}
