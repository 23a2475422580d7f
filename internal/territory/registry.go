package territory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/world"
)

// Registry owns the ownership index and every region.
type Registry struct {
	grid    *world.Grid
	index   *Index
	regions map[world.RegionID]*Region
	order   []world.RegionID

	ins instruments
}

// NewRegistry creates an empty registry and attaches its index to g.
func NewRegistry(g *world.Grid) *Registry {
	r := &Registry{
		grid:    g,
		index:   NewIndex(),
		regions: make(map[world.RegionID]*Region),
		ins:     newInstruments(),
	}
	g.AttachOwnership(r.index)
	return r
}

// Grid returns the grid the registry tracks.
func (r *Registry) Grid() *world.Grid { return r.grid }

// Index returns the ownership index.
func (r *Registry) Index() *Index { return r.index }

// Found creates a region seeded with the given tiles. The first seed tile
// becomes the anchor.
func (r *Registry) Found(id world.RegionID, side world.Side, capacity int, seed []world.Pos) (*Region, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("found %s: no seed tiles", id)
	}
	reg, err := r.Restore(id, side, capacity, seed[0], seed)
	if err != nil {
		return nil, err
	}
	slog.Info("region founded", "region", id, "side", side, "capacity", capacity, "anchor", seed[0])
	return reg, nil
}

// Restore recreates a region with an explicit anchor and controlled set. The
// set may be empty and need not contain the anchor (used when loading saved
// state).
func (r *Registry) Restore(id world.RegionID, side world.Side, capacity int, anchor world.Pos, tiles []world.Pos) (*Region, error) {
	if _, ok := r.regions[id]; ok {
		return nil, fmt.Errorf("found %s: %w", id, ErrRegionExists)
	}
	if side == world.SideNone {
		return nil, fmt.Errorf("found %s: no side", id)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("found %s: capacity %d < 1", id, capacity)
	}
	if len(tiles) > capacity {
		return nil, fmt.Errorf("found %s: %d tiles exceed capacity %d", id, len(tiles), capacity)
	}
	if !r.grid.InBounds(anchor) {
		return nil, fmt.Errorf("found %s: anchor %s out of bounds", id, anchor)
	}
	for _, p := range tiles {
		if !r.grid.InBounds(p) {
			return nil, fmt.Errorf("found %s: tile %s out of bounds", id, p)
		}
	}

	reg := newRegion(id, side, capacity, anchor, r.index)
	for _, p := range tiles {
		if _, err := reg.AddTile(p); err != nil {
			for _, q := range reg.ControlledTiles() {
				reg.RemoveTile(q)
			}
			return nil, fmt.Errorf("found %s: %w", id, err)
		}
	}
	r.regions[id] = reg
	r.order = append(r.order, id)
	return reg, nil
}

// Region looks up a region by ID.
func (r *Registry) Region(id world.RegionID) (*Region, error) {
	reg, ok := r.regions[id]
	if !ok {
		return nil, fmt.Errorf("region %s: %w", id, ErrUnknownRegion)
	}
	return reg, nil
}

// Regions returns every region in founding order.
func (r *Registry) Regions() []*Region {
	out := make([]*Region, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.regions[id])
	}
	return out
}

// ClaimedBySide reports whether any region of side is already sending a unit
// to p.
func (r *Registry) ClaimedBySide(side world.Side, p world.Pos) bool {
	for _, reg := range r.regions {
		if reg.Side == side && reg.IsAssigned(p) {
			return true
		}
	}
	return false
}

// Incorporate is called when a unit of regionID arrives on p. An opposing
// owner is evicted first; a friendly owner means another region got there
// first and nothing changes. The in-flight mark on p is always cleared.
func (r *Registry) Incorporate(regionID world.RegionID, p world.Pos) (bool, error) {
	reg, err := r.Region(regionID)
	if err != nil {
		return false, err
	}
	reg.Unassign(p)
	if reg.Controls(p) || !reg.CanExpand() {
		return false, nil
	}

	if owner, ok := r.index.OwnerOf(p); ok {
		if owner.Side == reg.Side {
			return false, nil
		}
		loser, ok := r.regions[owner.Region]
		if !ok || !loser.RemoveTile(p) {
			return false, fmt.Errorf("%w: %s indexed to %s which does not hold it", ErrInvariantViolation, p, owner.Region)
		}
		slog.Debug("tile overrun", "pos", p, "from", owner.Region, "to", reg.ID)
	}

	added, err := reg.AddTile(p)
	if err != nil {
		return false, err
	}
	if added {
		r.ins.recordIncorporation(reg.ID)
	}
	return added, nil
}

// Release evicts p from a region.
func (r *Registry) Release(regionID world.RegionID, p world.Pos) (bool, error) {
	reg, err := r.Region(regionID)
	if err != nil {
		return false, err
	}
	return reg.RemoveTile(p), nil
}

// Disband drops a unit from whichever region commands it.
func (r *Registry) Disband(u *units.Unit) {
	if reg, ok := r.regions[u.Region]; ok {
		reg.DropUnit(u.ID)
	}
}

// CheckInvariants verifies capacity bounds, single ownership and that no
// assigned tile is already controlled. Every violation found is returned,
// each wrapping ErrInvariantViolation.
func (r *Registry) CheckInvariants() error {
	var errs []error
	for _, reg := range r.Regions() {
		if reg.Size() > reg.Capacity {
			errs = append(errs, fmt.Errorf("%w: %s holds %d tiles over capacity %d", ErrInvariantViolation, reg.ID, reg.Size(), reg.Capacity))
		}
		for _, p := range reg.ControlledTiles() {
			owner, ok := r.index.OwnerOf(p)
			if !ok || owner.Region != reg.ID || owner.Side != reg.Side {
				errs = append(errs, fmt.Errorf("%w: %s controlled by %s but indexed to %q", ErrInvariantViolation, p, reg.ID, owner.Region))
			}
		}
		for _, p := range reg.AssignedTiles() {
			if reg.Controls(p) {
				errs = append(errs, fmt.Errorf("%w: %s both assigned and controlled in %s", ErrInvariantViolation, p, reg.ID))
			}
		}
	}
	for p, owner := range r.index.owners {
		reg, ok := r.regions[owner.Region]
		if !ok || !reg.Controls(p) {
			errs = append(errs, fmt.Errorf("%w: %s indexed to %s which does not hold it", ErrInvariantViolation, p, owner.Region))
		}
	}
	return errors.Join(errs...)
}
