package territory

import (
	"fmt"
	"sort"

	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/world"
)

// Region is a capacity-bounded set of tiles held by one side.
type Region struct {
	ID       world.RegionID
	Side     world.Side
	Capacity int

	anchor world.Pos
	index  *Index

	controlled map[world.Pos]struct{}
	assigned   map[world.Pos]units.ID // in-flight expansion targets
	guarded    map[world.Pos]units.ID
	roster     []units.ID

	footprint uint64
}

func newRegion(id world.RegionID, side world.Side, capacity int, anchor world.Pos, ix *Index) *Region {
	return &Region{
		ID:         id,
		Side:       side,
		Capacity:   capacity,
		anchor:     anchor,
		index:      ix,
		controlled: make(map[world.Pos]struct{}),
		assigned:   make(map[world.Pos]units.ID),
		guarded:    make(map[world.Pos]units.ID),
	}
}

// Anchor is the first tile the region was founded on.
func (r *Region) Anchor() world.Pos { return r.anchor }

// CanExpand reports whether the region is below capacity.
func (r *Region) CanExpand() bool {
	return len(r.controlled) < r.Capacity
}

// hasRoom also counts tiles that units are already on their way to take.
func (r *Region) hasRoom() bool {
	return len(r.controlled)+len(r.assigned) < r.Capacity
}

// Controls reports whether p is in the controlled set.
func (r *Region) Controls(p world.Pos) bool {
	_, ok := r.controlled[p]
	return ok
}

// Size returns the number of controlled tiles.
func (r *Region) Size() int { return len(r.controlled) }

// ControlledTiles returns the controlled set in row-major order.
func (r *Region) ControlledTiles() []world.Pos {
	return sortedKeys(r.controlled)
}

// FrontierTiles returns controlled tiles with at least one in-bounds
// 4-neighbour the region does not control.
func (r *Region) FrontierTiles(g *world.Grid) []world.Pos {
	var out []world.Pos
	for _, p := range r.ControlledTiles() {
		for _, n := range g.Neighbors(p, false) {
			if !r.Controls(n) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// AddTile brings p under control. It is a no-op (false, nil) when p is
// already held or the region is at capacity, and an error if another region
// owns p.
func (r *Region) AddTile(p world.Pos) (bool, error) {
	if r.Controls(p) || !r.CanExpand() {
		return false, nil
	}
	if err := r.index.claim(p, world.Occupation{Side: r.Side, Region: r.ID}); err != nil {
		return false, err
	}
	r.controlled[p] = struct{}{}
	delete(r.assigned, p)
	r.footprint++
	return true, nil
}

// RemoveTile evicts p regardless of capacity and drops any guard on it.
func (r *Region) RemoveTile(p world.Pos) bool {
	if !r.Controls(p) {
		return false
	}
	delete(r.controlled, p)
	delete(r.guarded, p)
	r.index.release(p, r.ID)
	r.footprint++
	return true
}

// Footprint changes whenever the controlled set does.
func (r *Region) Footprint() uint64 { return r.footprint }

// AssignUnit puts u under this region's command.
func (r *Region) AssignUnit(u *units.Unit) {
	u.AssignRegion(r.ID)
	for _, id := range r.roster {
		if id == u.ID {
			return
		}
	}
	r.roster = append(r.roster, u.ID)
}

// DropUnit removes a unit from the roster and clears anything it claimed.
func (r *Region) DropUnit(id units.ID) {
	for i, rid := range r.roster {
		if rid == id {
			r.roster = append(r.roster[:i], r.roster[i+1:]...)
			break
		}
	}
	for p, uid := range r.assigned {
		if uid == id {
			delete(r.assigned, p)
		}
	}
	for p, uid := range r.guarded {
		if uid == id {
			delete(r.guarded, p)
		}
	}
}

// Units returns the roster in assignment order.
func (r *Region) Units() []units.ID {
	return append([]units.ID(nil), r.roster...)
}

// IsAssigned reports whether a unit is already on its way to take p.
func (r *Region) IsAssigned(p world.Pos) bool {
	_, ok := r.assigned[p]
	return ok
}

// AssignedTiles returns in-flight expansion targets in row-major order.
func (r *Region) AssignedTiles() []world.Pos { return sortedKeys(r.assigned) }

// AssignedTo returns the unit sent to take p.
func (r *Region) AssignedTo(p world.Pos) (units.ID, bool) {
	id, ok := r.assigned[p]
	return id, ok
}

// IsGuarded reports whether a defender holds p.
func (r *Region) IsGuarded(p world.Pos) bool {
	_, ok := r.guarded[p]
	return ok
}

// GuardedTiles returns guarded positions in row-major order.
func (r *Region) GuardedTiles() []world.Pos { return sortedKeys(r.guarded) }

// Assign marks p as the target of unit id.
func (r *Region) Assign(p world.Pos, id units.ID) error {
	if r.Controls(p) {
		return fmt.Errorf("%w: %s assigned to %s but already controlled", ErrInvariantViolation, p, r.ID)
	}
	r.assigned[p] = id
	return nil
}

// Unassign clears an in-flight target.
func (r *Region) Unassign(p world.Pos) { delete(r.assigned, p) }

// GuardedBy returns the defender of p.
func (r *Region) GuardedBy(p world.Pos) (units.ID, bool) {
	id, ok := r.guarded[p]
	return id, ok
}

// Guard records unit id as the defender of p.
func (r *Region) Guard(p world.Pos, id units.ID) { r.guarded[p] = id }

// Unguard clears the defender of p.
func (r *Region) Unguard(p world.Pos) { delete(r.guarded, p) }

func sortedKeys[V any](m map[world.Pos]V) []world.Pos {
	out := make([]world.Pos, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return world.Less(out[i], out[j]) })
	return out
}
