package units

import (
	"fmt"
	"sort"

	"github.com/talgya/frontline/internal/world"
)

// Roster owns every unit in the simulation. Everything else refers to units
// by ID.
type Roster struct {
	units  map[ID]*Unit
	nextID ID
}

// NewRoster creates an empty roster whose first recruit gets ID 1.
func NewRoster() *Roster {
	return &Roster{
		units:  make(map[ID]*Unit),
		nextID: 1,
	}
}

// Recruit creates a unit with the next free ID.
func (r *Roster) Recruit(side world.Side, region world.RegionID, pos world.Pos, weight float64) *Unit {
	u := New(r.nextID, side, region, pos, weight)
	r.nextID++
	r.units[u.ID] = u
	return u
}

// Add inserts a unit that already has an ID (used when restoring from DB).
func (r *Roster) Add(u *Unit) error {
	if u.ID == 0 {
		return fmt.Errorf("unit has no id")
	}
	if _, ok := r.units[u.ID]; ok {
		return fmt.Errorf("unit %d already on roster", u.ID)
	}
	r.units[u.ID] = u
	if u.ID >= r.nextID {
		r.nextID = u.ID + 1
	}
	return nil
}

// Get returns the unit with the given ID.
func (r *Roster) Get(id ID) (*Unit, bool) {
	u, ok := r.units[id]
	return u, ok
}

// Remove deletes a unit. Removing an unknown ID is a no-op.
func (r *Roster) Remove(id ID) {
	delete(r.units, id)
}

// Len returns the number of units.
func (r *Roster) Len() int { return len(r.units) }

// All returns every unit in ID order.
func (r *Roster) All() []*Unit {
	return r.filter(func(*Unit) bool { return true })
}

// BySide returns the units of one side in ID order.
func (r *Roster) BySide(side world.Side) []*Unit {
	return r.filter(func(u *Unit) bool { return u.Side == side })
}

// ByRegion returns the units commanded by a region in ID order.
func (r *Roster) ByRegion(id world.RegionID) []*Unit {
	return r.filter(func(u *Unit) bool { return u.Region == id })
}

func (r *Roster) filter(keep func(*Unit) bool) []*Unit {
	out := make([]*Unit, 0, len(r.units))
	for _, u := range r.units {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
