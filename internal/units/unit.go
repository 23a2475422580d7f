// Package units provides the unit data model and its tasking state machine.
// Units never hold pointers to regions or the grid; they carry a region ID
// and ask a Planner for routes.
package units

import (
	"log/slog"

	"github.com/talgya/frontline/internal/world"
)

// ID is a unique identifier for a unit.
type ID uint64

// Tasking is what a unit is doing this tick.
type Tasking uint8

const (
	Hold Tasking = iota // no orders or waiting in place
	Move                // following a path
)

func (t Tasking) String() string {
	if t == Move {
		return "MOVE"
	}
	return "HOLD"
}

// Defense is a guard order: the tile held and the score it was assigned at.
// A competing candidate must beat Priority to pull the unit away.
type Defense struct {
	Pos      world.Pos `json:"pos"`
	Priority float64   `json:"priority"`
}

// Planner turns a goal into a route for a unit of the given weight. An empty
// or nil result means the goal is unreachable.
type Planner interface {
	Plan(from, to world.Pos, weight float64) []world.Pos
}

// Unit is a single manoeuvre element on the grid.
type Unit struct {
	ID     ID             `json:"id"`
	Side   world.Side     `json:"side"`
	Region world.RegionID `json:"region"`
	Pos    world.Pos      `json:"pos"`
	Weight float64        `json:"weight"` // terrain-cost multiplier

	Path    []world.Pos     `json:"path,omitempty"` // consumed front to back
	Tasking Tasking         `json:"tasking"`
	Facing  world.Direction `json:"facing"`

	defense *Defense
	goal    world.Pos
	hasGoal bool
}

// New creates a holding unit with no orders.
func New(id ID, side world.Side, region world.RegionID, pos world.Pos, weight float64) *Unit {
	return &Unit{
		ID:      id,
		Side:    side,
		Region:  region,
		Pos:     pos,
		Weight:  weight,
		Tasking: Hold,
		Facing:  world.DirNone,
	}
}

// AssignRegion moves the unit under another region's command.
func (u *Unit) AssignRegion(id world.RegionID) {
	u.Region = id
}

// IsIdle reports whether the unit is holding.
func (u *Unit) IsIdle() bool {
	return u.Tasking == Hold
}

// IsDefending reports whether the unit carries a guard order.
func (u *Unit) IsDefending() bool {
	return u.defense != nil
}

// Defense returns the current guard order, if any.
func (u *Unit) Defense() (Defense, bool) {
	if u.defense == nil {
		return Defense{}, false
	}
	return *u.defense, true
}

// Defend records a guard order on pos at the given priority.
func (u *Unit) Defend(pos world.Pos, priority float64) {
	u.defense = &Defense{Pos: pos, Priority: priority}
}

// ReleaseDefense drops the guard order and returns it.
func (u *Unit) ReleaseDefense() (Defense, bool) {
	d, ok := u.Defense()
	u.defense = nil
	return d, ok
}

// Goal returns the position the unit is heading for.
func (u *Unit) Goal() (world.Pos, bool) {
	return u.goal, u.hasGoal
}

// HandleAssignedLocation routes the unit to goal. The path is computed once
// per goal and cached; a leading element equal to the current position is
// dropped. It returns false when the goal cannot be reached, leaving the unit
// without orders.
func (u *Unit) HandleAssignedLocation(planner Planner, goal world.Pos) ([]world.Pos, bool) {
	if u.hasGoal && u.goal == goal && len(u.Path) > 0 {
		return u.Path, true
	}

	var path []world.Pos
	if u.Pos != goal {
		path = planner.Plan(u.Pos, goal, u.Weight)
		if len(path) == 0 || path[len(path)-1] != goal {
			slog.Debug("unit cannot reach goal", "unit", u.ID, "from", u.Pos, "goal", goal)
			return nil, false
		}
		if path[0] == u.Pos {
			path = path[1:]
		}
	}

	u.Path = path
	u.goal = goal
	u.hasGoal = true
	u.Tasking = Move
	return u.Path, true
}

// Move advances the unit one step along its path and reports whether that
// step (or an empty path while standing on the goal) completed its orders.
// A unit with nothing left to do falls back to Hold.
func (u *Unit) Move() bool {
	if len(u.Path) == 0 {
		arrived := u.hasGoal && u.Pos == u.goal
		u.hasGoal = false
		u.hold()
		return arrived
	}

	next := u.Path[0]
	u.Path = u.Path[1:]
	u.Facing = world.VectorToDirection(next.X-u.Pos.X, next.Y-u.Pos.Y)
	u.Tasking = Move
	u.Pos = next

	if len(u.Path) == 0 && u.hasGoal && u.Pos == u.goal {
		u.hasGoal = false
		return true
	}
	return false
}

// ClearOrders drops the path and goal and puts the unit on Hold. Guard
// orders are kept.
func (u *Unit) ClearOrders() {
	u.Path = nil
	u.hasGoal = false
	u.hold()
}

// RestoreOrders reinstates a saved route toward goal.
func (u *Unit) RestoreOrders(path []world.Pos, goal world.Pos) {
	u.Path = path
	u.goal = goal
	u.hasGoal = true
	u.Tasking = Move
}

func (u *Unit) hold() {
	u.Tasking = Hold
	u.Facing = world.DirNone
}
