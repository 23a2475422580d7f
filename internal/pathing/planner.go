package pathing

import (
	"log/slog"

	"github.com/talgya/frontline/internal/world"
)

// StaticPlanner answers each request with a fresh A* search.
type StaticPlanner struct {
	Grid            *world.Grid
	StealthPriority float64
	Diagonal        bool
	MaxExpansions   int
}

// NewStaticPlanner returns an 8-directional, stealth-neutral planner.
func NewStaticPlanner(g *world.Grid) *StaticPlanner {
	return &StaticPlanner{Grid: g, Diagonal: true}
}

// Plan returns a path from start to goal inclusive, or nil if unreachable.
func (p *StaticPlanner) Plan(from, to world.Pos, weight float64) []world.Pos {
	model := StealthCost{UnitWeight: weight, StealthPriority: p.StealthPriority}
	return NewAStar(p.Grid, model,
		WithDiagonal(p.Diagonal),
		WithMaxExpansions(p.MaxExpansions),
	).FindPath(from, to)
}

type sessionKey struct {
	goal   world.Pos
	weight float64
}

// IncrementalPlanner keeps one D* Lite session per (goal, weight) and reuses
// it across requests. Units heading for the same goal share the search tree;
// terrain changes are pushed into every live session with Invalidate.
type IncrementalPlanner struct {
	Grid              *world.Grid
	StealthPreference float64
	MaxIterations     int

	sessions map[sessionKey]*DStarLite
}

// NewIncrementalPlanner creates an empty session cache over g.
func NewIncrementalPlanner(g *world.Grid) *IncrementalPlanner {
	return &IncrementalPlanner{
		Grid:     g,
		sessions: make(map[sessionKey]*DStarLite),
	}
}

// Plan re-roots (or creates) the session for goal at from and returns the
// repaired route. A route that does not end at goal means unreachable; nil is
// returned in that case.
func (p *IncrementalPlanner) Plan(from, to world.Pos, weight float64) []world.Pos {
	key := sessionKey{goal: to, weight: weight}
	s, ok := p.sessions[key]
	if !ok {
		model := TerrainCost{UnitWeight: weight, StealthPreference: p.StealthPreference}
		s = NewDStarLite(p.Grid, model, from, to, WithMaxIterations(p.MaxIterations))
		p.sessions[key] = s
	} else {
		s.MoveStart(from)
	}

	if !s.ComputeShortestPath() {
		return nil
	}
	path := s.Path()
	if !s.Reaches(path) {
		// The greedy walk can stall on rhs values outside the repaired
		// region; settle the whole field once before declaring it unreachable.
		if !s.Settle() {
			return nil
		}
		path = s.Path()
	}
	if !s.Reaches(path) {
		slog.Debug("incremental planner: goal unreachable", "from", from, "goal", to)
		return nil
	}
	return path
}

// Invalidate notifies every live session that the tile at pos changed.
func (p *IncrementalPlanner) Invalidate(pos world.Pos) {
	for _, s := range p.sessions {
		s.TileChanged(pos)
	}
}

// Forget drops every session rooted at goal.
func (p *IncrementalPlanner) Forget(goal world.Pos) {
	for k := range p.sessions {
		if k.goal == goal {
			delete(p.sessions, k)
		}
	}
}

// Sessions returns the number of live sessions.
func (p *IncrementalPlanner) Sessions() int {
	return len(p.sessions)
}
