package pathing

import (
	"container/heap"
	"log/slog"
	"math"

	"github.com/talgya/frontline/internal/world"
)

// --- A* pathfinding ---

type openEntry struct {
	pos world.Pos
	g   float64
	f   float64
	seq int // insertion order, breaks f ties
}

type openList []openEntry

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	if ol[i].f != ol[j].f {
		return ol[i].f < ol[j].f
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int)       { ol[i], ol[j] = ol[j], ol[i] }
func (ol *openList) Push(x interface{}) { *ol = append(*ol, x.(openEntry)) }
func (ol *openList) Pop() interface{} {
	old := *ol
	n := old[len(old)-1]
	*ol = old[:len(old)-1]
	return n
}

// AStar is a one-shot best-first search ordered by g + Manhattan distance.
// The heuristic assumes every step costs at least 1; cost models that price
// steps below that can make it overestimate, so the returned path is the
// cheapest one found rather than a guaranteed optimum.
type AStar struct {
	grid     *world.Grid
	model    CostModel
	diagonal bool
	maxNodes int

	gScore   map[world.Pos]float64
	cameFrom map[world.Pos]world.Pos
	expanded int

	ins instruments
}

// AStarOption configures an AStar search.
type AStarOption func(*AStar)

// WithDiagonal enables or disables the four diagonal moves (default on).
func WithDiagonal(enabled bool) AStarOption {
	return func(a *AStar) { a.diagonal = enabled }
}

// WithMaxExpansions bounds the number of nodes popped before giving up.
// Values ≤ 0 keep the default of eight pops per tile.
func WithMaxExpansions(n int) AStarOption {
	return func(a *AStar) {
		if n > 0 {
			a.maxNodes = n
		}
	}
}

// NewAStar creates a search over g priced by model.
func NewAStar(g *world.Grid, model CostModel, opts ...AStarOption) *AStar {
	a := &AStar{
		grid:     g,
		model:    model,
		diagonal: true,
		maxNodes: 8 * g.Len(),
		ins:      newInstruments(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FindPath returns the positions from start to goal inclusive, or nil when the
// goal cannot be reached (or the expansion bound is hit first).
func (a *AStar) FindPath(start, goal world.Pos) []world.Pos {
	a.gScore = map[world.Pos]float64{start: 0}
	a.cameFrom = make(map[world.Pos]world.Pos)
	a.expanded = 0
	defer func() { a.ins.recordSearch("astar", a.expanded) }()

	seq := 0
	ol := &openList{{pos: start, g: 0, f: manhattan(start, goal)}}
	heap.Init(ol)

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(openEntry)
		// Stale entry: a cheaper route to this node was queued after it.
		if cur.g > a.gScore[cur.pos] {
			continue
		}
		if cur.pos == goal {
			return a.reconstruct(cur.pos)
		}

		a.expanded++
		if a.expanded > a.maxNodes {
			slog.Debug("astar expansion bound reached", "start", start, "goal", goal, "expanded", a.expanded)
			return nil
		}

		from := a.grid.Tile(cur.pos)
		for _, n := range a.grid.Neighbors(cur.pos, a.diagonal) {
			to := a.grid.Tile(n)
			if to.Water {
				continue
			}
			tentative := cur.g + a.model.Cost(from, to)
			if math.IsInf(tentative, 1) {
				continue
			}
			if prev, ok := a.gScore[n]; ok && tentative >= prev {
				continue
			}
			a.cameFrom[n] = cur.pos
			a.gScore[n] = tentative
			seq++
			heap.Push(ol, openEntry{pos: n, g: tentative, f: tentative + manhattan(n, goal), seq: seq})
		}
	}
	return nil
}

func (a *AStar) reconstruct(current world.Pos) []world.Pos {
	path := []world.Pos{current}
	for {
		prev, ok := a.cameFrom[current]
		if !ok {
			break
		}
		current = prev
		path = append(path, current)
	}
	// Reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// GScore returns the best-known accumulated cost to p from the last search.
func (a *AStar) GScore(p world.Pos) (float64, bool) {
	g, ok := a.gScore[p]
	return g, ok
}

// Expanded returns how many nodes the last search expanded.
func (a *AStar) Expanded() int {
	return a.expanded
}

// FindPath is the grid query surface: a stealth-neutral, 8-directional search
// for a unit of the given weight.
func FindPath(g *world.Grid, weight float64, start, goal world.Pos) []world.Pos {
	return NewAStar(g, StealthCost{UnitWeight: weight}).FindPath(start, goal)
}
