package pathing

import (
	"container/heap"
	"log/slog"
	"math"

	"github.com/talgya/frontline/internal/world"
)

var inf = math.Inf(1)

// Key is the two-part D* Lite priority, compared lexicographically.
type Key struct {
	K1 float64 // min(g, rhs) + h(start) + km
	K2 float64 // min(g, rhs)
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	if k.K1 != o.K1 {
		return k.K1 < o.K1
	}
	return k.K2 < o.K2
}

type queueItem struct {
	pos   world.Pos
	key   Key
	index int // heap index
}

// keyQueue is a min-heap of locally inconsistent nodes with O(log n) removal.
type keyQueue struct {
	items []*queueItem
	index map[world.Pos]*queueItem
}

func newKeyQueue() *keyQueue {
	return &keyQueue{index: make(map[world.Pos]*queueItem)}
}

func (q *keyQueue) Len() int           { return len(q.items) }
func (q *keyQueue) Less(i, j int) bool { return q.items[i].key.Less(q.items[j].key) }
func (q *keyQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}
func (q *keyQueue) Push(x interface{}) {
	it := x.(*queueItem)
	it.index = len(q.items)
	q.items = append(q.items, it)
	q.index[it.pos] = it
}
func (q *keyQueue) Pop() interface{} {
	old := q.items
	it := old[len(old)-1]
	old[len(old)-1] = nil
	q.items = old[:len(old)-1]
	delete(q.index, it.pos)
	it.index = -1
	return it
}

func (q *keyQueue) insert(p world.Pos, k Key) {
	heap.Push(q, &queueItem{pos: p, key: k})
}

func (q *keyQueue) remove(p world.Pos) {
	if it, ok := q.index[p]; ok {
		heap.Remove(q, it.index)
	}
}

func (q *keyQueue) top() (*queueItem, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// DStarLite is an incremental planner rooted at a goal. It keeps g (cost to
// goal) and rhs (one-step lookahead) estimates so that terrain changes and a
// moving start only repair the affected part of the search.
type DStarLite struct {
	grid  *world.Grid
	model CostModel

	start     world.Pos
	lastStart world.Pos
	goal      world.Pos

	heuristicWeight float64
	maxIterations   int
	km              float64

	g    map[world.Pos]float64
	rhs  map[world.Pos]float64
	open *keyQueue

	ins instruments
}

// DStarOption configures a DStarLite planner.
type DStarOption func(*DStarLite)

// WithHeuristicWeight scales the Manhattan heuristic (default 1).
func WithHeuristicWeight(w float64) DStarOption {
	return func(d *DStarLite) { d.heuristicWeight = w }
}

// WithMaxIterations bounds the pops per ComputeShortestPath or Settle call.
// Values ≤ 0 keep the default of sixteen pops per tile.
func WithMaxIterations(n int) DStarOption {
	return func(d *DStarLite) {
		if n > 0 {
			d.maxIterations = n
		}
	}
}

// NewDStarLite creates a planning session from start to goal.
func NewDStarLite(g *world.Grid, model CostModel, start, goal world.Pos, opts ...DStarOption) *DStarLite {
	d := &DStarLite{
		grid:            g,
		model:           model,
		start:           start,
		lastStart:       start,
		goal:            goal,
		heuristicWeight: 1.0,
		maxIterations:   16 * g.Len(),
		g:               make(map[world.Pos]float64),
		rhs:             make(map[world.Pos]float64),
		open:            newKeyQueue(),
		ins:             newInstruments(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.rhs[goal] = 0
	d.open.insert(goal, d.CalculateKey(goal))
	return d
}

// Start returns the current start position.
func (d *DStarLite) Start() world.Pos { return d.start }

// Goal returns the goal the session is rooted at.
func (d *DStarLite) Goal() world.Pos { return d.goal }

// G returns the current cost-to-goal estimate for p (+Inf when unknown).
func (d *DStarLite) G(p world.Pos) float64 {
	if v, ok := d.g[p]; ok {
		return v
	}
	return inf
}

// RHS returns the one-step lookahead estimate for p (+Inf when unknown).
func (d *DStarLite) RHS(p world.Pos) float64 {
	if v, ok := d.rhs[p]; ok {
		return v
	}
	return inf
}

func (d *DStarLite) heuristic(a, b world.Pos) float64 {
	return d.heuristicWeight * manhattan(a, b)
}

// CalculateKey returns the queue priority for p.
func (d *DStarLite) CalculateKey(p world.Pos) Key {
	m := math.Min(d.G(p), d.RHS(p))
	return Key{K1: m + d.heuristic(p, d.start) + d.km, K2: m}
}

func (d *DStarLite) cost(a, b world.Pos) float64 {
	return d.model.Cost(d.grid.Tile(a), d.grid.Tile(b))
}

func (d *DStarLite) neighbors(p world.Pos) []world.Pos {
	return d.grid.Neighbors(p, false)
}

// UpdateVertex recomputes rhs for p from its neighbours (the goal stays
// pinned at 0), drops any queued entry for p, and re-queues p if it is
// locally inconsistent.
func (d *DStarLite) UpdateVertex(p world.Pos) {
	if p != d.goal {
		best := inf
		for _, s := range d.neighbors(p) {
			best = math.Min(best, d.G(s)+d.cost(p, s))
		}
		d.rhs[p] = best
	}
	d.open.remove(p)
	if d.G(p) != d.RHS(p) {
		d.open.insert(p, d.CalculateKey(p))
	}
}

// ComputeShortestPath processes inconsistent nodes until the start is locally
// consistent and no queued key sorts before it. It returns false if the
// iteration bound stopped it early.
func (d *DStarLite) ComputeShortestPath() bool {
	return d.process(func() bool {
		top, ok := d.open.top()
		if !ok {
			return false
		}
		return top.key.Less(d.CalculateKey(d.start)) || d.RHS(d.start) != d.G(d.start)
	})
}

// Settle drains the queue so every node is locally consistent, turning g into
// the full cost-to-goal field. It returns false if the iteration bound
// stopped it early.
func (d *DStarLite) Settle() bool {
	return d.process(func() bool { return d.open.Len() > 0 })
}

func (d *DStarLite) process(more func() bool) bool {
	iterations := 0
	defer func() { d.ins.recordSearch("dstar", iterations) }()

	for more() {
		if iterations >= d.maxIterations {
			slog.Debug("dstar iteration bound reached", "start", d.start, "goal", d.goal, "iterations", iterations)
			return false
		}
		iterations++

		u := heap.Pop(d.open).(*queueItem)
		kOld := u.key
		kNew := d.CalculateKey(u.pos)

		switch {
		case kOld.Less(kNew):
			d.open.insert(u.pos, kNew)
		case d.G(u.pos) > d.RHS(u.pos):
			d.g[u.pos] = d.RHS(u.pos)
			for _, s := range d.neighbors(u.pos) {
				d.UpdateVertex(s)
			}
		default:
			d.g[u.pos] = inf
			d.UpdateVertex(u.pos)
			for _, s := range d.neighbors(u.pos) {
				d.UpdateVertex(s)
			}
		}
	}
	return true
}

// MoveStart re-roots the search at a new start, inflating km by the
// heuristic distance travelled so existing keys stay valid lower bounds.
func (d *DStarLite) MoveStart(p world.Pos) {
	if p == d.start {
		return
	}
	d.km += d.heuristic(d.lastStart, p)
	d.lastStart = p
	d.start = p
}

// TileChanged tells the planner that the tile at p changed. Both edges into p
// and out of p may have new costs, so p and all its neighbours are updated.
func (d *DStarLite) TileChanged(p world.Pos) {
	d.ins.recordRepair()
	d.UpdateVertex(p)
	for _, s := range d.neighbors(p) {
		d.UpdateVertex(s)
	}
}

// Path greedily follows the cheapest step + rhs from start toward the goal.
// When the goal is unreachable the returned sequence stops short of it;
// callers must check the last element.
func (d *DStarLite) Path() []world.Pos {
	path := []world.Pos{d.start}
	current := d.start
	visited := map[world.Pos]bool{current: true}

	for current != d.goal && len(path) <= d.grid.Len() {
		next, best := current, inf
		for _, s := range d.neighbors(current) {
			c := d.cost(current, s)
			if math.IsInf(c, 1) {
				continue
			}
			if total := c + d.RHS(s); total < best {
				best = total
				next = s
			}
		}
		if next == current || math.IsInf(best, 1) || visited[next] {
			break
		}
		visited[next] = true
		current = next
		path = append(path, current)
	}
	return path
}

// Reaches reports whether path ends at the session's goal.
func (d *DStarLite) Reaches(path []world.Pos) bool {
	return len(path) > 0 && path[len(path)-1] == d.goal
}
