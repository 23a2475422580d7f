package pathing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/frontline/internal/world"
)

func uniformGrid(w, h, maneuver int) *world.Grid {
	g := world.NewGrid(w, h)
	for _, p := range g.Positions() {
		g.Tile(p).Maneuver = maneuver
	}
	return g
}

func randomDryGrid(seed int64, w, h int) *world.Grid {
	rng := rand.New(rand.NewSource(seed))
	g := world.NewGrid(w, h)
	for _, p := range g.Positions() {
		t := g.Tile(p)
		t.Maneuver = -rng.Intn(5)
		t.Elevation = rng.Intn(10)
		t.Concealment = rng.Intn(101)
		t.Cover = rng.Intn(101)
	}
	return g
}

func ringWater(g *world.Grid, center world.Pos) {
	for _, n := range g.Neighbors(center, true) {
		g.Tile(n).Water = true
	}
}

// referenceCostToGoal relaxes every edge until nothing changes.
func referenceCostToGoal(g *world.Grid, model CostModel, goal world.Pos) map[world.Pos]float64 {
	dist := make(map[world.Pos]float64, g.Len())
	for _, p := range g.Positions() {
		dist[p] = math.Inf(1)
	}
	dist[goal] = 0
	for changed := true; changed; {
		changed = false
		for _, p := range g.Positions() {
			if p == goal {
				continue
			}
			for _, s := range g.Neighbors(p, false) {
				if v := dist[s] + model.Cost(g.Tile(p), g.Tile(s)); v < dist[p] {
					dist[p] = v
					changed = true
				}
			}
		}
	}
	return dist
}

func TestStealthCost(t *testing.T) {
	from := &world.Tile{Elevation: 2}
	to := &world.Tile{Maneuver: -3, Elevation: 6, Concealment: 40, Cover: 100}

	c := StealthCost{UnitWeight: 2, StealthPriority: 0.5}
	// maneuver 3 + climb 4*1.5*2 + (100-40)*0.5 + 1 + 100/100
	assert.InDelta(t, 3+12+30+2, c.Cost(from, to), 1e-9)

	// Descending costs 1× and stealth 0 removes the concealment penalty.
	down := StealthCost{UnitWeight: 1}
	assert.InDelta(t, 0+4+0+1, down.Cost(&world.Tile{Elevation: 4}, &world.Tile{}), 1e-9)

	assert.True(t, math.IsInf(c.Cost(from, &world.Tile{Water: true}), 1))
}

func TestTerrainCost(t *testing.T) {
	flat := &world.Tile{}
	tests := []struct {
		name  string
		model TerrainCost
		to    world.Tile
		want  float64
	}{
		{"inverse maneuver", TerrainCost{UnitWeight: 1}, world.Tile{Maneuver: -3}, 3},
		{"floor on good ground", TerrainCost{UnitWeight: 1}, world.Tile{Maneuver: 2}, MinStepCost},
		{"steep climb", TerrainCost{UnitWeight: 1}, world.Tile{Maneuver: -1, Elevation: 15}, 1 + 2},
		{"stealth preference", TerrainCost{UnitWeight: 1, StealthPreference: 1}, world.Tile{Maneuver: -2, Concealment: 50}, 1.5},
		{"heavy unit bog", TerrainCost{UnitWeight: 20}, world.Tile{Maneuver: -60}, math.Inf(1)},
		{"heavy unit cliff", TerrainCost{UnitWeight: 20}, world.Tile{Elevation: 16}, math.Inf(1)},
		{"light unit bog", TerrainCost{UnitWeight: 10}, world.Tile{Maneuver: -60}, 60},
		{"water", TerrainCost{UnitWeight: 1}, world.Tile{Water: true}, math.Inf(1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.model.Cost(flat, &tc.to)
			if math.IsInf(tc.want, 1) {
				assert.True(t, math.IsInf(got, 1))
				return
			}
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestAStarUniformDiagonal(t *testing.T) {
	g := world.NewGrid(10, 10)
	a := NewAStar(g, StealthCost{UnitWeight: 1})

	path := a.FindPath(world.Pos{X: 0, Y: 0}, world.Pos{X: 9, Y: 9})
	require.Len(t, path, 10)
	assert.Equal(t, world.Pos{X: 0, Y: 0}, path[0])
	assert.Equal(t, world.Pos{X: 9, Y: 9}, path[len(path)-1])

	prev := -1.0
	for _, p := range path {
		g, ok := a.GScore(p)
		require.True(t, ok)
		assert.GreaterOrEqual(t, g, prev)
		prev = g
	}
}

func TestAStarFourDirectional(t *testing.T) {
	g := world.NewGrid(10, 10)
	path := NewAStar(g, StealthCost{UnitWeight: 1}, WithDiagonal(false)).
		FindPath(world.Pos{X: 0, Y: 0}, world.Pos{X: 9, Y: 9})
	require.Len(t, path, 19)
	for i := 1; i < len(path); i++ {
		assert.Equal(t, 1, world.Manhattan(path[i-1], path[i]))
	}
}

func TestAStarReachableOnDryGrid(t *testing.T) {
	g := randomDryGrid(7, 12, 12)
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 25; i++ {
		start := world.Pos{X: rng.Intn(12), Y: rng.Intn(12)}
		goal := world.Pos{X: rng.Intn(12), Y: rng.Intn(12)}
		path := FindPath(g, 1.0, start, goal)
		require.NotEmpty(t, path, "%s -> %s", start, goal)
		assert.Equal(t, start, path[0])
		assert.Equal(t, goal, path[len(path)-1])
	}
}

func TestAStarStartEqualsGoal(t *testing.T) {
	g := world.NewGrid(3, 3)
	path := FindPath(g, 1, world.Pos{X: 1, Y: 1}, world.Pos{X: 1, Y: 1})
	assert.Equal(t, []world.Pos{{X: 1, Y: 1}}, path)
}

func TestAStarUnreachableGoal(t *testing.T) {
	g := world.NewGrid(8, 8)
	goal := world.Pos{X: 5, Y: 5}
	ringWater(g, goal)

	assert.Empty(t, FindPath(g, 1, world.Pos{X: 0, Y: 0}, goal))

	g2 := world.NewGrid(4, 4)
	g2.Tile(world.Pos{X: 3, Y: 3}).Water = true
	assert.Empty(t, FindPath(g2, 1, world.Pos{X: 0, Y: 0}, world.Pos{X: 3, Y: 3}))
}

func TestAStarAvoidsWater(t *testing.T) {
	g := world.NewGrid(5, 5)
	for y := 0; y < 4; y++ {
		g.Tile(world.Pos{X: 2, Y: y}).Water = true
	}
	path := FindPath(g, 1, world.Pos{X: 0, Y: 0}, world.Pos{X: 4, Y: 0})
	require.NotEmpty(t, path)
	for _, p := range path {
		assert.False(t, g.Tile(p).Water, "path crosses water at %s", p)
	}
	assert.Contains(t, path, world.Pos{X: 2, Y: 4})
}

func TestAStarExpansionBound(t *testing.T) {
	g := world.NewGrid(20, 20)
	a := NewAStar(g, StealthCost{UnitWeight: 1}, WithMaxExpansions(3))
	assert.Nil(t, a.FindPath(world.Pos{X: 0, Y: 0}, world.Pos{X: 19, Y: 0}))
	assert.Equal(t, 4, a.Expanded())
}

func TestPathCostMonotonicInStealth(t *testing.T) {
	g := randomDryGrid(3, 10, 10)
	path := FindPath(g, 1, world.Pos{X: 0, Y: 0}, world.Pos{X: 9, Y: 6})
	require.NotEmpty(t, path)

	prev := -1.0
	for _, stealth := range []float64{0, 0.1, 0.5, 1, 2, 5} {
		c := PathCost(g, StealthCost{UnitWeight: 1, StealthPriority: stealth}, path)
		assert.GreaterOrEqual(t, c, prev, "stealth %.1f", stealth)
		prev = c
	}
}

func TestDStarLiteMatchesReference(t *testing.T) {
	g := randomDryGrid(11, 8, 8)
	model := TerrainCost{UnitWeight: 1}
	start, goal := world.Pos{X: 0, Y: 0}, world.Pos{X: 7, Y: 5}

	// Steps can cost as little as MinStepCost, so scale the heuristic down to
	// keep it admissible.
	d := NewDStarLite(g, model, start, goal, WithHeuristicWeight(MinStepCost))
	require.True(t, d.ComputeShortestPath())

	ref := referenceCostToGoal(g, model, goal)
	assert.InDelta(t, ref[start], d.G(start), 1e-9)
	assert.Equal(t, d.G(start), d.RHS(start))

	path := d.Path()
	require.True(t, d.Reaches(path))
	assert.Equal(t, start, path[0])
}

func TestDStarLiteSettleIsLocallyConsistent(t *testing.T) {
	g := uniformGrid(7, 7, -1)
	g.Tile(world.Pos{X: 3, Y: 3}).Maneuver = -4
	g.Tile(world.Pos{X: 1, Y: 5}).Water = true
	model := TerrainCost{UnitWeight: 1}
	goal := world.Pos{X: 6, Y: 6}

	d := NewDStarLite(g, model, world.Pos{X: 0, Y: 0}, goal)
	require.True(t, d.Settle())

	ref := referenceCostToGoal(g, model, goal)
	for _, p := range g.Positions() {
		assert.Equal(t, d.G(p), d.RHS(p), "g != rhs at %s", p)
		assert.Equal(t, ref[p], d.G(p), "g mismatch at %s", p)
	}
}

func TestDStarLiteRepairEqualsRebuild(t *testing.T) {
	tests := []struct {
		name   string
		pos    world.Pos
		mutate func(*world.Tile)
	}{
		{"rougher", world.Pos{X: 2, Y: 2}, func(t *world.Tile) { t.Maneuver = -6 }},
		{"smoother", world.Pos{X: 4, Y: 1}, func(t *world.Tile) { t.Maneuver = -1 }},
		{"flooded", world.Pos{X: 3, Y: 3}, func(t *world.Tile) { t.Water = true }},
		{"drained", world.Pos{X: 1, Y: 4}, func(t *world.Tile) { t.Water = false }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := uniformGrid(6, 6, -2)
			g.Tile(world.Pos{X: 1, Y: 4}).Water = true
			model := TerrainCost{UnitWeight: 1}
			start, goal := world.Pos{X: 0, Y: 0}, world.Pos{X: 5, Y: 5}

			d := NewDStarLite(g, model, start, goal)
			require.True(t, d.Settle())

			g.Update(tc.pos, tc.mutate)
			d.TileChanged(tc.pos)
			require.True(t, d.Settle())

			fresh := NewDStarLite(g, model, start, goal)
			require.True(t, fresh.Settle())

			for _, p := range g.Positions() {
				assert.Equal(t, fresh.G(p), d.G(p), "g mismatch at %s", p)
			}
		})
	}
}

func TestDStarLiteRepairFindsDetour(t *testing.T) {
	g := uniformGrid(5, 5, -1)
	model := TerrainCost{UnitWeight: 1}
	start, goal := world.Pos{X: 0, Y: 2}, world.Pos{X: 4, Y: 2}

	d := NewDStarLite(g, model, start, goal)
	require.True(t, d.ComputeShortestPath())
	assert.InDelta(t, 4.0, d.G(start), 1e-9)

	// Wall off the direct row.
	for y := 1; y <= 3; y++ {
		p := world.Pos{X: 2, Y: y}
		g.Update(p, func(t *world.Tile) { t.Water = true })
		d.TileChanged(p)
	}
	require.True(t, d.ComputeShortestPath())

	ref := referenceCostToGoal(g, model, goal)
	assert.InDelta(t, ref[start], d.G(start), 1e-9)

	require.True(t, d.Settle())
	path := d.Path()
	require.True(t, d.Reaches(path))
	assert.InDelta(t, ref[start], PathCost(g, model, path), 1e-9)
	for _, p := range path {
		assert.False(t, g.Tile(p).Water)
	}
}

func TestDStarLiteUnreachable(t *testing.T) {
	g := uniformGrid(6, 6, -1)
	goal := world.Pos{X: 4, Y: 4}
	ringWater(g, goal)

	d := NewDStarLite(g, TerrainCost{UnitWeight: 1}, world.Pos{X: 0, Y: 0}, goal)
	require.True(t, d.ComputeShortestPath())
	assert.True(t, math.IsInf(d.RHS(world.Pos{X: 0, Y: 0}), 1))

	path := d.Path()
	assert.False(t, d.Reaches(path))
	assert.Equal(t, world.Pos{X: 0, Y: 0}, path[0])
}

func TestDStarLiteMoveStart(t *testing.T) {
	g := uniformGrid(6, 6, -1)
	model := TerrainCost{UnitWeight: 1}
	goal := world.Pos{X: 5, Y: 5}

	d := NewDStarLite(g, model, world.Pos{X: 0, Y: 0}, goal)
	require.True(t, d.ComputeShortestPath())

	d.MoveStart(world.Pos{X: 1, Y: 0})
	require.True(t, d.ComputeShortestPath())
	assert.Equal(t, world.Pos{X: 1, Y: 0}, d.Start())
	assert.InDelta(t, 9.0, d.G(world.Pos{X: 1, Y: 0}), 1e-9)
	assert.True(t, d.Reaches(d.Path()))
}

func TestIncrementalPlannerReusesSessions(t *testing.T) {
	g := uniformGrid(6, 6, -1)
	p := NewIncrementalPlanner(g)
	goal := world.Pos{X: 5, Y: 0}

	first := p.Plan(world.Pos{X: 0, Y: 0}, goal, 1)
	require.NotEmpty(t, first)
	assert.Equal(t, goal, first[len(first)-1])

	second := p.Plan(world.Pos{X: 1, Y: 0}, goal, 1)
	require.NotEmpty(t, second)
	assert.Equal(t, world.Pos{X: 1, Y: 0}, second[0])
	assert.Equal(t, 1, p.Sessions())

	// Block the straight line and let the session repair itself.
	for y := 0; y < 5; y++ {
		pos := world.Pos{X: 3, Y: y}
		g.Update(pos, func(t *world.Tile) { t.Water = true })
		p.Invalidate(pos)
	}
	third := p.Plan(world.Pos{X: 1, Y: 0}, goal, 1)
	require.NotEmpty(t, third)
	assert.Contains(t, third, world.Pos{X: 3, Y: 5})

	p.Forget(goal)
	assert.Equal(t, 0, p.Sessions())
}

func TestIncrementalPlannerUnreachableReturnsNil(t *testing.T) {
	g := uniformGrid(6, 6, -1)
	goal := world.Pos{X: 3, Y: 3}
	ringWater(g, goal)
	p := NewIncrementalPlanner(g)
	assert.Nil(t, p.Plan(world.Pos{X: 0, Y: 0}, goal, 1))
}

func TestStaticPlanner(t *testing.T) {
	g := world.NewGrid(5, 5)
	p := NewStaticPlanner(g)
	path := p.Plan(world.Pos{X: 0, Y: 0}, world.Pos{X: 4, Y: 4}, 1)
	assert.Len(t, path, 5)

	p.Diagonal = false
	path = p.Plan(world.Pos{X: 0, Y: 0}, world.Pos{X: 4, Y: 4}, 1)
	assert.Len(t, path, 9)
}
