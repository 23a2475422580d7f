package territory

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/frontline/internal/pathing"
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/visibility"
	"github.com/talgya/frontline/internal/world"
)

type fixture struct {
	grid    *world.Grid
	reg     *Registry
	roster  *units.Roster
	planner units.Planner
}

func newFixture(w, h int) *fixture {
	g := world.NewGrid(w, h)
	return &fixture{
		grid:    g,
		reg:     NewRegistry(g),
		roster:  units.NewRoster(),
		planner: pathing.NewStaticPlanner(g),
	}
}

func (f *fixture) found(t *testing.T, id world.RegionID, side world.Side, capacity int, seed ...world.Pos) *Controller {
	t.Helper()
	_, err := f.reg.Found(id, side, capacity, seed)
	require.NoError(t, err)
	c, err := NewController(f.reg, id, f.roster, f.planner, DefaultWeights())
	require.NoError(t, err)
	return c
}

func (f *fixture) recruit(c *Controller, pos world.Pos) *units.Unit {
	u := f.roster.Recruit(c.Region().Side, c.Region().ID, pos, 1)
	c.Region().AssignUnit(u)
	return u
}

type nowherePlanner struct{}

func (nowherePlanner) Plan(from, to world.Pos, weight float64) []world.Pos { return nil }

func TestRegionAtCapacityDoesNotExpand(t *testing.T) {
	f := newFixture(6, 6)
	c := f.found(t, "Alpha", world.SideA, 4,
		world.Pos{X: 0, Y: 0}, world.Pos{X: 1, Y: 0}, world.Pos{X: 0, Y: 1}, world.Pos{X: 1, Y: 1})
	f.recruit(c, world.Pos{X: 0, Y: 0})
	f.recruit(c, world.Pos{X: 1, Y: 1})

	r := c.Region()
	assert.False(t, r.CanExpand())
	require.NotEmpty(t, c.ExpansionCandidates())

	n, err := c.AssignUnitsToExpand()
	require.NoError(t, err)
	assert.Zero(t, n)

	report, err := c.Tick()
	require.NoError(t, err)
	assert.Zero(t, report.Expansions)
	assert.Equal(t, 2, report.Defenses)
	assert.Empty(t, r.AssignedTiles())

	added, err := f.reg.Incorporate("Alpha", world.Pos{X: 2, Y: 0})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 4, r.Size())
}

func TestContestedTileOutranksUnclaimed(t *testing.T) {
	f := newFixture(7, 5)
	alpha := f.found(t, "Alpha", world.SideA, 10, world.Pos{X: 2, Y: 2})
	f.found(t, "Bravo", world.SideB, 10, world.Pos{X: 3, Y: 2})
	f.grid.Tile(world.Pos{X: 3, Y: 2}).Resources = 10
	f.grid.Tile(world.Pos{X: 1, Y: 2}).Resources = 10

	ranked := alpha.RankCandidates()
	require.NotEmpty(t, ranked)
	assert.Equal(t, world.Pos{X: 3, Y: 2}, ranked[0].Pos)
	assert.True(t, ranked[0].Contested)
	assert.InDelta(t, 100+10+18, ranked[0].Score, 1e-9)

	var unclaimed Candidate
	for _, c := range ranked {
		if c.Pos == (world.Pos{X: 1, Y: 2}) {
			unclaimed = c
		}
	}
	assert.InDelta(t, 50+10+18, unclaimed.Score, 1e-9)
	assert.Greater(t, ranked[0].Score, unclaimed.Score)
}

func TestFogOfWarHidesEnemyHoldings(t *testing.T) {
	f := newFixture(7, 5)
	alpha := f.found(t, "Alpha", world.SideA, 10, world.Pos{X: 2, Y: 2})
	f.found(t, "Bravo", world.SideB, 10, world.Pos{X: 3, Y: 2})

	alpha.SetIntel(visibility.Set{})
	for _, c := range alpha.ExpansionCandidates() {
		assert.False(t, c.Contested, "unseen tile %s scored as contested", c.Pos)
	}

	seen := visibility.Set{}
	seen.Add(world.Pos{X: 3, Y: 2})
	alpha.SetIntel(seen)
	assert.True(t, alpha.ExpansionCandidates()[0].Contested)
}

func TestIncorporateEvictsOpposingOwner(t *testing.T) {
	f := newFixture(7, 5)
	f.found(t, "Alpha", world.SideA, 10, world.Pos{X: 2, Y: 2})
	f.found(t, "Bravo", world.SideB, 10, world.Pos{X: 3, Y: 2}, world.Pos{X: 4, Y: 2})

	added, err := f.reg.Incorporate("Alpha", world.Pos{X: 3, Y: 2})
	require.NoError(t, err)
	assert.True(t, added)

	bravo, err := f.reg.Region("Bravo")
	require.NoError(t, err)
	assert.Equal(t, 1, bravo.Size())
	occ, ok := f.grid.Occupation(world.Pos{X: 3, Y: 2})
	require.True(t, ok)
	assert.Equal(t, world.RegionID("Alpha"), occ.Region)
	assert.NoError(t, f.reg.CheckInvariants())

	_, err = f.reg.Incorporate("Zulu", world.Pos{X: 0, Y: 0})
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestIncorporateLeavesFriendlyOwner(t *testing.T) {
	f := newFixture(7, 5)
	f.found(t, "Alpha", world.SideA, 10, world.Pos{X: 2, Y: 2})
	f.found(t, "Charlie", world.SideA, 10, world.Pos{X: 3, Y: 2})

	added, err := f.reg.Incorporate("Alpha", world.Pos{X: 3, Y: 2})
	require.NoError(t, err)
	assert.False(t, added)
	occ, _ := f.grid.Occupation(world.Pos{X: 3, Y: 2})
	assert.Equal(t, world.RegionID("Charlie"), occ.Region)
}

func TestFoundRejectsConflicts(t *testing.T) {
	f := newFixture(5, 5)
	f.found(t, "Alpha", world.SideA, 3, world.Pos{X: 0, Y: 0})

	_, err := f.reg.Found("Alpha", world.SideA, 3, []world.Pos{{X: 4, Y: 4}})
	assert.ErrorIs(t, err, ErrRegionExists)

	_, err = f.reg.Found("Bravo", world.SideB, 3, []world.Pos{{X: 4, Y: 4}, {X: 0, Y: 0}})
	assert.ErrorIs(t, err, ErrInvariantViolation)
	_, ok := f.grid.Occupation(world.Pos{X: 4, Y: 4})
	assert.False(t, ok, "failed founding rolled back")

	_, err = f.reg.Found("Bravo", world.SideB, 1, []world.Pos{{X: 4, Y: 4}, {X: 3, Y: 4}})
	assert.Error(t, err)
	_, err = f.reg.Found("Bravo", world.SideB, 1, []world.Pos{{X: 9, Y: 9}})
	assert.Error(t, err)
}

func TestOwnershipInvariantsHoldUnderRandomOps(t *testing.T) {
	f := newFixture(8, 8)
	f.found(t, "Alpha", world.SideA, 6, world.Pos{X: 0, Y: 0})
	f.found(t, "Bravo", world.SideB, 9, world.Pos{X: 7, Y: 7})
	f.found(t, "Charlie", world.SideA, 4, world.Pos{X: 0, Y: 7})
	ids := []world.RegionID{"Alpha", "Bravo", "Charlie"}

	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		p := world.Pos{X: rng.Intn(8), Y: rng.Intn(8)}
		reg, err := f.reg.Region(id)
		require.NoError(t, err)

		switch rng.Intn(3) {
		case 0:
			_, err = f.reg.Incorporate(id, p)
			require.NoError(t, err)
		case 1:
			_, err = f.reg.Release(id, p)
			require.NoError(t, err)
		case 2:
			// Direct adds may collide with another owner; a collision must
			// leave state untouched.
			if _, err := reg.AddTile(p); err != nil {
				require.ErrorIs(t, err, ErrInvariantViolation)
			}
		}
		require.NoError(t, f.reg.CheckInvariants(), "after op %d", i)

		seen := make(map[world.Pos]world.RegionID)
		for _, r := range f.reg.Regions() {
			require.LessOrEqual(t, r.Size(), r.Capacity)
			for _, q := range r.ControlledTiles() {
				prev, dup := seen[q]
				require.False(t, dup, "%s held by %s and %s", q, prev, r.ID)
				seen[q] = r.ID
			}
		}
	}
}

func TestCheckInvariantsReportsDrift(t *testing.T) {
	f := newFixture(4, 4)
	f.found(t, "Alpha", world.SideA, 3, world.Pos{X: 0, Y: 0})

	f.reg.index.owners[world.Pos{X: 2, Y: 2}] = world.Occupation{Side: world.SideA, Region: "Alpha"}
	err := f.reg.CheckInvariants()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestAssignedTileCannotBeControlled(t *testing.T) {
	f := newFixture(4, 4)
	c := f.found(t, "Alpha", world.SideA, 3, world.Pos{X: 0, Y: 0})
	err := c.Region().Assign(world.Pos{X: 0, Y: 0}, 1)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, c.Region().Assign(world.Pos{X: 1, Y: 0}, 1))
	added, err := f.reg.Incorporate("Alpha", world.Pos{X: 1, Y: 0})
	require.NoError(t, err)
	assert.True(t, added)
	assert.False(t, c.Region().IsAssigned(world.Pos{X: 1, Y: 0}))
}

func TestIsInterior(t *testing.T) {
	f := newFixture(8, 8)
	var block []world.Pos
	for y := 1; y <= 5; y++ {
		for x := 1; x <= 5; x++ {
			block = append(block, world.Pos{X: x, Y: y})
		}
	}
	c := f.found(t, "Alpha", world.SideA, 30, block...)
	c.Region().RemoveTile(world.Pos{X: 3, Y: 3})

	assert.True(t, c.IsInterior(world.Pos{X: 3, Y: 3}), "hole inside the block")
	assert.True(t, c.IsInterior(world.Pos{X: 2, Y: 2}))
	assert.False(t, c.IsInterior(world.Pos{X: 1, Y: 3}), "west ray leaves the map")
	assert.False(t, c.IsInterior(world.Pos{X: 7, Y: 3}))
}

func TestTickSpreadsIdleUnits(t *testing.T) {
	f := newFixture(5, 5)
	c := f.found(t, "Alpha", world.SideA, 10, world.Pos{X: 2, Y: 2})
	a := f.recruit(c, world.Pos{X: 2, Y: 2})
	b := f.recruit(c, world.Pos{X: 2, Y: 2})

	report, err := c.Tick()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Expansions)
	assert.Len(t, c.Region().AssignedTiles(), 2)

	ga, _ := a.Goal()
	gb, _ := b.Goal()
	assert.NotEqual(t, ga, gb)
	assert.False(t, a.IsIdle())

	// Same-side claims are not offered again.
	for _, cand := range c.ExpansionCandidates() {
		assert.NotEqual(t, ga, cand.Pos)
		assert.NotEqual(t, gb, cand.Pos)
	}
}

func TestTickUnreachableLeavesUnitIdle(t *testing.T) {
	f := newFixture(5, 5)
	f.planner = nowherePlanner{}
	c := f.found(t, "Alpha", world.SideA, 10, world.Pos{X: 2, Y: 2})
	u := f.recruit(c, world.Pos{X: 0, Y: 0})

	report, err := c.Tick()
	require.NoError(t, err)
	assert.Positive(t, report.Unreachable)
	assert.True(t, u.IsIdle())
	assert.Empty(t, c.Region().AssignedTiles())
}

func TestDefenderReassignedToBetterTarget(t *testing.T) {
	f := newFixture(6, 6)
	c := f.found(t, "Alpha", world.SideA, 1, world.Pos{X: 0, Y: 0})
	u := f.recruit(c, world.Pos{X: 0, Y: 0})

	report, err := c.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Defenses)
	assert.Equal(t, 2, report.CapacitySkips)
	d, ok := u.Defense()
	require.True(t, ok)
	assert.InDelta(t, 30, d.Priority, 1e-9)
	assert.True(t, c.Region().IsGuarded(world.Pos{X: 0, Y: 0}))

	c.Region().Capacity = 5
	report, err = c.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reassignments)
	assert.False(t, u.IsDefending())
	assert.False(t, c.Region().IsGuarded(world.Pos{X: 0, Y: 0}))
	assert.True(t, c.Region().IsAssigned(world.Pos{X: 1, Y: 0}))
	goal, _ := u.Goal()
	assert.Equal(t, world.Pos{X: 1, Y: 0}, goal)
}

func TestDefenderKeepsValuablePost(t *testing.T) {
	f := newFixture(6, 6)
	c := f.found(t, "Alpha", world.SideA, 1, world.Pos{X: 0, Y: 0})
	f.grid.Tile(world.Pos{X: 0, Y: 0}).Resources = 100
	u := f.recruit(c, world.Pos{X: 0, Y: 0})

	_, err := c.Tick()
	require.NoError(t, err)
	require.True(t, u.IsDefending())

	c.Region().Capacity = 5
	report, err := c.Tick()
	require.NoError(t, err)
	assert.Zero(t, report.Reassignments)
	assert.True(t, u.IsDefending())
}

func TestLostPostReleasesDefender(t *testing.T) {
	f := newFixture(6, 6)
	c := f.found(t, "Alpha", world.SideA, 1, world.Pos{X: 0, Y: 0})
	u := f.recruit(c, world.Pos{X: 0, Y: 0})
	_, err := c.Tick()
	require.NoError(t, err)
	require.True(t, u.IsDefending())

	c.Region().RemoveTile(world.Pos{X: 0, Y: 0})
	report, err := c.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, report.LostPosts)
	assert.False(t, u.IsDefending())
}

func TestDesireLinesFavourTravelledTiles(t *testing.T) {
	f := newFixture(9, 3)
	c := f.found(t, "Alpha", world.SideA, 10, world.Pos{X: 4, Y: 1})
	f.grid.Tile(world.Pos{X: 1, Y: 1}).Resources = 40
	f.grid.Tile(world.Pos{X: 7, Y: 1}).Resources = 40

	pois := c.InterestPoints()
	assert.Equal(t, []world.Pos{{X: 4, Y: 1}, {X: 1, Y: 1}, {X: 7, Y: 1}}, pois)

	assert.InDelta(t, 1.0, c.DesireWeight(world.Pos{X: 4, Y: 1}), 1e-9)
	assert.InDelta(t, 2.0/3.0, c.DesireWeight(world.Pos{X: 3, Y: 1}), 1e-9)
	assert.Zero(t, c.DesireWeight(world.Pos{X: 0, Y: 0}))

	scores := make(map[world.Pos]float64)
	for _, cand := range c.ExpansionCandidates() {
		scores[cand.Pos] = cand.Score
	}
	assert.Greater(t, scores[world.Pos{X: 3, Y: 1}], scores[world.Pos{X: 4, Y: 0}])
}
