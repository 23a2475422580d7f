package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/pathing"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/visibility"
	"github.com/talgya/frontline/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "frontline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, db.HasWorldState())

	_, err := db.GetMeta("missing")
	assert.Error(t, err)

	require.NoError(t, db.SaveMeta("run_id", "abc"))
	require.NoError(t, db.SaveMeta("run_id", "def"))
	v, err := db.GetMeta("run_id")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

func TestGridRoundTrip(t *testing.T) {
	db := openTestDB(t)
	g := world.Generate(world.SmallTestConfig())

	require.NoError(t, db.SaveGrid(g))
	got, err := db.LoadGrid()
	require.NoError(t, err)

	require.Equal(t, g.Width(), got.Width())
	require.Equal(t, g.Height(), got.Height())
	for _, p := range g.Positions() {
		assert.Equal(t, *g.Tile(p), *got.Tile(p), "tile %s", p)
	}
}

func TestRecentEventsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveEvents(nil))
	require.NoError(t, db.SaveEvents([]engine.Event{
		{Tick: 1, Description: "first", Category: "claim"},
		{Tick: 2, Description: "second", Category: "overrun"},
		{Tick: 3, Description: "third", Category: "claim"},
	}))

	events, err := db.RecentEvents(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "third", events[0].Description)
	assert.Equal(t, "overrun", events[1].Category)
}

func buildSimulation(t *testing.T) *engine.Simulation {
	t.Helper()
	g := world.NewGrid(8, 6)
	g.Update(world.Pos{X: 4, Y: 4}, func(t *world.Tile) { t.Water = true })
	g.Update(world.Pos{X: 2, Y: 2}, func(t *world.Tile) { t.Fuel = 40 })

	reg := territory.NewRegistry(g)
	alpha, err := reg.Found("Alpha", world.SideA, 6, []world.Pos{{X: 1, Y: 1}, {X: 2, Y: 1}})
	require.NoError(t, err)
	_, err = reg.Found("Bravo", world.SideB, 3, []world.Pos{{X: 6, Y: 4}})
	require.NoError(t, err)

	sim, err := engine.NewSimulation(g, reg, units.NewRoster(), engine.Options{
		Planner: pathing.NewStaticPlanner(g),
		Weights: territory.DefaultWeights(),
		Vision:  visibility.DefaultParams(),
	})
	require.NoError(t, err)

	mover, err := sim.Recruit("Alpha", world.Pos{X: 1, Y: 1}, 1.5)
	require.NoError(t, err)
	_, ok := mover.HandleAssignedLocation(sim.Planner, world.Pos{X: 4, Y: 1})
	require.True(t, ok)
	require.NoError(t, alpha.Assign(world.Pos{X: 4, Y: 1}, mover.ID))

	guard, err := sim.Recruit("Alpha", world.Pos{X: 2, Y: 1}, 1)
	require.NoError(t, err)
	guard.Defend(world.Pos{X: 2, Y: 1}, 42.5)
	alpha.Guard(world.Pos{X: 2, Y: 1}, guard.ID)

	_, err = sim.Recruit("Bravo", world.Pos{X: 6, Y: 4}, 1)
	require.NoError(t, err)
	return sim
}

func TestWorldStateRoundTrip(t *testing.T) {
	db := openTestDB(t)
	sim := buildSimulation(t)
	sim.LastTick = 17

	require.NoError(t, db.SaveWorldState(sim))
	require.True(t, db.HasWorldState())

	ws, err := db.LoadWorldState()
	require.NoError(t, err)
	assert.Equal(t, uint64(17), ws.Tick)
	assert.True(t, ws.Grid.Tile(world.Pos{X: 4, Y: 4}).Water)
	assert.Equal(t, 40, ws.Grid.Tile(world.Pos{X: 2, Y: 2}).Fuel)

	regions := ws.Registry.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, world.RegionID("Alpha"), regions[0].ID)
	assert.Equal(t, world.RegionID("Bravo"), regions[1].ID)

	alpha := regions[0]
	assert.Equal(t, world.Pos{X: 1, Y: 1}, alpha.Anchor())
	assert.Equal(t, []world.Pos{{X: 1, Y: 1}, {X: 2, Y: 1}}, alpha.ControlledTiles())
	assert.Equal(t, []world.Pos{{X: 4, Y: 1}}, alpha.AssignedTiles())
	assert.Equal(t, []world.Pos{{X: 2, Y: 1}}, alpha.GuardedTiles())
	assert.Equal(t, []units.ID{1, 2}, alpha.Units())

	occ, ok := ws.Grid.Occupation(world.Pos{X: 6, Y: 4})
	require.True(t, ok)
	assert.Equal(t, world.RegionID("Bravo"), occ.Region)

	require.Equal(t, 3, ws.Roster.Len())
	mover, ok := ws.Roster.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1.5, mover.Weight)
	assert.Equal(t, units.Move, mover.Tasking)
	goal, ok := mover.Goal()
	require.True(t, ok)
	assert.Equal(t, world.Pos{X: 4, Y: 1}, goal)
	require.Len(t, mover.Path, 3)
	assert.Equal(t, goal, mover.Path[2])

	guard, ok := ws.Roster.Get(2)
	require.True(t, ok)
	d, ok := guard.Defense()
	require.True(t, ok)
	assert.Equal(t, units.Defense{Pos: world.Pos{X: 2, Y: 1}, Priority: 42.5}, d)

	next := ws.Roster.Recruit(world.SideB, "Bravo", world.Pos{X: 6, Y: 4}, 1)
	assert.Equal(t, units.ID(4), next.ID)

	events, err := db.RecentEvents(10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSaveWorldStateAppendsOnlyNewEvents(t *testing.T) {
	db := openTestDB(t)
	sim := buildSimulation(t)

	require.NoError(t, db.SaveWorldState(sim))
	require.NoError(t, sim.Step(1))
	require.NoError(t, db.SaveWorldState(sim))

	events, err := db.RecentEvents(100)
	require.NoError(t, err)
	recruits := 0
	for _, e := range events {
		if e.Category == "recruit" {
			recruits++
		}
	}
	assert.Equal(t, 3, recruits, "recruit events are saved once")
	last, err := db.GetMeta("last_tick")
	require.NoError(t, err)
	assert.Equal(t, "1", last)
}

func TestRestoreRejectsUnknownRosterEntry(t *testing.T) {
	g := world.NewGrid(4, 4)
	_, _, err := Restore(g, []RegionRecord{{
		ID: "Alpha", Side: "A", Capacity: 2,
		Tiles: []RegionTile{{Kind: kindControlled, X: 0, Y: 0}},
		Units: []units.ID{9},
	}}, nil)
	assert.ErrorContains(t, err, "unknown unit 9")
}
