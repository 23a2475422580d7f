// Package persistence provides SQLite-based battlefield state storage.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/world"
)

// DB wraps a SQLite connection for battlefield persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tiles (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		maneuver INTEGER NOT NULL,
		elevation INTEGER NOT NULL,
		concealment INTEGER NOT NULL,
		cover INTEGER NOT NULL,
		fuel INTEGER NOT NULL,
		manpower INTEGER NOT NULL,
		resources INTEGER NOT NULL,
		water INTEGER NOT NULL,
		PRIMARY KEY (x, y)
	);

	CREATE TABLE IF NOT EXISTS regions (
		id TEXT PRIMARY KEY,
		ord INTEGER NOT NULL,
		side TEXT NOT NULL,
		capacity INTEGER NOT NULL,
		anchor_x INTEGER NOT NULL,
		anchor_y INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS region_tiles (
		region_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		unit_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS region_units (
		region_id TEXT NOT NULL,
		ord INTEGER NOT NULL,
		unit_id INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY,
		side TEXT NOT NULL,
		region TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		weight REAL NOT NULL,
		tasking INTEGER NOT NULL,
		facing INTEGER NOT NULL,
		path_json TEXT NOT NULL,
		goal_x INTEGER,
		goal_y INTEGER,
		defense_json TEXT
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_region_tiles_region ON region_tiles(region_id);
	CREATE INDEX IF NOT EXISTS idx_units_region ON units(region);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Tile kinds stored in region_tiles.
const (
	kindControlled = "controlled"
	kindAssigned   = "assigned"
	kindGuarded    = "guarded"
)

// RegionTile is one row of region_tiles.
type RegionTile struct {
	RegionID string        `db:"region_id"`
	Kind     string        `db:"kind"`
	X        int           `db:"x"`
	Y        int           `db:"y"`
	UnitID   sql.NullInt64 `db:"unit_id"`
}

// RegionRecord is a saved region with its tiles and roster.
type RegionRecord struct {
	ID       string `db:"id"`
	Ord      int    `db:"ord"`
	Side     string `db:"side"`
	Capacity int    `db:"capacity"`
	AnchorX  int    `db:"anchor_x"`
	AnchorY  int    `db:"anchor_y"`

	Tiles []RegionTile `db:"-"`
	Units []units.ID   `db:"-"`
}

// UnitRecord is one row of the units table.
type UnitRecord struct {
	ID          uint64         `db:"id"`
	Side        string         `db:"side"`
	Region      string         `db:"region"`
	X           int            `db:"x"`
	Y           int            `db:"y"`
	Weight      float64        `db:"weight"`
	Tasking     int            `db:"tasking"`
	Facing      int            `db:"facing"`
	PathJSON    string         `db:"path_json"`
	GoalX       sql.NullInt64  `db:"goal_x"`
	GoalY       sql.NullInt64  `db:"goal_y"`
	DefenseJSON sql.NullString `db:"defense_json"`
}

type tileRow struct {
	X           int  `db:"x"`
	Y           int  `db:"y"`
	Maneuver    int  `db:"maneuver"`
	Elevation   int  `db:"elevation"`
	Concealment int  `db:"concealment"`
	Cover       int  `db:"cover"`
	Fuel        int  `db:"fuel"`
	Manpower    int  `db:"manpower"`
	Resources   int  `db:"resources"`
	Water       bool `db:"water"`
}

// SaveGrid writes every tile (full replace) and records the grid size.
func (db *DB) SaveGrid(g *world.Grid) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tiles"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO tiles
		(x, y, maneuver, elevation, concealment, cover, fuel, manpower, resources, water)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range g.Positions() {
		t := g.Tile(p)
		water := 0
		if t.Water {
			water = 1
		}
		if _, err := stmt.Exec(p.X, p.Y, t.Maneuver, t.Elevation, t.Concealment, t.Cover,
			t.Fuel, t.Manpower, t.Resources, water); err != nil {
			return fmt.Errorf("insert tile %s: %w", p, err)
		}
	}

	for k, v := range map[string]int{"grid_width": g.Width(), "grid_height": g.Height()} {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, strconv.Itoa(v)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadGrid rebuilds the grid from saved tiles.
func (db *DB) LoadGrid() (*world.Grid, error) {
	w, err := db.metaInt("grid_width")
	if err != nil {
		return nil, err
	}
	h, err := db.metaInt("grid_height")
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("load grid: invalid size %dx%d", w, h)
	}

	var rows []tileRow
	if err := db.conn.Select(&rows, "SELECT * FROM tiles"); err != nil {
		return nil, fmt.Errorf("load tiles: %w", err)
	}

	g := world.NewGrid(w, h)
	for _, r := range rows {
		p := world.Pos{X: r.X, Y: r.Y}
		if !g.InBounds(p) {
			return nil, fmt.Errorf("load grid: tile %s outside %dx%d", p, w, h)
		}
		g.Update(p, func(t *world.Tile) {
			t.Maneuver = r.Maneuver
			t.Elevation = r.Elevation
			t.Concealment = r.Concealment
			t.Cover = r.Cover
			t.Fuel = r.Fuel
			t.Manpower = r.Manpower
			t.Resources = r.Resources
			t.Water = r.Water
		})
	}
	return g, nil
}

// SaveRegions writes all regions with their tile marks and rosters (full replace).
func (db *DB) SaveRegions(records []RegionRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"regions", "region_tiles", "region_units"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}

	regStmt, err := tx.Preparex(`INSERT INTO regions (id, ord, side, capacity, anchor_x, anchor_y)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer regStmt.Close()

	tileStmt, err := tx.Preparex(`INSERT INTO region_tiles (region_id, kind, x, y, unit_id)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tileStmt.Close()

	unitStmt, err := tx.Preparex(`INSERT INTO region_units (region_id, ord, unit_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer unitStmt.Close()

	for _, r := range records {
		if _, err := regStmt.Exec(r.ID, r.Ord, r.Side, r.Capacity, r.AnchorX, r.AnchorY); err != nil {
			return fmt.Errorf("insert region %s: %w", r.ID, err)
		}
		for _, t := range r.Tiles {
			if _, err := tileStmt.Exec(r.ID, t.Kind, t.X, t.Y, t.UnitID); err != nil {
				return fmt.Errorf("insert %s tile (%d,%d) of %s: %w", t.Kind, t.X, t.Y, r.ID, err)
			}
		}
		for i, id := range r.Units {
			if _, err := unitStmt.Exec(r.ID, i, uint64(id)); err != nil {
				return fmt.Errorf("insert roster entry %d of %s: %w", id, r.ID, err)
			}
		}
	}

	return tx.Commit()
}

// LoadRegions reads regions in founding order with their tiles and rosters.
func (db *DB) LoadRegions() ([]RegionRecord, error) {
	var records []RegionRecord
	if err := db.conn.Select(&records, "SELECT * FROM regions ORDER BY ord"); err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}

	var tiles []RegionTile
	if err := db.conn.Select(&tiles, "SELECT * FROM region_tiles ORDER BY region_id, kind, y, x"); err != nil {
		return nil, fmt.Errorf("load region tiles: %w", err)
	}

	var roster []struct {
		RegionID string `db:"region_id"`
		Ord      int    `db:"ord"`
		UnitID   uint64 `db:"unit_id"`
	}
	if err := db.conn.Select(&roster, "SELECT * FROM region_units ORDER BY region_id, ord"); err != nil {
		return nil, fmt.Errorf("load region units: %w", err)
	}

	byID := make(map[string]*RegionRecord, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}
	for _, t := range tiles {
		if r, ok := byID[t.RegionID]; ok {
			r.Tiles = append(r.Tiles, t)
		}
	}
	for _, e := range roster {
		if r, ok := byID[e.RegionID]; ok {
			r.Units = append(r.Units, units.ID(e.UnitID))
		}
	}
	return records, nil
}

// SaveUnits writes all units (full replace).
func (db *DB) SaveUnits(records []UnitRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM units"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO units
		(id, side, region, x, y, weight, tasking, facing, path_json, goal_x, goal_y, defense_json)
		VALUES (:id, :side, :region, :x, :y, :weight, :tasking, :facing, :path_json, :goal_x, :goal_y, :defense_json)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range records {
		if _, err := stmt.Exec(u); err != nil {
			return fmt.Errorf("insert unit %d: %w", u.ID, err)
		}
	}

	return tx.Commit()
}

// LoadUnits reads all units in ID order.
func (db *DB) LoadUnits() ([]UnitRecord, error) {
	var records []UnitRecord
	if err := db.conn.Select(&records, "SELECT * FROM units ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	return records, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (tick, description, category) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.Tick, e.Description, e.Category); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in world_meta.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a value from world_meta.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func (db *DB) metaInt(key string) (int, error) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	return n, nil
}

// HasWorldState reports whether a full battlefield has been saved.
func (db *DB) HasWorldState() bool {
	_, err := db.GetMeta("last_tick")
	return err == nil
}

// SaveWorldState copies the simulation under its read lock and writes it out.
// Only events newer than the previously saved tick are appended.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	var (
		tick    uint64
		grid    *world.Grid
		regions []RegionRecord
		unitRec []UnitRecord
		events  []engine.Event
		err     error
	)
	since, saved := uint64(0), false
	if v, gerr := db.GetMeta("last_tick"); gerr == nil {
		since, _ = strconv.ParseUint(v, 10, 64)
		saved = true
	}

	sim.ReadLocked(func() {
		tick = sim.LastTick
		grid = sim.Grid
		regions = RegionRecords(sim.Registry)
		unitRec, err = UnitRecords(sim.Roster)
		for _, e := range sim.Events {
			if !saved || e.Tick > since {
				events = append(events, e)
			}
		}
		if err == nil {
			err = db.SaveGrid(grid)
		}
	})
	if err != nil {
		return fmt.Errorf("save grid: %w", err)
	}

	slog.Info("saving world state",
		"tick", humanize.Comma(int64(tick)),
		"regions", len(regions),
		"units", len(unitRec),
		"events", len(events),
	)

	if err := db.SaveRegions(regions); err != nil {
		return fmt.Errorf("save regions: %w", err)
	}
	if err := db.SaveUnits(unitRec); err != nil {
		return fmt.Errorf("save units: %w", err)
	}
	if err := db.SaveEvents(events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("world state saved", "tick", humanize.Comma(int64(tick)))
	return nil
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?", limit)
	return events, err
}

// WorldState is a battlefield rebuilt from the database.
type WorldState struct {
	Grid     *world.Grid
	Registry *territory.Registry
	Roster   *units.Roster
	Tick     uint64
}

// LoadWorldState rebuilds the grid, regions and units saved by SaveWorldState.
func (db *DB) LoadWorldState() (*WorldState, error) {
	if !db.HasWorldState() {
		return nil, errors.New("no saved world state")
	}
	v, err := db.GetMeta("last_tick")
	if err != nil {
		return nil, err
	}
	tick, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last_tick: %w", err)
	}

	grid, err := db.LoadGrid()
	if err != nil {
		return nil, err
	}
	regions, err := db.LoadRegions()
	if err != nil {
		return nil, err
	}
	unitRec, err := db.LoadUnits()
	if err != nil {
		return nil, err
	}

	reg, roster, err := Restore(grid, regions, unitRec)
	if err != nil {
		return nil, err
	}
	slog.Info("world state loaded",
		"tick", humanize.Comma(int64(tick)),
		"tiles", humanize.Comma(int64(grid.Len())),
		"regions", len(regions),
		"units", roster.Len(),
	)
	return &WorldState{Grid: grid, Registry: reg, Roster: roster, Tick: tick}, nil
}
