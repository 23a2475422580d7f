package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/world"
)

// RegionRecords flattens every region of reg in founding order.
func RegionRecords(reg *territory.Registry) []RegionRecord {
	var out []RegionRecord
	for i, r := range reg.Regions() {
		rec := RegionRecord{
			ID:       string(r.ID),
			Ord:      i,
			Side:     r.Side.String(),
			Capacity: r.Capacity,
			AnchorX:  r.Anchor().X,
			AnchorY:  r.Anchor().Y,
			Units:    r.Units(),
		}
		for _, p := range r.ControlledTiles() {
			rec.Tiles = append(rec.Tiles, RegionTile{RegionID: rec.ID, Kind: kindControlled, X: p.X, Y: p.Y})
		}
		for _, p := range r.AssignedTiles() {
			id, _ := r.AssignedTo(p)
			rec.Tiles = append(rec.Tiles, RegionTile{RegionID: rec.ID, Kind: kindAssigned, X: p.X, Y: p.Y, UnitID: nullID(id)})
		}
		for _, p := range r.GuardedTiles() {
			id, _ := r.GuardedBy(p)
			rec.Tiles = append(rec.Tiles, RegionTile{RegionID: rec.ID, Kind: kindGuarded, X: p.X, Y: p.Y, UnitID: nullID(id)})
		}
		out = append(out, rec)
	}
	return out
}

// UnitRecords flattens every unit on the roster in ID order.
func UnitRecords(roster *units.Roster) ([]UnitRecord, error) {
	var out []UnitRecord
	for _, u := range roster.All() {
		pathJSON, err := json.Marshal(u.Path)
		if err != nil {
			return nil, fmt.Errorf("encode path of unit %d: %w", u.ID, err)
		}
		rec := UnitRecord{
			ID:       uint64(u.ID),
			Side:     u.Side.String(),
			Region:   string(u.Region),
			X:        u.Pos.X,
			Y:        u.Pos.Y,
			Weight:   u.Weight,
			Tasking:  int(u.Tasking),
			Facing:   int(u.Facing),
			PathJSON: string(pathJSON),
		}
		if g, ok := u.Goal(); ok {
			rec.GoalX = sql.NullInt64{Int64: int64(g.X), Valid: true}
			rec.GoalY = sql.NullInt64{Int64: int64(g.Y), Valid: true}
		}
		if d, ok := u.Defense(); ok {
			defJSON, err := json.Marshal(d)
			if err != nil {
				return nil, fmt.Errorf("encode defense of unit %d: %w", u.ID, err)
			}
			rec.DefenseJSON = sql.NullString{String: string(defJSON), Valid: true}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Restore rebuilds a registry and roster on g. Regions are restored in the
// order given; each region's roster is reattached in saved order before its
// in-flight and guard marks.
func Restore(g *world.Grid, regions []RegionRecord, unitRecs []UnitRecord) (*territory.Registry, *units.Roster, error) {
	roster := units.NewRoster()
	for _, rec := range unitRecs {
		u, err := restoreUnit(rec)
		if err != nil {
			return nil, nil, err
		}
		if err := roster.Add(u); err != nil {
			return nil, nil, fmt.Errorf("restore unit %d: %w", rec.ID, err)
		}
	}

	reg := territory.NewRegistry(g)
	for _, rec := range regions {
		side, err := world.ParseSide(rec.Side)
		if err != nil {
			return nil, nil, fmt.Errorf("restore region %s: %w", rec.ID, err)
		}
		var controlled []world.Pos
		for _, t := range rec.Tiles {
			if t.Kind == kindControlled {
				controlled = append(controlled, world.Pos{X: t.X, Y: t.Y})
			}
		}
		anchor := world.Pos{X: rec.AnchorX, Y: rec.AnchorY}
		r, err := reg.Restore(world.RegionID(rec.ID), side, rec.Capacity, anchor, controlled)
		if err != nil {
			return nil, nil, fmt.Errorf("restore region: %w", err)
		}

		for _, id := range rec.Units {
			u, ok := roster.Get(id)
			if !ok {
				return nil, nil, fmt.Errorf("restore region %s: unknown unit %d", rec.ID, id)
			}
			r.AssignUnit(u)
		}
		for _, t := range rec.Tiles {
			p := world.Pos{X: t.X, Y: t.Y}
			id := units.ID(t.UnitID.Int64)
			switch t.Kind {
			case kindAssigned:
				if err := r.Assign(p, id); err != nil {
					return nil, nil, fmt.Errorf("restore region %s: %w", rec.ID, err)
				}
			case kindGuarded:
				r.Guard(p, id)
			}
		}
	}

	if err := reg.CheckInvariants(); err != nil {
		return nil, nil, fmt.Errorf("restored state: %w", err)
	}
	return reg, roster, nil
}

func restoreUnit(rec UnitRecord) (*units.Unit, error) {
	side, err := world.ParseSide(rec.Side)
	if err != nil {
		return nil, fmt.Errorf("restore unit %d: %w", rec.ID, err)
	}
	u := units.New(units.ID(rec.ID), side, world.RegionID(rec.Region), world.Pos{X: rec.X, Y: rec.Y}, rec.Weight)

	var path []world.Pos
	if err := json.Unmarshal([]byte(rec.PathJSON), &path); err != nil {
		return nil, fmt.Errorf("decode path of unit %d: %w", rec.ID, err)
	}
	if rec.GoalX.Valid && rec.GoalY.Valid {
		u.RestoreOrders(path, world.Pos{X: int(rec.GoalX.Int64), Y: int(rec.GoalY.Int64)})
	}
	u.Tasking = units.Tasking(rec.Tasking)
	u.Facing = world.Direction(rec.Facing)

	if rec.DefenseJSON.Valid {
		var d units.Defense
		if err := json.Unmarshal([]byte(rec.DefenseJSON.String), &d); err != nil {
			return nil, fmt.Errorf("decode defense of unit %d: %w", rec.ID, err)
		}
		u.Defend(d.Pos, d.Priority)
	}
	return u, nil
}

func nullID(id units.ID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: true}
}
