package world

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// layoutRecord is one line of the persisted tile layout.
type layoutRecord struct {
	X           int  `json:"x"`
	Y           int  `json:"y"`
	Maneuver    int  `json:"maneuver"`
	Elevation   int  `json:"elevation"`
	Concealment int  `json:"concealment"`
	Cover       int  `json:"cover"`
	Fuel        int  `json:"fuel"`
	Manpower    int  `json:"manpower"`
	Resources   int  `json:"resources"`
	Water       bool `json:"water,omitempty"`
}

// WriteLayout writes one JSON record per tile, newline-delimited, row-major.
func WriteLayout(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range g.tiles {
		t := &g.tiles[i]
		rec := layoutRecord{
			X:           t.Pos.X,
			Y:           t.Pos.Y,
			Maneuver:    t.Maneuver,
			Elevation:   t.Elevation,
			Concealment: t.Concealment,
			Cover:       t.Cover,
			Fuel:        t.Fuel,
			Manpower:    t.Manpower,
			Resources:   t.Resources,
			Water:       t.Water,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode tile %s: %w", t.Pos, err)
		}
	}
	return bw.Flush()
}

// ReadLayout parses a layout written by WriteLayout. The grid is sized from the
// largest coordinates seen; tiles with no record keep default attributes and
// a missing water field means dry land.
func ReadLayout(r io.Reader) (*Grid, error) {
	var records []layoutRecord
	maxX, maxY := -1, -1

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec layoutRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("layout line %d: %w", line, err)
		}
		if rec.X < 0 || rec.Y < 0 {
			return nil, fmt.Errorf("layout line %d: negative coordinate (%d,%d)", line, rec.X, rec.Y)
		}
		maxX = max(maxX, rec.X)
		maxY = max(maxY, rec.Y)
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read layout: no tiles")
	}

	g := NewGrid(maxX+1, maxY+1)
	for _, rec := range records {
		t := g.Tile(Pos{X: rec.X, Y: rec.Y})
		t.Maneuver = rec.Maneuver
		t.Elevation = rec.Elevation
		t.Concealment = rec.Concealment
		t.Cover = rec.Cover
		t.Fuel = rec.Fuel
		t.Manpower = rec.Manpower
		t.Resources = rec.Resources
		t.Water = rec.Water
	}
	return g, nil
}
