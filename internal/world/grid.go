package world

import "fmt"

// Tile holds the per-position terrain attributes.
// Ownership is not stored here: it lives in the territory index and is read
// through Grid.Occupation.
type Tile struct {
	Pos Pos `json:"pos"`

	Maneuver    int `json:"maneuver"`    // Negative values penalize movement
	Elevation   int `json:"elevation"`   // Signed height
	Concealment int `json:"concealment"` // 0–100, higher = harder to detect
	Cover       int `json:"cover"`       // 0–100, higher = harder to hit

	Fuel      int `json:"fuel"`
	Manpower  int `json:"manpower"`
	Resources int `json:"resources"`

	Water bool `json:"water"` // Impassable
}

// ResourceValue sums the resource triad.
func (t *Tile) ResourceValue() int {
	return t.Fuel + t.Manpower + t.Resources
}

// OwnershipView resolves which region currently controls a position.
type OwnershipView interface {
	OwnerOf(p Pos) (Occupation, bool)
}

// Grid is a fixed-size rectangular battlefield.
type Grid struct {
	width   int
	height  int
	tiles   []Tile // row-major: tiles[y*width + x]
	version uint64

	owners OwnershipView
}

// NewGrid creates a width×height grid of flat, dry, empty tiles.
func NewGrid(width, height int) *Grid {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("world: invalid grid size %dx%d", width, height))
	}
	g := &Grid{
		width:  width,
		height: height,
		tiles:  make([]Tile, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g.tiles[y*width+x].Pos = Pos{X: x, Y: y}
		}
	}
	return g
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// Len returns the total tile count.
func (g *Grid) Len() int { return len(g.tiles) }

// InBounds reports whether p lies on the grid.
func (g *Grid) InBounds(p Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.width && p.Y < g.height
}

// Tile returns the tile at p. Accessing an out-of-bounds position is a
// programming error and panics; callers filter with InBounds or Neighbors.
func (g *Grid) Tile(p Pos) *Tile {
	if !g.InBounds(p) {
		panic(fmt.Sprintf("world: tile %s out of bounds (%dx%d)", p, g.width, g.height))
	}
	return &g.tiles[p.Y*g.width+p.X]
}

// Lookup returns the tile at p, or false if p is out of bounds.
func (g *Grid) Lookup(p Pos) (*Tile, bool) {
	if !g.InBounds(p) {
		return nil, false
	}
	return &g.tiles[p.Y*g.width+p.X], true
}

// Adjacent returns the in-bounds 4-directional neighbour tiles of p.
func (g *Grid) Adjacent(p Pos) []*Tile {
	out := make([]*Tile, 0, 4)
	for _, d := range CardinalOffsets {
		if t, ok := g.Lookup(p.Add(d)); ok {
			out = append(out, t)
		}
	}
	return out
}

// Neighbors returns the in-bounds neighbour positions of p, orthogonal first,
// then diagonals when diagonal is set.
func (g *Grid) Neighbors(p Pos, diagonal bool) []Pos {
	out := make([]Pos, 0, 8)
	for _, d := range CardinalOffsets {
		if n := p.Add(d); g.InBounds(n) {
			out = append(out, n)
		}
	}
	if diagonal {
		for _, d := range DiagonalOffsets {
			if n := p.Add(d); g.InBounds(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

// Update applies fn to the tile at p and bumps the grid version.
// Position is restored afterwards so fn cannot move a tile.
func (g *Grid) Update(p Pos, fn func(t *Tile)) {
	t := g.Tile(p)
	fn(t)
	t.Pos = p
	g.version++
}

// Version increments on every Update.
func (g *Grid) Version() uint64 { return g.version }

// Positions returns every position in row-major order.
func (g *Grid) Positions() []Pos {
	out := make([]Pos, 0, len(g.tiles))
	for i := range g.tiles {
		out = append(out, g.tiles[i].Pos)
	}
	return out
}

// AttachOwnership installs the read-only ownership lookup.
func (g *Grid) AttachOwnership(view OwnershipView) {
	g.owners = view
}

// Occupation returns the owning faction and region for p, if any.
func (g *Grid) Occupation(p Pos) (Occupation, bool) {
	if g.owners == nil {
		return Occupation{}, false
	}
	return g.owners.OwnerOf(p)
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, tiles=%d)", g.width, g.height, g.Len())
}
