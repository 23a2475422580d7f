// Package world provides the battlefield grid, tile attributes, and spatial primitives.
// Coordinates are integer (x, y) pairs with +Y pointing north.
package world

import "fmt"

// Pos is a tile coordinate on the grid.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p offset by d.
func (p Pos) Add(d Pos) Pos {
	return Pos{X: p.X + d.X, Y: p.Y + d.Y}
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Manhattan returns the 4-directional grid distance between two positions.
func Manhattan(a, b Pos) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Less orders positions row-major (Y, then X). Used wherever iteration order must be stable.
func Less(a, b Pos) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// CardinalOffsets are the four orthogonal neighbour offsets (N, E, S, W).
var CardinalOffsets = [4]Pos{
	{X: 0, Y: 1},
	{X: 1, Y: 0},
	{X: 0, Y: -1},
	{X: -1, Y: 0},
}

// DiagonalOffsets are the four diagonal neighbour offsets (NE, SE, SW, NW).
var DiagonalOffsets = [4]Pos{
	{X: 1, Y: 1},
	{X: 1, Y: -1},
	{X: -1, Y: -1},
	{X: -1, Y: 1},
}

// Side identifies one of the opposing factions.
type Side uint8

const (
	SideNone Side = iota
	SideA
	SideB
)

// Opponent returns the opposing side. SideNone has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	default:
		return SideNone
	}
}

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	default:
		return "-"
	}
}

// ParseSide converts "A"/"B" (case-insensitive) into a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "A", "a":
		return SideA, nil
	case "B", "b":
		return SideB, nil
	}
	return SideNone, fmt.Errorf("unknown side %q", s)
}

// RegionID names a region, e.g. "Alpha".
type RegionID string

// Occupation tags a tile with its owning faction and region.
type Occupation struct {
	Side   Side     `json:"side"`
	Region RegionID `json:"region"`
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
