package world

// Direction is one of the eight compass headings, or DirNone while idle.
type Direction int8

const (
	DirNone Direction = iota
	DirN
	DirNE
	DirE
	DirSE
	DirS
	DirSW
	DirW
	DirNW
)

var directionVectors = [...]Pos{
	DirNone: {0, 0},
	DirN:    {0, 1},
	DirNE:   {1, 1},
	DirE:    {1, 0},
	DirSE:   {1, -1},
	DirS:    {0, -1},
	DirSW:   {-1, -1},
	DirW:    {-1, 0},
	DirNW:   {-1, 1},
}

var directionNames = [...]string{
	DirNone: "none",
	DirN:    "N",
	DirNE:   "NE",
	DirE:    "E",
	DirSE:   "SE",
	DirS:    "S",
	DirSW:   "SW",
	DirW:    "W",
	DirNW:   "NW",
}

// VectorToDirection maps a movement vector to a compass direction. Each
// component is clamped to [-1, 1] first, so the function is total; the zero
// vector maps to DirNone.
func VectorToDirection(dx, dy int) Direction {
	v := Pos{X: clampUnit(dx), Y: clampUnit(dy)}
	for d, dv := range directionVectors {
		if dv == v {
			return Direction(d)
		}
	}
	return DirNone
}

// Vector returns the unit step for d.
func (d Direction) Vector() Pos {
	if d < DirNone || int(d) >= len(directionVectors) {
		return Pos{}
	}
	return directionVectors[d]
}

// Degrees returns the compass bearing (N=0, clockwise in 45° steps), or -1 for DirNone.
func (d Direction) Degrees() int {
	if d <= DirNone || int(d) >= len(directionVectors) {
		return -1
	}
	return int(d-DirN) * 45
}

func (d Direction) String() string {
	if d < DirNone || int(d) >= len(directionNames) {
		return "invalid"
	}
	return directionNames[d]
}

func clampUnit(v int) int {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
