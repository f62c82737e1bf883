package types

import (
	"fmt"
	"strings"
)

// Coord is an integer cell position on a canvas. Y grows northward.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// Add returns the coordinate displaced by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y}
}

// Direction names one of the eight Moore neighbours. The cardinal values
// are the persisted source-direction codes of an edit.
type Direction int

const (
	North Direction = iota
	East
	South
	West
	NorthEast
	SouthEast
	SouthWest
	NorthWest
)

type directionInfo struct {
	name     string
	offset   Coord
	opposite Direction
}

var directionTable = [...]directionInfo{
	North:     {"north", Coord{0, 1}, South},
	East:      {"east", Coord{1, 0}, West},
	South:     {"south", Coord{0, -1}, North},
	West:      {"west", Coord{-1, 0}, East},
	NorthEast: {"north_east", Coord{1, 1}, SouthWest},
	SouthEast: {"south_east", Coord{1, -1}, NorthWest},
	SouthWest: {"south_west", Coord{-1, -1}, NorthEast},
	NorthWest: {"north_west", Coord{-1, 1}, SouthEast},
}

// CardinalDirections lists the four edge-sharing neighbours in source order.
var CardinalDirections = [4]Direction{North, East, South, West}

// MooreDirections lists all eight neighbours: cardinals then corners.
var MooreDirections = [8]Direction{North, East, South, West, NorthEast, SouthEast, SouthWest, NorthWest}

// Valid reports whether d is one of the eight known directions.
func (d Direction) Valid() bool {
	return d >= North && d <= NorthWest
}

// IsCardinal reports whether d shares an edge with the origin cell.
func (d Direction) IsCardinal() bool {
	return d >= North && d <= West
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionTable[d].name
}

// Offset returns the (dx, dy) displacement for d.
func (d Direction) Offset() Coord {
	return directionTable[d].offset
}

// Opposite returns the direction pointing back at the origin.
func (d Direction) Opposite() Direction {
	return directionTable[d].opposite
}

// ParseDirection maps a direction name such as "north_east" to a Direction.
func ParseDirection(name string) (Direction, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, d := range MooreDirections {
		if directionTable[d].name == name {
			return d, nil
		}
	}
	return 0, validationf("unknown direction %q", name)
}

// NeighbourOffsets returns the ordered directions of the neighbourhood: the
// four cardinals, or the full Moore set when includeCorners is true.
func NeighbourOffsets(includeCorners bool) []Direction {
	if includeCorners {
		out := MooreDirections
		return out[:]
	}
	out := CardinalDirections
	return out[:]
}

// CorrectForTorus wraps a coordinate that stepped one cell off a torus
// whose maximum coordinate is max. Both axes of max must be at least 2 so
// that no cell is its own neighbour.
func CorrectForTorus(c, max Coord) (Coord, error) {
	if max.X < 2 || max.Y < 2 {
		return c, validationf("torus max coordinates %s must both be >= 2", max)
	}
	switch {
	case c.X > max.X:
		c.X = 0
	case c.X < 0:
		c.X = max.X
	}
	switch {
	case c.Y > max.Y:
		c.Y = 0
	case c.Y < 0:
		c.Y = max.Y
	}
	return c, nil
}

// InBounds reports whether c lies in [0,width) x [0,height).
func InBounds(c Coord, width, height int) bool {
	return 0 <= c.X && c.X < width && 0 <= c.Y && c.Y < height
}
