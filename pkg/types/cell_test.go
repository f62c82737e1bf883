package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellLatticeDimensions(t *testing.T) {
	c := &Cell{Width: 8, Height: 8}
	assert.Equal(t, map[string]int{
		EdgeHorizontal: 72,
		EdgeVertical:   72,
		EdgeSouthEast:  64,
		EdgeSouthWest:  64,
	}, c.LatticeDimensions())

	blank := c.Blank()
	assert.Len(t, blank.Horizontal, 72)
	assert.Len(t, blank.SouthWest, 64)
	assert.True(t, blank.IsZero())
	assert.NoError(t, c.ValidateEdges(blank))
}

func TestCellValidateEdges(t *testing.T) {
	c := &Cell{CellID: "c1", Width: 2, Height: 2}

	short := c.Blank()
	short.Vertical = short.Vertical[:5]
	err := c.ValidateEdges(short)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, ErrValidation)
	var dm *DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, EdgeVertical, dm.Field)
	assert.Equal(t, 5, dm.Got)
	assert.Equal(t, 6, dm.Want)

	negative := c.Blank()
	negative.SouthEast[1] = -3
	err = c.ValidateEdges(negative)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrDimensionMismatch)
}

func TestCellValidatePosition(t *testing.T) {
	canvas := testCanvas(func(c *Canvas) { c.CanvasID = "canvas-1" })
	inside := NewCell(canvas, Coord{2, 2})
	assert.NoError(t, inside.Validate(canvas))
	assert.Equal(t, 16, inside.SouthEastDiagonals)
	assert.True(t, inside.IsEditable)
	assert.True(t, inside.NeighboursMayEdit)

	outside := NewCell(canvas, Coord{3, 0})
	assert.ErrorIs(t, outside.Validate(canvas), ErrValidation)

	organic := testCanvas(func(c *Canvas) {
		c.CanvasID = "canvas-2"
		c.GridWidth, c.GridHeight = 0, 0
		c.NewCellsAllowed = true
	})
	far := NewCell(organic, Coord{-40, 17})
	assert.NoError(t, far.Validate(organic))
}

func TestCellOwnership(t *testing.T) {
	c := &Cell{}
	assert.False(t, c.Owned())
	assert.Equal(t, "", c.Owner())
	assert.ErrorIs(t, c.SetOwner(""), ErrValidation)
	require.NoError(t, c.SetOwner("artist"))
	assert.True(t, c.Owned())
	assert.Equal(t, "artist", c.Owner())

	require.NoError(t, c.SetOwner("artist"), "reassigning the same owner is a no-op")
	err := c.SetOwner("other")
	assert.ErrorIs(t, err, ErrCellOwned)
	var owned *CellOwnedError
	require.ErrorAs(t, err, &owned)
	assert.Equal(t, "artist", owned.OwnerID)
	assert.Equal(t, "artist", c.Owner())
}

func TestAdjacentEdgePortions(t *testing.T) {
	c := &Cell{Width: 2, Height: 2}
	portions := c.AdjacentEdgePortions()
	require.Len(t, portions, 4)

	// Horizontal array of a 2x2 cell is three rows of two, south row first.
	h := []int{1, 2, 3, 4, 5, 6}
	north := portions[North]
	assert.Equal(t, EdgeHorizontal, north.Edge)
	assert.Equal(t, []int{5, 6}, PortionOf(h, north.Self))
	assert.Equal(t, []int{1, 2}, PortionOf(h, north.Neighbour))

	south := portions[South]
	assert.Equal(t, EdgeHorizontal, south.Edge)
	assert.Equal(t, []int{1, 2}, PortionOf(h, south.Self))
	assert.Equal(t, []int{5, 6}, PortionOf(h, south.Neighbour))

	v := []int{1, 2, 3, 4, 5, 6}
	east := portions[East]
	assert.Equal(t, EdgeVertical, east.Edge)
	assert.Equal(t, []int{5, 6}, PortionOf(v, east.Self))
	assert.Equal(t, []int{1, 2}, PortionOf(v, east.Neighbour))

	west := portions[West]
	assert.Equal(t, EdgeVertical, west.Edge)
	assert.Equal(t, []int{1, 2}, PortionOf(v, west.Self))
	assert.Equal(t, []int{5, 6}, PortionOf(v, west.Neighbour))

	// Each side's self portion is the opposite side's neighbour portion.
	for _, d := range CardinalDirections {
		assert.Equal(t, portions[d].Self, portions[d.Opposite()].Neighbour, d.String())
	}
}
