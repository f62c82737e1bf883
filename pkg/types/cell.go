package types

import "time"

// Default cell geometry.
const (
	DefaultGridSize         = 8
	DefaultCellSize         = 8
	DefaultCellDiagonalSize = DefaultCellSize * 2
	DefaultColourRange      = 1
)

// Cell is one participant's region of a canvas.
type Cell struct {
	// CellID is a UUID v7, generated on creation.
	CellID string `json:"cell_id"`

	// CanvasID is the owning canvas.
	CanvasID string `json:"canvas_id"`

	// OwnerID is the assigned participant; nil for unassigned grid cells.
	// Unique per canvas.
	OwnerID *string `json:"owner_id"`

	CreatedAt time.Time `json:"created_at"`

	// X and Y are unique per canvas and unbounded on organic canvases.
	X int `json:"x"`
	Y int `json:"y"`

	Width              int  `json:"width"`
	Height             int  `json:"height"`
	SouthEastDiagonals int  `json:"south_east_diagonals"`
	SouthWestDiagonals int  `json:"south_west_diagonals"`
	ColourRange        int  `json:"colour_range"`
	IsEditable         bool `json:"is_editable"`
	NeighboursMayEdit  bool `json:"neighbours_may_edit"`

	// Seed is written as the cell's first edit in the same transaction as the
	// cell; a nil Seed writes a blank first edit. It is not persisted on the
	// cell itself.
	Seed *Edges `json:"-"`
}

// NewCell returns an unsaved cell at c carrying the canvas cell defaults.
func NewCell(canvas *Canvas, c Coord) *Cell {
	return &Cell{
		CanvasID:           canvas.CanvasID,
		X:                  c.X,
		Y:                  c.Y,
		Width:              canvas.CellWidth,
		Height:             canvas.CellHeight,
		SouthEastDiagonals: canvas.CellWidth * 2,
		SouthWestDiagonals: canvas.CellHeight * 2,
		ColourRange:        canvas.ColourRange,
		IsEditable:         true,
		NeighboursMayEdit:  true,
	}
}

// Coord returns the cell position.
func (c *Cell) Coord() Coord {
	return Coord{X: c.X, Y: c.Y}
}

// Owned reports whether the cell has been assigned.
func (c *Cell) Owned() bool {
	return c.OwnerID != nil && *c.OwnerID != ""
}

// Owner returns the owner ID or "" when unassigned.
func (c *Cell) Owner() string {
	if c.OwnerID == nil {
		return ""
	}
	return *c.OwnerID
}

// SetOwner assigns the cell to participant. A cell owned by someone else
// keeps its owner and yields a CellOwnedError.
func (c *Cell) SetOwner(participant string) error {
	if participant == "" {
		return validationf("participant ID must not be empty")
	}
	if c.Owned() && c.Owner() != participant {
		return &CellOwnedError{Coord: c.Coord(), OwnerID: c.Owner()}
	}
	c.OwnerID = &participant
	return nil
}

// LatticeDimensions returns the required length of each edge array.
func (c *Cell) LatticeDimensions() map[string]int {
	return map[string]int{
		EdgeHorizontal: c.Width*c.Width + c.Width,
		EdgeVertical:   c.Height*c.Height + c.Height,
		EdgeSouthEast:  c.Width * c.Height,
		EdgeSouthWest:  c.Width * c.Height,
	}
}

// Blank returns zero-filled edge arrays sized to the cell lattice.
func (c *Cell) Blank() Edges {
	dims := c.LatticeDimensions()
	return Edges{
		Horizontal: make([]int, dims[EdgeHorizontal]),
		Vertical:   make([]int, dims[EdgeVertical]),
		SouthEast:  make([]int, dims[EdgeSouthEast]),
		SouthWest:  make([]int, dims[EdgeSouthWest]),
	}
}

// ValidateEdges rejects arrays whose length differs from the lattice
// dimension and arrays containing negative segment values.
func (c *Cell) ValidateEdges(e Edges) error {
	dims := c.LatticeDimensions()
	for _, name := range EdgeNames {
		arr := *e.Field(name)
		if len(arr) != dims[name] {
			return &DimensionMismatchError{CellID: c.CellID, Field: name, Got: len(arr), Want: dims[name]}
		}
		for i, v := range arr {
			if v < 0 {
				return validationf("%s[%d] = %d is negative for cell %s", name, i, v, c.CellID)
			}
		}
	}
	return nil
}

// Validate checks the cell's own geometry and, for bounded canvases, that
// its position lies inside the grid.
func (c *Cell) Validate(canvas *Canvas) error {
	if c.CanvasID == "" {
		return validationf("cell has no canvas")
	}
	if c.Width < 1 || c.Height < 1 {
		return validationf("cell dimensions %dx%d must be positive", c.Width, c.Height)
	}
	if c.ColourRange < 1 {
		return validationf("cell colour range %d must be positive", c.ColourRange)
	}
	if canvas != nil && canvas.IsGrid() && !InBounds(c.Coord(), canvas.GridWidth, canvas.GridHeight) {
		return validationf("cell position %s is outside the grid", c.Coord())
	}
	return nil
}

// EdgePortion records which slice of an edge array a cell shares with the
// neighbour on one side. Portions are signed: +n selects the first n
// elements, -n the last n.
type EdgePortion struct {
	Edge      string
	Self      int
	Neighbour int
}

// AdjacentEdgePortions returns the shared-edge mapping for each cardinal
// direction. North and south share rows of the horizontal array (south row
// first); east and west share columns of the vertical array (west column
// first).
func (c *Cell) AdjacentEdgePortions() map[Direction]EdgePortion {
	return map[Direction]EdgePortion{
		North: {Edge: EdgeHorizontal, Self: -c.Width, Neighbour: c.Width},
		South: {Edge: EdgeHorizontal, Self: c.Width, Neighbour: -c.Width},
		East:  {Edge: EdgeVertical, Self: -c.Height, Neighbour: c.Height},
		West:  {Edge: EdgeVertical, Self: c.Height, Neighbour: -c.Height},
	}
}
