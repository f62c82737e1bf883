package types

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var canvasValidate = validator.New()

// Topology is the derived shape of a canvas.
type Topology int

const (
	TopologyGrid Topology = iota
	TopologyTorus
	TopologyOrganic
)

func (t Topology) String() string {
	switch t {
	case TopologyGrid:
		return "grid"
	case TopologyTorus:
		return "torus"
	case TopologyOrganic:
		return "organic"
	}
	return fmt.Sprintf("topology(%d)", int(t))
}

// InitialPlacement selects the first owned cell on a bounded canvas.
type InitialPlacement int

const (
	PlacementCentre InitialPlacement = iota
	PlacementRandom
)

func (p InitialPlacement) String() string {
	switch p {
	case PlacementCentre:
		return "centre"
	case PlacementRandom:
		return "random"
	}
	return fmt.Sprintf("placement(%d)", int(p))
}

// ParsePlacement maps "centre" (or "center") and "random" to a placement.
func ParsePlacement(name string) (InitialPlacement, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "centre", "center":
		return PlacementCentre, nil
	case "random":
		return PlacementRandom, nil
	}
	return 0, validationf("unknown initial placement %q", name)
}

// Canvas is a shared drawing surface partitioned into cells.
type Canvas struct {
	// CanvasID is a UUID v7, generated on creation.
	CanvasID string `json:"canvas_id"`

	Title       string `json:"title" validate:"required,max=200"`
	Slug        string `json:"slug"`
	Description string `json:"description" validate:"max=4000"`
	CreatorID   string `json:"creator_id"`

	CreatedAt time.Time `json:"created_at"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`

	// GridWidth and GridHeight are both zero on organic canvases.
	GridWidth  int `json:"grid_width" validate:"gte=0,lte=10000"`
	GridHeight int `json:"grid_height" validate:"gte=0,lte=10000"`

	CellWidth   int `json:"cell_width" validate:"gte=1,lte=256"`
	CellHeight  int `json:"cell_height" validate:"gte=1,lte=256"`
	ColourRange int `json:"colour_range" validate:"gte=1"`

	IsTorus         bool `json:"is_torus"`
	NewCellsAllowed bool `json:"new_cells_allowed"`
}

// Normalize fills derived and default fields: the slug from the title,
// cell geometry defaults, and a missing grid axis set to 1 when the other
// axis is given.
func (c *Canvas) Normalize() {
	if c.Slug == "" {
		c.Slug = Slugify(c.Title)
	}
	if (c.GridWidth == 0) != (c.GridHeight == 0) {
		if c.GridWidth == 0 {
			c.GridWidth = 1
		} else {
			c.GridHeight = 1
		}
	}
	if c.CellWidth == 0 {
		c.CellWidth = DefaultCellSize
	}
	if c.CellHeight == 0 {
		c.CellHeight = DefaultCellSize
	}
	if c.ColourRange == 0 {
		c.ColourRange = DefaultColourRange
	}
}

// Validate checks field ranges and the topology invariants. Failures wrap
// ErrValidation.
func (c *Canvas) Validate() error {
	if err := canvasValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Field() == "EndTime" && fe.Tag() == "gtfield" {
				return validationf("start_time %s must be earlier than end_time %s",
					c.StartTime.Format(time.RFC3339), c.EndTime.Format(time.RFC3339))
			}
			return validationf("canvas field %s failed %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if c.Slug == "" {
		return validationf("canvas title %q yields an empty slug", c.Title)
	}
	if c.IsTorus && c.NewCellsAllowed {
		return validationf("torus canvases cannot add new cells")
	}
	if c.IsTorus && (c.GridWidth <= 2 || c.GridHeight <= 2) {
		return validationf("width %d < 3 and/or length %d < 3", c.GridWidth, c.GridHeight)
	}
	if c.IsGrid() && c.NewCellsAllowed {
		return validationf("bounded canvas %dx%d cannot allow new cells", c.GridWidth, c.GridHeight)
	}
	if !c.IsGrid() && !c.NewCellsAllowed {
		return validationf("canvas without grid dimensions must allow new cells")
	}
	return nil
}

// IsGrid reports whether both grid dimensions are set.
func (c *Canvas) IsGrid() bool {
	return c.GridWidth > 0 && c.GridHeight > 0
}

// Topology derives the active topology.
func (c *Canvas) Topology() Topology {
	switch {
	case c.IsTorus:
		return TopologyTorus
	case c.IsGrid():
		return TopologyGrid
	default:
		return TopologyOrganic
	}
}

// MaxCoordinates returns the largest valid coordinate of a bounded canvas.
func (c *Canvas) MaxCoordinates() (Coord, error) {
	if !c.IsGrid() {
		return Coord{}, validationf("max coordinates require a defined grid")
	}
	return Coord{X: c.GridWidth - 1, Y: c.GridHeight - 1}, nil
}

// Capacity returns the number of cells a bounded canvas can hold, or 0 for
// organic canvases.
func (c *Canvas) Capacity() int {
	if !c.IsGrid() {
		return 0
	}
	return c.GridWidth * c.GridHeight
}

// CentreCoordinates returns the floor of the grid midpoint, or the origin on
// organic canvases.
func (c *Canvas) CentreCoordinates() Coord {
	max, err := c.MaxCoordinates()
	if err != nil {
		return Coord{}
	}
	return Coord{X: max.X / 2, Y: max.Y / 2}
}

// RandomCoordinates returns a uniformly chosen in-bounds coordinate, or the
// origin on organic canvases.
func (c *Canvas) RandomCoordinates(rng *rand.Rand) Coord {
	if !c.IsGrid() {
		return Coord{}
	}
	return Coord{X: rng.IntN(c.GridWidth), Y: rng.IntN(c.GridHeight)}
}

// InitialCoordinates dispatches on the placement strategy.
func (c *Canvas) InitialCoordinates(p InitialPlacement, rng *rand.Rand) (Coord, error) {
	switch p {
	case PlacementCentre:
		return c.CentreCoordinates(), nil
	case PlacementRandom:
		return c.RandomCoordinates(rng), nil
	}
	return Coord{}, validationf("unknown initial placement %d", int(p))
}

// Open reports whether now lies inside the canvas edit window.
func (c *Canvas) Open(now time.Time) bool {
	return !now.Before(c.StartTime) && !now.After(c.EndTime)
}

// Slugify lowercases s, keeps letters and digits, and joins the remaining
// words with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingDash = true
		}
	}
	return b.String()
}
