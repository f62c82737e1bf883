package types

import (
	"slices"
	"time"
)

// Edge array names, as persisted.
const (
	EdgeHorizontal = "horizontal"
	EdgeVertical   = "vertical"
	EdgeSouthEast  = "south_east"
	EdgeSouthWest  = "south_west"
)

// EdgeNames lists the four edge arrays in persisted order.
var EdgeNames = [4]string{EdgeHorizontal, EdgeVertical, EdgeSouthEast, EdgeSouthWest}

// Edges holds the four edge-segment arrays of a cell's artwork.
type Edges struct {
	Horizontal []int `json:"horizontal"`
	Vertical   []int `json:"vertical"`
	SouthEast  []int `json:"south_east"`
	SouthWest  []int `json:"south_west"`
}

// Field returns a pointer to the named edge array, or nil for an unknown name.
func (e *Edges) Field(name string) *[]int {
	switch name {
	case EdgeHorizontal:
		return &e.Horizontal
	case EdgeVertical:
		return &e.Vertical
	case EdgeSouthEast:
		return &e.SouthEast
	case EdgeSouthWest:
		return &e.SouthWest
	}
	return nil
}

// Clone returns a deep copy.
func (e Edges) Clone() Edges {
	return Edges{
		Horizontal: slices.Clone(e.Horizontal),
		Vertical:   slices.Clone(e.Vertical),
		SouthEast:  slices.Clone(e.SouthEast),
		SouthWest:  slices.Clone(e.SouthWest),
	}
}

// Equal reports whether every array matches element-wise.
func (e Edges) Equal(o Edges) bool {
	return slices.Equal(e.Horizontal, o.Horizontal) &&
		slices.Equal(e.Vertical, o.Vertical) &&
		slices.Equal(e.SouthEast, o.SouthEast) &&
		slices.Equal(e.SouthWest, o.SouthWest)
}

// IsZero reports whether every element of every array is zero.
func (e Edges) IsZero() bool {
	for _, name := range EdgeNames {
		if !allZero(*e.Field(name)) {
			return false
		}
	}
	return true
}

// Sub returns e - o element-wise. Arrays must have equal lengths; the
// caller validates dimensions first.
func (e Edges) Sub(o Edges) Edges {
	return Edges{
		Horizontal: subInts(e.Horizontal, o.Horizontal),
		Vertical:   subInts(e.Vertical, o.Vertical),
		SouthEast:  subInts(e.SouthEast, o.SouthEast),
		SouthWest:  subInts(e.SouthWest, o.SouthWest),
	}
}

// Add returns e + delta element-wise, reconstructing the later state of a
// delta produced by Sub.
func (e Edges) Add(delta Edges) Edges {
	return Edges{
		Horizontal: addInts(e.Horizontal, delta.Horizontal),
		Vertical:   addInts(e.Vertical, delta.Vertical),
		SouthEast:  addInts(e.SouthEast, delta.SouthEast),
		SouthWest:  addInts(e.SouthWest, delta.SouthWest),
	}
}

func subInts(a, b []int) []int {
	out := make([]int, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func addInts(a, b []int) []int {
	out := make([]int, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func allZero(xs []int) bool {
	for _, x := range xs {
		if x != 0 {
			return false
		}
	}
	return true
}

// Portion returns the bounds of a signed portion of an array of length n:
// a positive portion selects the first p elements, a negative portion the
// last -p elements.
func Portion(n, p int) (lo, hi int) {
	if p >= 0 {
		return 0, min(p, n)
	}
	return max(n+p, 0), n
}

// PortionOf returns the sub-slice of xs selected by the signed portion p.
// The result aliases xs.
func PortionOf(xs []int, p int) []int {
	lo, hi := Portion(len(xs), p)
	return xs[lo:hi]
}

// Edit is one append-only entry in a cell's history. Only IsValid may change
// after creation.
type Edit struct {
	// EditID is a UUID v7, generated on creation.
	EditID string `json:"edit_id"`

	// Sequence is the store-assigned creation order across all edits.
	Sequence int64 `json:"sequence"`

	// CellID is the cell this edit belongs to.
	CellID string `json:"cell_id"`

	// Timestamp is when the edit was appended.
	Timestamp time.Time `json:"timestamp"`

	Edges

	// IsValid excludes the edit from the latest and edit-number views when false.
	IsValid bool `json:"is_valid"`

	// AuthorID is the participant who made the change (nil for generated blanks).
	AuthorID *string `json:"author_id"`

	// SourceDirection names the neighbour whose edit triggered this one (nil
	// for direct edits).
	SourceDirection *Direction `json:"source_direction"`
}

// Author returns the author ID or "" when unattributed.
func (e *Edit) Author() string {
	if e.AuthorID == nil {
		return ""
	}
	return *e.AuthorID
}

// CloneAsNew returns a copy of e stripped of its identity, ready to be
// appended as a fresh edit.
func (e *Edit) CloneAsNew() *Edit {
	return &Edit{
		CellID:  e.CellID,
		Edges:   e.Edges.Clone(),
		IsValid: true,
	}
}
