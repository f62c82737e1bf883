package types

import (
	"errors"
	"fmt"
)

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrTableNotFound   = errors.New("table not found")
)

// Table operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid entity ID")
	ErrInvalidData   = errors.New("invalid entity data")
	ErrInvalidFilter = errors.New("invalid filter value type")
	ErrDuplicate     = errors.New("unique constraint violated")
	ErrAppendOnly    = errors.New("entity history is append-only")
	ErrImmutableEdit = errors.New("edits are immutable except for validity")
)

// Canvas engine errors.
var (
	ErrValidation        = errors.New("validation failed")
	ErrDimensionMismatch = errors.New("edge array length does not match cell lattice")
	ErrFullGrid          = errors.New("canvas grid is full")
	ErrNoAvailableCells  = errors.New("no available cells")
	ErrPermission        = errors.New("permission denied")
	ErrCanvasClosed      = errors.New("canvas is not accepting edits")
	ErrCellOwned         = errors.New("cell is already owned")
	ErrGridIncomplete    = errors.New("grid has not been generated")

	// ErrPropagationIncomplete marks a submitted edit that was stored while
	// some of its neighbour edits were not.
	ErrPropagationIncomplete = errors.New("edge propagation incomplete")
)

// NoAvailableCellsError reports that the contiguous search exhausted every
// candidate around the owned cells of a canvas.
type NoAvailableCellsError struct {
	CanvasID string
	Title    string
}

func (e *NoAvailableCellsError) Error() string {
	return fmt.Sprintf("no available cells on canvas %q (%s)", e.Title, e.CanvasID)
}

func (e *NoAvailableCellsError) Is(target error) bool {
	return target == ErrNoAvailableCells
}

// CellOwnedError is returned when the allocation search lands on a cell that
// already has an owner even though it was not in the owned set.
type CellOwnedError struct {
	Coord   Coord
	OwnerID string
}

func (e *CellOwnedError) Error() string {
	return fmt.Sprintf("cell %s is already owned by %s", e.Coord, e.OwnerID)
}

func (e *CellOwnedError) Is(target error) bool {
	return target == ErrCellOwned
}

// DimensionMismatchError describes an edge array whose length differs from
// the owning cell's lattice dimension. It matches both ErrDimensionMismatch
// and ErrValidation.
type DimensionMismatchError struct {
	CellID string
	Field  string
	Got    int
	Want   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s with length %d != %d for cell %s", e.Field, e.Got, e.Want, e.CellID)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch || target == ErrValidation
}

// validationf formats a validation failure wrapping ErrValidation.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
