package types

// Filter is a set of named query constraints passed to Table.Fetch. Each
// table documents the keys it accepts; unknown keys are ignored and values
// of the wrong type yield ErrInvalidFilter.
type Filter map[string]any

// Table provides uniform CRUD operations for a single entity type.
// Get and Fetch return any; callers type-assert to the concrete entity struct.
type Table interface {
	// Get retrieves the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Get(id string) (any, error)

	// Set creates or updates an entity. When id is empty a new UUID v7 is
	// generated. Returns the actual ID used (generated or provided).
	Set(id string, data any) (string, error)

	// Delete removes the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Delete(id string) error

	// Fetch returns all entities matching the filter. An empty filter
	// returns every entity in the table.
	Fetch(filter Filter) ([]any, error)
}

// BulkTable is implemented by tables that can create many entities in a
// single atomic write. Either every entity is stored or none is.
type BulkTable interface {
	Table
	SetAll(data []any) ([]string, error)
}

// CountingTable is implemented by tables that can count matching entities
// without hydrating them.
type CountingTable interface {
	Table
	Count(filter Filter) (int, error)
}
