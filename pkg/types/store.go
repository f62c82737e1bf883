package types

// Store defines the interface for backend-agnostic canvas storage.
// Callers attach to a backend, access tables by name, and detach when done.
type Store interface {
	// GetTable returns the Table for the given name.
	// Returns ErrTableNotFound if the name is not a standard table.
	GetTable(name string) (Table, error)

	// Attach connects the Store to the backend described by config.
	// Creates the DataDir if it does not exist. Returns ErrAlreadyAttached
	// if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, operations on tables return ErrStoreDetached.
	Detach() error
}
