// Package sqlite exposes the SQLite canvas store while keeping its
// implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/mosaic/internal/sqlite"
	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// NewBackend returns an unattached SQLite store. Attach it before use:
//
//	store := sqlite.NewBackend()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".mosaic-db",
//	})
//	defer store.Detach()
func NewBackend() types.Store {
	return sqlite.NewBackend()
}
