// Package mosaic is the public entry point to the canvas engine: it attaches
// a store from a Config and hands back an engine bound to it.
package mosaic

import (
	"fmt"

	"github.com/mesh-intelligence/mosaic/internal/engine"
	"github.com/mesh-intelligence/mosaic/pkg/sqlite"
	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// Version is the release string, overridden at link time by the build.
var Version = "0.1.0"

// Option configures the engine opened by Open.
type Option = engine.Option

// Engine options, re-exported for callers outside this module.
var (
	WithLogger     = engine.WithLogger
	WithSeed       = engine.WithSeed
	WithRand       = engine.WithRand
	WithClock      = engine.WithClock
	WithPlacement  = engine.WithPlacement
	WithRegisterer = engine.WithRegisterer
)

// Mosaic is an engine together with the store it owns.
type Mosaic struct {
	*engine.Engine
	store types.Store
}

// Open attaches the store described by cfg and returns an engine over it.
// Close releases the store.
func Open(cfg types.Config, opts ...Option) (*Mosaic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	store := sqlite.NewBackend()
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach %s store: %w", cfg.Backend, err)
	}
	e, err := engine.New(store, opts...)
	if err != nil {
		_ = store.Detach()
		return nil, err
	}
	return &Mosaic{Engine: e, store: store}, nil
}

// Close detaches the store, flushing any buffered JSONL writes.
func (m *Mosaic) Close() error {
	return m.store.Detach()
}
