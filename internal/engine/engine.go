// Package engine allocates canvas cells and propagates shared-edge edits
// between neighbouring cells. All state lives in a types.Store; the engine
// adds the per-canvas and per-cell locking that the allocation and
// propagation read-then-write cycles need.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// Engine is the canvas core. It is safe for concurrent use.
type Engine struct {
	canvases types.Table
	cells    types.Table
	edits    types.Table

	logger    *slog.Logger
	now       func() time.Time
	placement types.InitialPlacement
	metrics   *Metrics
	locks     *lockSet

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSeed seeds the engine's PCG source so allocation order is
// reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithRand sets the random source used for allocation.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithClock replaces time.Now for the canvas edit window check.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPlacement sets the initial placement used by GetOrAssignCell.
func WithPlacement(p types.InitialPlacement) Option {
	return func(e *Engine) {
		e.placement = p
	}
}

// WithRegisterer registers the engine metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		if reg != nil {
			e.metrics = NewMetrics(reg)
		}
	}
}

// New returns an engine over an attached store.
func New(store types.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:    slog.Default(),
		now:       time.Now,
		placement: types.PlacementCentre,
		locks:     newLockSet(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		seed := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.NewRegistry())
	}

	for name, dst := range map[string]*types.Table{
		types.TableCanvases: &e.canvases,
		types.TableCells:    &e.cells,
		types.TableEdits:    &e.edits,
	} {
		tbl, err := store.GetTable(name)
		if err != nil {
			return nil, fmt.Errorf("opening %s table: %w", name, err)
		}
		*dst = tbl
	}
	return e, nil
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// splitRand derives an independent generator from the engine source, so a
// long allocation search does not hold the source lock.
func (e *Engine) splitRand() *rand.Rand {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return rand.New(rand.NewPCG(e.rng.Uint64(), e.rng.Uint64()))
}

// GetCanvas loads a canvas by ID.
func (e *Engine) GetCanvas(canvasID string) (*types.Canvas, error) {
	v, err := e.canvases.Get(canvasID)
	if err != nil {
		return nil, fmt.Errorf("canvas %s: %w", canvasID, err)
	}
	return v.(*types.Canvas), nil
}

// CanvasBySlug loads a canvas by its slug.
func (e *Engine) CanvasBySlug(slug string) (*types.Canvas, error) {
	rows, err := e.canvases.Fetch(types.Filter{"slug": slug})
	if err != nil {
		return nil, fmt.Errorf("fetching canvas %q: %w", slug, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("canvas %q: %w", slug, types.ErrNotFound)
	}
	return rows[0].(*types.Canvas), nil
}

// FetchCanvases lists canvases matching filter (see the canvases table for
// supported keys).
func (e *Engine) FetchCanvases(filter types.Filter) ([]*types.Canvas, error) {
	rows, err := e.canvases.Fetch(filter)
	if err != nil {
		return nil, fmt.Errorf("fetching canvases: %w", err)
	}
	out := make([]*types.Canvas, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(*types.Canvas))
	}
	return out, nil
}

// DeleteCanvas removes a canvas with all its cells and edits.
func (e *Engine) DeleteCanvas(canvasID string) error {
	unlock := e.locks.lockCanvas(canvasID)
	defer unlock()

	if err := e.canvases.Delete(canvasID); err != nil {
		return fmt.Errorf("deleting canvas %s: %w", canvasID, err)
	}
	e.logger.Info("canvas deleted", "canvas_id", canvasID)
	return nil
}

// GetCell loads a cell by ID.
func (e *Engine) GetCell(cellID string) (*types.Cell, error) {
	v, err := e.cells.Get(cellID)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", cellID, err)
	}
	return v.(*types.Cell), nil
}

// GetEdit loads an edit by ID.
func (e *Engine) GetEdit(editID string) (*types.Edit, error) {
	v, err := e.edits.Get(editID)
	if err != nil {
		return nil, fmt.Errorf("edit %s: %w", editID, err)
	}
	return v.(*types.Edit), nil
}

// Cells lists the cells of a canvas ordered by x then y.
func (e *Engine) Cells(canvasID string) ([]*types.Cell, error) {
	return e.fetchCells(types.Filter{"canvas_id": canvasID})
}

func (e *Engine) fetchCells(filter types.Filter) ([]*types.Cell, error) {
	rows, err := e.cells.Fetch(filter)
	if err != nil {
		return nil, fmt.Errorf("fetching cells: %w", err)
	}
	out := make([]*types.Cell, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.(*types.Cell))
	}
	return out, nil
}

// cellAt returns the cell at c, reporting false when the position is empty.
func (e *Engine) cellAt(canvasID string, c types.Coord) (*types.Cell, bool, error) {
	cells, err := e.fetchCells(types.Filter{"canvas_id": canvasID, "x": c.X, "y": c.Y})
	if err != nil {
		return nil, false, err
	}
	if len(cells) == 0 {
		return nil, false, nil
	}
	return cells[0], true, nil
}

// ownedCell returns the participant's cell on a canvas, reporting false when
// they have none.
func (e *Engine) ownedCell(canvasID, participant string) (*types.Cell, bool, error) {
	cells, err := e.fetchCells(types.Filter{"canvas_id": canvasID, "owner_id": participant})
	if err != nil {
		return nil, false, err
	}
	if len(cells) == 0 {
		return nil, false, nil
	}
	return cells[0], true, nil
}
