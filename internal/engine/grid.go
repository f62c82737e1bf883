package engine

import (
	"fmt"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// CreateCanvas normalizes, validates and stores a canvas. Bounded canvases
// get their full grid of blank cells; if that fails the canvas is removed
// again.
func (e *Engine) CreateCanvas(c *types.Canvas) (*types.Canvas, error) {
	if c == nil {
		return nil, types.ErrInvalidData
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = e.now().UTC()
	}
	if _, err := e.canvases.Set("", c); err != nil {
		return nil, fmt.Errorf("creating canvas %q: %w", c.Title, err)
	}

	if c.IsGrid() {
		unlock := e.locks.lockCanvas(c.CanvasID)
		err := e.generateGrid(c, false)
		unlock()
		if err != nil {
			if delErr := e.canvases.Delete(c.CanvasID); delErr != nil {
				e.logger.Error("removing canvas after failed grid generation",
					"canvas_id", c.CanvasID, "error", delErr)
			}
			return nil, err
		}
	}

	e.logger.Info("canvas created",
		"canvas_id", c.CanvasID, "slug", c.Slug, "topology", c.Topology().String(),
		"width", c.GridWidth, "height", c.GridHeight)
	return c, nil
}

// GenerateGrid creates the blank cells of a bounded canvas. An empty canvas
// gets its full rectangle. With canAdd, a non-torus canvas that has grown
// gets the cells beyond its previous extent. Calling it on a fully generated
// grid without canAdd does nothing.
func (e *Engine) GenerateGrid(canvasID string, canAdd bool) error {
	unlock := e.locks.lockCanvas(canvasID)
	defer unlock()

	canvas, err := e.GetCanvas(canvasID)
	if err != nil {
		return err
	}
	return e.generateGrid(canvas, canAdd)
}

// ExpandGrid grows a bounded, non-torus canvas to width x height and
// generates the new cells. Dimensions may not shrink.
func (e *Engine) ExpandGrid(canvasID string, width, height int) error {
	unlock := e.locks.lockCanvas(canvasID)
	defer unlock()

	canvas, err := e.GetCanvas(canvasID)
	if err != nil {
		return err
	}
	switch {
	case !canvas.IsGrid():
		return fmt.Errorf("%w: canvas %q has no grid to expand", types.ErrValidation, canvas.Title)
	case canvas.IsTorus:
		return fmt.Errorf("%w: torus %q has a fixed size", types.ErrValidation, canvas.Title)
	case width < canvas.GridWidth || height < canvas.GridHeight:
		return fmt.Errorf("%w: grid %q cannot shrink from %dx%d to %dx%d", types.ErrValidation,
			canvas.Title, canvas.GridWidth, canvas.GridHeight, width, height)
	case width == canvas.GridWidth && height == canvas.GridHeight:
		return fmt.Errorf("%w: grid %q is already %dx%d", types.ErrValidation,
			canvas.Title, width, height)
	}

	prevWidth, prevHeight := canvas.GridWidth, canvas.GridHeight
	canvas.GridWidth, canvas.GridHeight = width, height
	if _, err := e.canvases.Set(canvas.CanvasID, canvas); err != nil {
		return fmt.Errorf("resizing canvas %q: %w", canvas.Title, err)
	}
	if err := e.generateGrid(canvas, true); err != nil {
		canvas.GridWidth, canvas.GridHeight = prevWidth, prevHeight
		if _, restoreErr := e.canvases.Set(canvas.CanvasID, canvas); restoreErr != nil {
			e.logger.Error("restoring canvas size after failed expansion",
				"canvas_id", canvas.CanvasID, "error", restoreErr)
		}
		return err
	}

	e.logger.Info("grid expanded", "canvas_id", canvas.CanvasID,
		"from", fmt.Sprintf("%dx%d", prevWidth, prevHeight),
		"to", fmt.Sprintf("%dx%d", width, height))
	return nil
}

// generateGrid implements GenerateGrid. The caller holds the canvas write
// lock.
func (e *Engine) generateGrid(canvas *types.Canvas, canAdd bool) error {
	if !canvas.IsGrid() {
		return fmt.Errorf("%w: canvas %q has no grid dimensions", types.ErrValidation, canvas.Title)
	}
	existing, err := e.fetchCells(types.Filter{"canvas_id": canvas.CanvasID})
	if err != nil {
		return err
	}

	var coords []types.Coord
	switch {
	case len(existing) == 0:
		for x := range canvas.GridWidth {
			for y := range canvas.GridHeight {
				coords = append(coords, types.Coord{X: x, Y: y})
			}
		}
	case canvas.IsTorus:
		return fmt.Errorf("%w: cells cannot be added to a torus that already has %d cells",
			types.ErrValidation, len(existing))
	case !canAdd && len(existing) == canvas.Capacity():
		return nil
	case !canAdd:
		return fmt.Errorf("%w: cells can only be added to grid %q when adding is allowed",
			types.ErrValidation, canvas.Title)
	default:
		extent := existing[0].Coord()
		for _, c := range existing[1:] {
			extent.X = max(extent.X, c.X)
			extent.Y = max(extent.Y, c.Y)
		}
		maxCoord, err := canvas.MaxCoordinates()
		if err != nil {
			return err
		}
		if extent.X >= maxCoord.X && extent.Y >= maxCoord.Y {
			return fmt.Errorf("%w: cannot add to grid %q unless the previous extent %s is below %s on an axis",
				types.ErrValidation, canvas.Title, extent, maxCoord)
		}
		for x := range canvas.GridWidth {
			for y := range canvas.GridHeight {
				if x > extent.X || y > extent.Y {
					coords = append(coords, types.Coord{X: x, Y: y})
				}
			}
		}
	}

	if err := e.createBlankCells(canvas, coords); err != nil {
		return err
	}
	e.metrics.CellsGenerated.Add(float64(len(coords)))
	e.logger.Debug("grid generated", "canvas_id", canvas.CanvasID, "cells", len(coords))
	return nil
}

// createBlankCells stores blank-seeded cells at coords, in one transaction
// when the cells table supports it.
func (e *Engine) createBlankCells(canvas *types.Canvas, coords []types.Coord) error {
	batch := make([]any, 0, len(coords))
	for _, at := range coords {
		cell := types.NewCell(canvas, at)
		if err := cell.Validate(canvas); err != nil {
			return err
		}
		seed := cell.Blank()
		cell.Seed = &seed
		batch = append(batch, cell)
	}

	if bulk, ok := e.cells.(types.BulkTable); ok {
		if _, err := bulk.SetAll(batch); err != nil {
			return fmt.Errorf("generating grid for %q: %w", canvas.Title, err)
		}
		return nil
	}
	for _, cell := range batch {
		if _, err := e.cells.Set("", cell); err != nil {
			return fmt.Errorf("generating grid for %q: %w", canvas.Title, err)
		}
	}
	return nil
}
