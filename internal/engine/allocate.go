package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// GetOrCreateContiguousCell selects a free cell touching an owned cell on
// the canvas. With no owned cells it falls back to the initial placement.
// On organic canvases the returned cell may be new and unsaved (empty
// CellID); the caller persists it.
func (e *Engine) GetOrCreateContiguousCell(canvasID string, placement types.InitialPlacement, rng *rand.Rand) (*types.Cell, error) {
	unlock := e.locks.lockCanvas(canvasID)
	defer unlock()

	canvas, err := e.GetCanvas(canvasID)
	if err != nil {
		return nil, err
	}
	return e.contiguousCell(canvas, placement, rng)
}

// GetOrAssignCell returns the participant's cell on the canvas, allocating
// and assigning a contiguous one when they have none.
func (e *Engine) GetOrAssignCell(canvasID, participant string) (*types.Cell, error) {
	if participant == "" {
		return nil, fmt.Errorf("%w: participant ID must not be empty", types.ErrValidation)
	}
	unlock := e.locks.lockCanvas(canvasID)
	defer unlock()

	canvas, err := e.GetCanvas(canvasID)
	if err != nil {
		return nil, err
	}
	if cell, ok, err := e.ownedCell(canvasID, participant); err != nil {
		return nil, err
	} else if ok {
		return cell, nil
	}

	cell, err := e.contiguousCell(canvas, e.placement, e.splitRand())
	if err != nil {
		switch {
		case errors.Is(err, types.ErrFullGrid):
			e.metrics.AllocationFailures.WithLabelValues("full_grid").Inc()
		case errors.Is(err, types.ErrNoAvailableCells):
			e.metrics.AllocationFailures.WithLabelValues("no_available_cells").Inc()
		}
		e.logger.Warn("cell allocation failed",
			"canvas_id", canvasID, "participant", participant, "error", err)
		return nil, err
	}

	if err := cell.SetOwner(participant); err != nil {
		return nil, err
	}
	if err := cell.Validate(canvas); err != nil {
		return nil, err
	}
	if cell.CellID == "" {
		seed := cell.Blank()
		if cell.IsEditable {
			if seed, err = e.blankWithNeighbourEdges(canvas, cell); err != nil {
				return nil, err
			}
		}
		cell.Seed = &seed
	}
	if _, err := e.cells.Set(cell.CellID, cell); err != nil {
		return nil, fmt.Errorf("assigning cell %s to %s: %w", cell.Coord(), participant, err)
	}
	cell.Seed = nil

	e.metrics.Allocations.WithLabelValues(canvas.Topology().String()).Inc()
	e.logger.Info("cell assigned",
		"canvas_id", canvasID, "cell_id", cell.CellID, "participant", participant,
		"x", cell.X, "y", cell.Y)
	return cell, nil
}

// contiguousCell is the allocation search. The caller holds the canvas
// write lock.
func (e *Engine) contiguousCell(canvas *types.Canvas, placement types.InitialPlacement, rng *rand.Rand) (*types.Cell, error) {
	owned, err := e.fetchCells(types.Filter{"canvas_id": canvas.CanvasID, "owned": true})
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return e.initialCell(canvas, placement, rng)
	}
	if canvas.IsGrid() && len(owned) >= canvas.Capacity() {
		return nil, fmt.Errorf("canvas %q has all %d cells assigned: %w",
			canvas.Title, canvas.Capacity(), types.ErrFullGrid)
	}

	taken := make(map[types.Coord]bool, len(owned))
	origins := make([]types.Coord, 0, len(owned))
	for _, c := range owned {
		taken[c.Coord()] = true
		origins = append(origins, c.Coord())
	}

	topology := canvas.Topology()
	var maxCoord types.Coord
	if topology == types.TopologyTorus {
		if maxCoord, err = canvas.MaxCoordinates(); err != nil {
			return nil, err
		}
	}

	rng.Shuffle(len(origins), func(i, j int) { origins[i], origins[j] = origins[j], origins[i] })
	for _, origin := range origins {
		dirs := types.NeighbourOffsets(false)
		rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })

		for _, d := range dirs {
			candidate := origin.Add(d.Offset())
			if taken[candidate] {
				continue
			}
			switch topology {
			case types.TopologyOrganic:
				return e.organicCell(canvas, candidate)
			case types.TopologyTorus:
				if candidate, err = types.CorrectForTorus(candidate, maxCoord); err != nil {
					return nil, err
				}
				if taken[candidate] {
					continue
				}
			default:
				if !types.InBounds(candidate, canvas.GridWidth, canvas.GridHeight) {
					continue
				}
			}
			return e.blankGridCell(canvas, candidate)
		}
	}
	return nil, &types.NoAvailableCellsError{CanvasID: canvas.CanvasID, Title: canvas.Title}
}

// initialCell places the first owned cell of a canvas: the origin on organic
// canvases, otherwise the existing blank cell chosen by placement.
func (e *Engine) initialCell(canvas *types.Canvas, placement types.InitialPlacement, rng *rand.Rand) (*types.Cell, error) {
	if canvas.NewCellsAllowed {
		return e.organicCell(canvas, types.Coord{})
	}
	at, err := canvas.InitialCoordinates(placement, rng)
	if err != nil {
		return nil, err
	}
	return e.blankGridCell(canvas, at)
}

// organicCell returns the unowned cell at c, or a new unsaved one.
func (e *Engine) organicCell(canvas *types.Canvas, c types.Coord) (*types.Cell, error) {
	cell, ok, err := e.cellAt(canvas.CanvasID, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewCell(canvas, c), nil
	}
	if cell.Owned() {
		return nil, &types.CellOwnedError{Coord: c, OwnerID: cell.Owner()}
	}
	return cell, nil
}

// blankGridCell returns the generated, unowned cell at c. A missing or owned
// cell means the grid state contradicts the owned set.
func (e *Engine) blankGridCell(canvas *types.Canvas, c types.Coord) (*types.Cell, error) {
	cell, ok, err := e.cellAt(canvas.CanvasID, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no cell at %s on canvas %q: %w", c, canvas.Title, types.ErrGridIncomplete)
	}
	if cell.Owned() {
		return nil, &types.CellOwnedError{Coord: c, OwnerID: cell.Owner()}
	}
	return cell, nil
}
