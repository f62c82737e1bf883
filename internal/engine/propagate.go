package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// CanEdit reports whether participant may edit the cell: it must be
// editable, and the participant must own it or, when neighbours may edit,
// own one of its cardinal neighbours.
func (e *Engine) CanEdit(cellID, participant string) (bool, error) {
	cell, err := e.GetCell(cellID)
	if err != nil {
		return false, err
	}
	canvas, err := e.GetCanvas(cell.CanvasID)
	if err != nil {
		return false, err
	}
	neighbours, err := e.neighbours(canvas, cell, types.NeighbourOffsets(false), false)
	if err != nil {
		return false, err
	}
	return canEdit(cell, participant, neighbours), nil
}

func canEdit(cell *types.Cell, participant string, neighbours map[types.Direction]*types.Cell) bool {
	if participant == "" || !cell.IsEditable {
		return false
	}
	if cell.Owner() == participant {
		return true
	}
	if !cell.NeighboursMayEdit {
		return false
	}
	for _, n := range neighbours {
		if n != nil && n.Owner() == participant {
			return true
		}
	}
	return false
}

// SubmitEdit appends a participant's edit to a cell and propagates every
// changed shared edge one hop into the cardinal neighbours. Permission, the
// canvas edit window and the array dimensions are checked before anything
// is written.
//
// A store failure while appending the originating edit returns a nil edit.
// A failure during propagation returns the stored edit together with an
// error matching ErrPropagationIncomplete; neighbours earlier in
// CardinalDirections order may already hold their propagated edit.
func (e *Engine) SubmitEdit(cellID, authorID string, edges types.Edges) (*types.Edit, error) {
	cell, err := e.GetCell(cellID)
	if err != nil {
		return nil, err
	}
	canvas, err := e.GetCanvas(cell.CanvasID)
	if err != nil {
		return nil, err
	}

	unlockCanvas := e.locks.rlockCanvas(canvas.CanvasID)
	defer unlockCanvas()

	if now := e.now(); !canvas.Open(now) {
		return nil, fmt.Errorf("canvas %q accepts edits from %s to %s: %w", canvas.Title,
			canvas.StartTime.Format("2006-01-02 15:04"), canvas.EndTime.Format("2006-01-02 15:04"),
			types.ErrCanvasClosed)
	}
	neighbours, err := e.neighbours(canvas, cell, types.NeighbourOffsets(false), false)
	if err != nil {
		return nil, err
	}
	if !canEdit(cell, authorID, neighbours) {
		return nil, fmt.Errorf("participant %q may not edit cell %s: %w", authorID, cell.Coord(), types.ErrPermission)
	}
	if err := cell.ValidateEdges(edges); err != nil {
		return nil, err
	}

	ids := []string{cell.CellID}
	for _, n := range neighbours {
		ids = append(ids, n.CellID)
	}
	unlockCells := e.locks.lockCells(ids...)
	defer unlockCells()

	author := authorID
	edit := &types.Edit{
		CellID:   cell.CellID,
		Edges:    edges.Clone(),
		IsValid:  true,
		AuthorID: &author,
	}
	if _, err := e.edits.Set("", edit); err != nil {
		return nil, fmt.Errorf("appending edit to cell %s: %w", cell.Coord(), err)
	}
	e.metrics.Edits.Inc()

	propagated, err := e.propagate(canvas, cell, edit, neighbours)
	if err != nil {
		e.logger.Error("edge propagation incomplete",
			"cell_id", cell.CellID, "edit_id", edit.EditID, "propagated", len(propagated), "error", err)
		return edit, fmt.Errorf("edit %s stored, %w: %w", edit.EditID, types.ErrPropagationIncomplete, err)
	}
	e.logger.Info("edit submitted",
		"canvas_id", canvas.CanvasID, "cell_id", cell.CellID, "edit_id", edit.EditID,
		"author", authorID, "propagated", len(propagated))
	return edit, nil
}

// propagate splices the changed shared-edge slices of edit into each
// neighbour and appends the result as that neighbour's newest edit. The
// caller holds the cell locks of cell and every neighbour.
func (e *Engine) propagate(canvas *types.Canvas, cell *types.Cell, edit *types.Edit, neighbours map[types.Direction]*types.Cell) ([]*types.Edit, error) {
	delta, err := e.EdgesDelta(edit, true)
	if err != nil {
		return nil, err
	}

	portions := cell.AdjacentEdgePortions()
	var out []*types.Edit
	for _, d := range types.CardinalDirections {
		p := portions[d]
		changed := types.PortionOf(*delta.Field(p.Edge), p.Self)
		if !slices.ContainsFunc(changed, func(v int) bool { return v != 0 }) {
			continue
		}
		n, ok := neighbours[d]
		if !ok || n.CellID == cell.CellID {
			continue
		}

		next, err := e.neighbourEdit(canvas, n, p, changed)
		if err != nil {
			return out, err
		}
		next.AuthorID = edit.AuthorID
		from := d.Opposite()
		next.SourceDirection = &from

		if _, err := e.edits.Set("", next); err != nil {
			return out, fmt.Errorf("propagating %s into cell %s: %w", d, n.Coord(), err)
		}
		e.metrics.PropagatedEdits.WithLabelValues(d.String()).Inc()
		e.logger.Debug("edge propagated",
			"cell_id", cell.CellID, "neighbour_id", n.CellID, "direction", d.String(),
			"edit_id", next.EditID)
		out = append(out, next)
	}
	return out, nil
}

// neighbourEdit clones the neighbour's latest valid edit and adds changed
// into the slice the neighbour shares with the edited cell, flooring values
// at zero. A neighbour without a valid edit gets its seeded blank instead,
// which already carries the edited cell's new shared edge. A slice length
// mismatch means adjacent cells disagree on lattice size, which allocation
// never produces; it panics.
func (e *Engine) neighbourEdit(canvas *types.Canvas, n *types.Cell, p types.EdgePortion, changed []int) (*types.Edit, error) {
	var next *types.Edit
	seeded := false
	latest, err := e.LatestValidEdit(n.CellID)
	switch {
	case err == nil:
		next = latest.CloneAsNew()
	case errors.Is(err, types.ErrNotFound):
		seed, err := e.blankWithNeighbourEdges(canvas, n)
		if err != nil {
			return nil, err
		}
		next = &types.Edit{CellID: n.CellID, Edges: seed, IsValid: true}
		seeded = true
	default:
		return nil, err
	}

	target := types.PortionOf(*next.Field(p.Edge), p.Neighbour)
	if len(target) != len(changed) {
		panic(fmt.Sprintf("engine: %s slice of cell %s has %d segments, edited cell shares %d",
			p.Edge, n.CellID, len(target), len(changed)))
	}
	if !seeded {
		for i, v := range changed {
			target[i] = max(target[i]+v, 0)
		}
	}
	if err := n.ValidateEdges(next.Edges); err != nil {
		panic(fmt.Sprintf("engine: propagated edit for cell %s is invalid: %v", n.CellID, err))
	}
	return next, nil
}
