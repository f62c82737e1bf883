package engine

import (
	"errors"
	"fmt"
	"iter"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// historyPageSize bounds each store fetch while iterating a history.
const historyPageSize = 256

// LatestValidEdit returns the most recent valid edit of a cell, or an error
// wrapping ErrNotFound when the cell has none.
func (e *Engine) LatestValidEdit(cellID string) (*types.Edit, error) {
	return e.firstEdit(types.Filter{"cell_id": cellID, "is_valid": true, "order": "desc"},
		"no valid edit for cell %s", cellID)
}

// EditHistory yields every edit of a cell in creation order. The sequence is
// finite and may be ranged over again to restart from the beginning.
func (e *Engine) EditHistory(cellID string) iter.Seq2[*types.Edit, error] {
	return e.history(cellID, false)
}

// ValidHistory yields the valid edits of a cell in creation order.
func (e *Engine) ValidHistory(cellID string) iter.Seq2[*types.Edit, error] {
	return e.history(cellID, true)
}

func (e *Engine) history(cellID string, validOnly bool) iter.Seq2[*types.Edit, error] {
	return func(yield func(*types.Edit, error) bool) {
		var after int64
		for {
			filter := types.Filter{"cell_id": cellID, "after_sequence": after, "limit": historyPageSize}
			if validOnly {
				filter["is_valid"] = true
			}
			rows, err := e.edits.Fetch(filter)
			if err != nil {
				yield(nil, fmt.Errorf("reading history of cell %s: %w", cellID, err))
				return
			}
			for _, r := range rows {
				edit := r.(*types.Edit)
				after = edit.Sequence
				if !yield(edit, nil) {
					return
				}
			}
			if len(rows) < historyPageSize {
				return
			}
		}
	}
}

// HistoryNumber returns the zero-based position of edit among all edits of
// its cell.
func (e *Engine) HistoryNumber(edit *types.Edit) (int, error) {
	return e.countEdits(types.Filter{"cell_id": edit.CellID, "before_sequence": edit.Sequence})
}

// EditNumber returns the zero-based position of edit among the valid edits
// of its cell. It reports false for an invalid edit.
func (e *Engine) EditNumber(edit *types.Edit) (int, bool, error) {
	if !edit.IsValid {
		return 0, false, nil
	}
	n, err := e.countEdits(types.Filter{"cell_id": edit.CellID, "is_valid": true, "before_sequence": edit.Sequence})
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// EditByHistoryNumber returns the n-th edit of a cell, counting all edits.
func (e *Engine) EditByHistoryNumber(cellID string, n int) (*types.Edit, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: history number %d is negative", types.ErrValidation, n)
	}
	return e.firstEdit(types.Filter{"cell_id": cellID, "offset": n},
		"cell %s has no edit with history number %d", cellID, n)
}

// EditByEditNumber returns the n-th valid edit of a cell.
func (e *Engine) EditByEditNumber(cellID string, n int) (*types.Edit, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: edit number %d is negative", types.ErrValidation, n)
	}
	return e.firstEdit(types.Filter{"cell_id": cellID, "is_valid": true, "offset": n},
		"cell %s has no edit with edit number %d", cellID, n)
}

// PreviousValidEdit returns the closest earlier valid edit of the same cell,
// or an error wrapping ErrNotFound.
func (e *Engine) PreviousValidEdit(edit *types.Edit) (*types.Edit, error) {
	return e.firstEdit(types.Filter{
		"cell_id": edit.CellID, "is_valid": true, "before_sequence": edit.Sequence, "order": "desc",
	}, "no valid edit before %s", edit.EditID)
}

// PreviousEdit returns the edit immediately before edit, valid or not, or an
// error wrapping ErrNotFound.
func (e *Engine) PreviousEdit(edit *types.Edit) (*types.Edit, error) {
	return e.firstEdit(types.Filter{
		"cell_id": edit.CellID, "before_sequence": edit.Sequence, "order": "desc",
	}, "no edit before %s", edit.EditID)
}

// EdgesDelta subtracts the preceding edit from edit, element-wise per edge
// array. With validOnly the predecessor is the previous valid edit. Without
// a predecessor the delta is taken against the cell's neighbour-seeded
// blank.
func (e *Engine) EdgesDelta(edit *types.Edit, validOnly bool) (types.Edges, error) {
	cell, err := e.GetCell(edit.CellID)
	if err != nil {
		return types.Edges{}, err
	}
	if err := cell.ValidateEdges(edit.Edges); err != nil {
		return types.Edges{}, err
	}

	var prev *types.Edit
	if validOnly {
		prev, err = e.PreviousValidEdit(edit)
	} else {
		prev, err = e.PreviousEdit(edit)
	}
	switch {
	case err == nil:
		if err := cell.ValidateEdges(prev.Edges); err != nil {
			return types.Edges{}, fmt.Errorf("previous edit %s: %w", prev.EditID, err)
		}
		return edit.Edges.Sub(prev.Edges), nil
	case errors.Is(err, types.ErrNotFound):
		canvas, err := e.GetCanvas(cell.CanvasID)
		if err != nil {
			return types.Edges{}, err
		}
		base, err := e.blankWithNeighbourEdges(canvas, cell)
		if err != nil {
			return types.Edges{}, err
		}
		return edit.Edges.Sub(base), nil
	default:
		return types.Edges{}, err
	}
}

// SetEditValidity marks an edit valid or invalid. Nothing else about an
// edit can change.
func (e *Engine) SetEditValidity(editID string, valid bool) (*types.Edit, error) {
	edit, err := e.GetEdit(editID)
	if err != nil {
		return nil, err
	}
	cell, err := e.GetCell(edit.CellID)
	if err != nil {
		return nil, err
	}

	unlockCanvas := e.locks.rlockCanvas(cell.CanvasID)
	defer unlockCanvas()
	unlockCell := e.locks.lockCells(cell.CellID)
	defer unlockCell()

	if edit, err = e.GetEdit(editID); err != nil {
		return nil, err
	}
	if edit.IsValid == valid {
		return edit, nil
	}
	edit.IsValid = valid
	if _, err := e.edits.Set(edit.EditID, edit); err != nil {
		return nil, fmt.Errorf("setting validity of edit %s: %w", editID, err)
	}
	e.metrics.ValidityChanges.WithLabelValues(fmt.Sprint(valid)).Inc()
	e.logger.Info("edit validity changed", "edit_id", editID, "cell_id", edit.CellID, "valid", valid)
	return edit, nil
}

// Replay rebuilds each valid state of a cell by applying successive deltas
// to the first valid edit, and fails if any reconstruction differs from the
// stored edit.
func (e *Engine) Replay(cellID string) ([]types.Edges, error) {
	cell, err := e.GetCell(cellID)
	if err != nil {
		return nil, err
	}

	var states []types.Edges
	var prev *types.Edit
	for edit, err := range e.ValidHistory(cellID) {
		if err != nil {
			return nil, err
		}
		if err := cell.ValidateEdges(edit.Edges); err != nil {
			return nil, fmt.Errorf("edit %s: %w", edit.EditID, err)
		}
		if prev == nil {
			states = append(states, edit.Edges.Clone())
			prev = edit
			continue
		}
		state := states[len(states)-1].Add(edit.Edges.Sub(prev.Edges))
		if !state.Equal(edit.Edges) {
			return nil, fmt.Errorf("replaying cell %s diverged at edit %s", cellID, edit.EditID)
		}
		states = append(states, state)
		prev = edit
	}
	return states, nil
}

func (e *Engine) firstEdit(filter types.Filter, format string, args ...any) (*types.Edit, error) {
	filter["limit"] = 1
	rows, err := e.edits.Fetch(filter)
	if err != nil {
		return nil, fmt.Errorf("fetching edits: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), types.ErrNotFound)
	}
	return rows[0].(*types.Edit), nil
}

func (e *Engine) countEdits(filter types.Filter) (int, error) {
	if counter, ok := e.edits.(types.CountingTable); ok {
		n, err := counter.Count(filter)
		if err != nil {
			return 0, fmt.Errorf("counting edits: %w", err)
		}
		return n, nil
	}
	rows, err := e.edits.Fetch(filter)
	if err != nil {
		return 0, fmt.Errorf("counting edits: %w", err)
	}
	return len(rows), nil
}
