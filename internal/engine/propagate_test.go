package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// assignAt gives the cell at (x, y) to participant through the cells table.
func assignAt(t *testing.T, e *Engine, canvasID string, x, y int, participant string) *types.Cell {
	t.Helper()
	cell := mustCellAt(t, e, canvasID, x, y)
	require.NoError(t, cell.SetOwner(participant))
	_, err := e.cells.Set(cell.CellID, cell)
	require.NoError(t, err)
	return cell
}

func historyLen(t *testing.T, e *Engine, cellID string) int {
	t.Helper()
	return len(collect(t, e, cellID))
}

// eastColumn returns a drawing with the two east-most vertical segments of a
// size-2 cell set.
func eastColumn(cell *types.Cell, top, bottom int) types.Edges {
	edges := cell.Blank()
	edges.Vertical[4], edges.Vertical[5] = top, bottom
	return edges
}

func TestSubmitEdit_PropagatesAttributedEdit(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Pair", 2, 2, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
	b := assignAt(t, e, canvas.CanvasID, 1, 0, "y")
	above := mustCellAt(t, e, canvas.CanvasID, 0, 1)

	edit, err := e.SubmitEdit(a.CellID, "x", eastColumn(a, 3, 0))
	require.NoError(t, err)
	assert.Equal(t, "x", edit.Author())
	assert.Nil(t, edit.SourceDirection)

	assert.Equal(t, 2, historyLen(t, e, b.CellID))
	got, err := e.LatestValidEdit(b.CellID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Author(), "propagated edits keep the original author")
	require.NotNil(t, got.SourceDirection)
	assert.Equal(t, types.West, *got.SourceDirection)
	assert.Equal(t, []int{3, 0, 0, 0, 0, 0}, got.Vertical)
	assert.Equal(t, b.Blank().Horizontal, got.Horizontal, "unshared arrays are untouched")

	assert.Equal(t, 1, historyLen(t, e, above.CellID), "an unchanged shared edge does not propagate")
	assert.Equal(t, float64(1), testutil.ToFloat64(e.Metrics().PropagatedEdits.WithLabelValues("east")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.Metrics().Edits))
}

func TestSubmitEdit_PropagatesNorth(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Column", 1, 2, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
	above := mustCellAt(t, e, canvas.CanvasID, 0, 1)

	drawn := a.Blank()
	drawn.Horizontal[4], drawn.Horizontal[5] = 1, 2 // north row
	_, err := e.SubmitEdit(a.CellID, "x", drawn)
	require.NoError(t, err)

	got, err := e.LatestValidEdit(above.CellID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0, 0, 0, 0}, got.Horizontal)
	require.NotNil(t, got.SourceDirection)
	assert.Equal(t, types.South, *got.SourceDirection)
}

func TestSubmitEdit_SingleHop(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Row", 3, 1, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
	middle := mustCellAt(t, e, canvas.CanvasID, 1, 0)
	far := mustCellAt(t, e, canvas.CanvasID, 2, 0)

	_, err := e.SubmitEdit(a.CellID, "x", eastColumn(a, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, historyLen(t, e, middle.CellID))
	assert.Equal(t, 1, historyLen(t, e, far.CellID), "propagated edits do not propagate again")
}

func TestSubmitEdit_NeighbourWithoutValidEdit(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Fresh", 2, 1, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
	b := mustCellAt(t, e, canvas.CanvasID, 1, 0)

	seed, err := e.LatestValidEdit(b.CellID)
	require.NoError(t, err)
	_, err = e.SetEditValidity(seed.EditID, false)
	require.NoError(t, err)

	_, err = e.SubmitEdit(a.CellID, "x", eastColumn(a, 2, 1))
	require.NoError(t, err)

	got, err := e.LatestValidEdit(b.CellID)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0, 0, 0, 0}, got.Vertical, "the shared edge is counted once")
}

func TestSubmitEdit_FloorsAtZero(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Floor", 2, 1, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
	b := mustCellAt(t, e, canvas.CanvasID, 1, 0)

	_, err := e.SubmitEdit(a.CellID, "x", eastColumn(a, 3, 0))
	require.NoError(t, err)
	propagated, err := e.LatestValidEdit(b.CellID)
	require.NoError(t, err)
	_, err = e.SetEditValidity(propagated.EditID, false)
	require.NoError(t, err)

	// The neighbour is back at 0; removing 2 from it must not go negative.
	_, err = e.SubmitEdit(a.CellID, "x", eastColumn(a, 1, 0))
	require.NoError(t, err)

	got, err := e.LatestValidEdit(b.CellID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Vertical[0])
	assert.Equal(t, 3, historyLen(t, e, b.CellID))
}

func TestSubmitEdit_Permissions(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Guarded", 3, 1, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
	assignAt(t, e, canvas.CanvasID, 1, 0, "y")
	assignAt(t, e, canvas.CanvasID, 2, 0, "z")

	tests := []struct {
		name        string
		participant string
		wantErr     error
	}{
		{"owner", "x", nil},
		{"cardinal neighbour owner", "y", nil},
		{"distant owner", "z", types.ErrPermission},
		{"stranger", "nobody", types.ErrPermission},
		{"anonymous", "", types.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := e.CanEdit(a.CellID, tt.participant)
			require.NoError(t, err)
			assert.Equal(t, tt.wantErr == nil, ok)

			_, err = e.SubmitEdit(a.CellID, tt.participant, a.Blank())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("neighbours locked out", func(t *testing.T) {
		cell, err := e.GetCell(a.CellID)
		require.NoError(t, err)
		cell.NeighboursMayEdit = false
		_, err = e.cells.Set(cell.CellID, cell)
		require.NoError(t, err)

		ok, err := e.CanEdit(a.CellID, "y")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = e.CanEdit(a.CellID, "x")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("not editable", func(t *testing.T) {
		cell, err := e.GetCell(a.CellID)
		require.NoError(t, err)
		cell.IsEditable = false
		_, err = e.cells.Set(cell.CellID, cell)
		require.NoError(t, err)

		before := historyLen(t, e, a.CellID)
		_, err = e.SubmitEdit(a.CellID, "x", a.Blank())
		assert.ErrorIs(t, err, types.ErrPermission)
		assert.Equal(t, before, historyLen(t, e, a.CellID))
	})
}

func TestSubmitEdit_CanvasClosed(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
	}{
		{"before start", testStart.Add(-time.Minute)},
		{"after end", testStart.Add(25 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, WithClock(func() time.Time { return tt.now }))
			canvas := mustCreateCanvas(t, e, "Window", 2, 1, false)
			a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
			b := mustCellAt(t, e, canvas.CanvasID, 1, 0)

			_, err := e.SubmitEdit(a.CellID, "x", eastColumn(a, 1, 1))
			assert.ErrorIs(t, err, types.ErrCanvasClosed)
			assert.Equal(t, 1, historyLen(t, e, a.CellID))
			assert.Equal(t, 1, historyLen(t, e, b.CellID))
		})
	}
}

func TestSubmitEdit_DimensionMismatch(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Sizes", 2, 1, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")

	edges := a.Blank()
	edges.Vertical = append(edges.Vertical, 0)
	_, err := e.SubmitEdit(a.CellID, "x", edges)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.ErrorIs(t, err, types.ErrValidation)

	edges = a.Blank()
	edges.SouthWest[0] = -1
	_, err = e.SubmitEdit(a.CellID, "x", edges)
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.Equal(t, 1, historyLen(t, e, a.CellID))
	assert.Zero(t, testutil.ToFloat64(e.Metrics().Edits))
}

func TestSubmitEdit_UnknownCell(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SubmitEdit("missing", "x", types.Edges{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// failingEdits fails the failOn-th Set call and passes every other call to
// the wrapped table.
type failingEdits struct {
	types.Table
	mu     sync.Mutex
	calls  int
	failOn int
}

var errEditsUnavailable = errors.New("edits table unavailable")

func (f *failingEdits) Set(id string, data any) (string, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return "", errEditsUnavailable
	}
	return f.Table.Set(id, data)
}

func TestSubmitEdit_PartialPropagation(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Partial", 3, 1, false)
	middle := assignAt(t, e, canvas.CanvasID, 1, 0, "x")
	west := mustCellAt(t, e, canvas.CanvasID, 0, 0)
	east := mustCellAt(t, e, canvas.CanvasID, 2, 0)

	// Originating edit, then east, then west: the west append fails.
	e.edits = &failingEdits{Table: e.edits, failOn: 3}

	drawn := middle.Blank()
	drawn.Vertical[0], drawn.Vertical[5] = 1, 1
	edit, err := e.SubmitEdit(middle.CellID, "x", drawn)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPropagationIncomplete)
	assert.ErrorIs(t, err, errEditsUnavailable)
	require.NotNil(t, edit, "the stored edit is returned with the error")
	assert.Contains(t, err.Error(), edit.EditID)

	assert.Equal(t, 2, historyLen(t, e, middle.CellID))
	assert.Equal(t, 2, historyLen(t, e, east.CellID), "east was written before the failure")
	assert.Equal(t, 1, historyLen(t, e, west.CellID))
}

func TestSubmitEdit_StoreFailureBeforeAppend(t *testing.T) {
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Refused", 2, 1, false)
	a := assignAt(t, e, canvas.CanvasID, 0, 0, "x")
	e.edits = &failingEdits{Table: e.edits, failOn: 1}

	edit, err := e.SubmitEdit(a.CellID, "x", eastColumn(a, 1, 1))
	assert.ErrorIs(t, err, errEditsUnavailable)
	assert.NotErrorIs(t, err, types.ErrPropagationIncomplete)
	assert.Nil(t, edit)
	assert.Equal(t, 1, historyLen(t, e, a.CellID))
}

func TestSubmitEdit_ConcurrentSharedNeighbour(t *testing.T) {
	const rounds = 10
	e := newTestEngine(t)
	canvas := mustCreateCanvas(t, e, "Crossfire", 3, 1, false)
	west := assignAt(t, e, canvas.CanvasID, 0, 0, "w")
	middle := mustCellAt(t, e, canvas.CanvasID, 1, 0)
	east := assignAt(t, e, canvas.CanvasID, 2, 0, "e")

	// west draws its east column, east draws its west column; both land on
	// the middle cell.
	draw := func(cell *types.Cell, owner string, lo int) error {
		for i := 1; i <= rounds; i++ {
			edges := cell.Blank()
			edges.Vertical[lo], edges.Vertical[lo+1] = i, i
			if _, err := e.SubmitEdit(cell.CellID, owner, edges); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = draw(west, "w", 4) }()
	go func() { defer wg.Done(); errs[1] = draw(east, "e", 0) }()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, 2*rounds+1, historyLen(t, e, middle.CellID), "no propagated edit is lost")
	got, err := e.LatestValidEdit(middle.CellID)
	require.NoError(t, err)
	assert.Equal(t, []int{rounds, rounds}, got.Vertical[:2], "west shared slice")
	assert.Equal(t, []int{rounds, rounds}, got.Vertical[4:], "east shared slice")
	assert.Equal(t, float64(2*rounds), testutil.ToFloat64(e.Metrics().Edits))
}
