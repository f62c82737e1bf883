package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

func TestCreateCanvas(t *testing.T) {
	tests := []struct {
		name      string
		canvas    *types.Canvas
		wantCells int
		wantErr   error
	}{
		{"bounded grid generates every cell", canvasSpec("Grid", 3, 2, false), 6, nil},
		{"torus generates every cell", canvasSpec("Torus", 3, 3, true), 9, nil},
		{"organic starts empty", canvasSpec("Organic", 0, 0, false), 0, nil},
		{"one zero axis becomes one", canvasSpec("Strip", 4, 0, false), 4, nil},
		{"small torus rejected", canvasSpec("Tiny Torus", 2, 3, true), 0, types.ErrValidation},
		{
			name: "reversed window rejected",
			canvas: func() *types.Canvas {
				c := canvasSpec("Backwards", 2, 2, false)
				c.StartTime, c.EndTime = c.EndTime, c.StartTime
				return c
			}(),
			wantErr: types.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			c, err := e.CreateCanvas(tt.canvas)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				all, fetchErr := e.FetchCanvases(nil)
				require.NoError(t, fetchErr)
				assert.Empty(t, all)
				return
			}
			require.NoError(t, err)

			cells, err := e.Cells(c.CanvasID)
			require.NoError(t, err)
			assert.Len(t, cells, tt.wantCells)
			for _, cell := range cells {
				assert.False(t, cell.Owned())
				latest, err := e.LatestValidEdit(cell.CellID)
				require.NoError(t, err, "every generated cell gets a blank first edit")
				assert.True(t, latest.Edges.IsZero())
			}
			assert.Equal(t, float64(tt.wantCells), testutil.ToFloat64(e.Metrics().CellsGenerated))
		})
	}
}

func TestCreateCanvas_DuplicateTitle(t *testing.T) {
	e := newTestEngine(t)
	mustCreateCanvas(t, e, "Twice", 2, 2, false)
	_, err := e.CreateCanvas(canvasSpec("Twice", 2, 2, false))
	assert.ErrorIs(t, err, types.ErrDuplicate)
}

func TestGenerateGrid(t *testing.T) {
	t.Run("fully generated without add is a no-op", func(t *testing.T) {
		e := newTestEngine(t)
		c := mustCreateCanvas(t, e, "Done", 2, 2, false)
		require.NoError(t, e.GenerateGrid(c.CanvasID, false))
		cells, err := e.Cells(c.CanvasID)
		require.NoError(t, err)
		assert.Len(t, cells, 4)
	})

	t.Run("populated torus rejects generation", func(t *testing.T) {
		e := newTestEngine(t)
		c := mustCreateCanvas(t, e, "Fixed Torus", 3, 3, true)
		err := e.GenerateGrid(c.CanvasID, true)
		assert.ErrorIs(t, err, types.ErrValidation)
		assert.Contains(t, err.Error(), "already has 9 cells")
	})

	t.Run("organic canvas has no grid", func(t *testing.T) {
		e := newTestEngine(t)
		c := mustCreateCanvas(t, e, "Free", 0, 0, false)
		assert.ErrorIs(t, e.GenerateGrid(c.CanvasID, false), types.ErrValidation)
	})

	t.Run("add without growth fails", func(t *testing.T) {
		e := newTestEngine(t)
		c := mustCreateCanvas(t, e, "Static", 2, 2, false)
		assert.ErrorIs(t, e.GenerateGrid(c.CanvasID, true), types.ErrValidation)
	})

	t.Run("unknown canvas", func(t *testing.T) {
		e := newTestEngine(t)
		assert.ErrorIs(t, e.GenerateGrid("missing", false), types.ErrNotFound)
	})
}

func TestExpandGrid(t *testing.T) {
	e := newTestEngine(t)
	c := mustCreateCanvas(t, e, "Growing", 2, 2, false)
	owner, err := e.GetOrAssignCell(c.CanvasID, "first")
	require.NoError(t, err)

	require.NoError(t, e.ExpandGrid(c.CanvasID, 3, 2))

	cells, err := e.Cells(c.CanvasID)
	require.NoError(t, err)
	require.Len(t, cells, 6)
	seen := map[types.Coord]bool{}
	for _, cell := range cells {
		assert.True(t, types.InBounds(cell.Coord(), 3, 2))
		seen[cell.Coord()] = true
	}
	assert.Len(t, seen, 6, "no duplicate positions")

	kept, err := e.GetCell(owner.CellID)
	require.NoError(t, err)
	assert.Equal(t, "first", kept.Owner(), "existing cells keep their owners")

	got, err := e.GetCanvas(c.CanvasID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.GridWidth)

	t.Run("cannot shrink", func(t *testing.T) {
		assert.ErrorIs(t, e.ExpandGrid(c.CanvasID, 2, 2), types.ErrValidation)
	})
	t.Run("same size rejected", func(t *testing.T) {
		assert.ErrorIs(t, e.ExpandGrid(c.CanvasID, 3, 2), types.ErrValidation)
	})
	t.Run("torus is fixed", func(t *testing.T) {
		torus := mustCreateCanvas(t, e, "Ring", 3, 3, true)
		assert.ErrorIs(t, e.ExpandGrid(torus.CanvasID, 4, 4), types.ErrValidation)
	})
}
