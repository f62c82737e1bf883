package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// setupBackend attaches a fresh backend in a temp dir and detaches it when
// the test ends.
func setupBackend(t *testing.T, sqliteCfg *types.SQLiteConfig) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{
		Backend:      types.BackendSQLite,
		DataDir:      dir,
		SQLiteConfig: sqliteCfg,
	}))
	t.Cleanup(func() { _ = b.Detach() })
	return b, dir
}

func mustTable(t *testing.T, b *Backend, name string) types.Table {
	t.Helper()
	tbl, err := b.GetTable(name)
	require.NoError(t, err)
	return tbl
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCanvas(title string, w, h int) *types.Canvas {
	c := &types.Canvas{
		Title:      title,
		StartTime:  testStart,
		EndTime:    testStart.Add(48 * time.Hour),
		GridWidth:  w,
		GridHeight: h,
	}
	if w == 0 && h == 0 {
		c.NewCellsAllowed = true
	}
	c.Normalize()
	return c
}

// createCanvas stores a canvas and returns it with its ID set.
func createCanvas(t *testing.T, b *Backend, title string, w, h int) *types.Canvas {
	t.Helper()
	c := newTestCanvas(title, w, h)
	_, err := mustTable(t, b, types.TableCanvases).Set("", c)
	require.NoError(t, err)
	return c
}

// createCell stores a blank-seeded cell at (x, y).
func createCell(t *testing.T, b *Backend, canvas *types.Canvas, x, y int) *types.Cell {
	t.Helper()
	c := types.NewCell(canvas, types.Coord{X: x, Y: y})
	blank := c.Blank()
	c.Seed = &blank
	_, err := mustTable(t, b, types.TableCells).Set("", c)
	require.NoError(t, err)
	return c
}

func TestBackend_Attach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	require.NoError(t, b.Attach(cfg))
	defer b.Detach()

	_, err := os.Stat(filepath.Join(dir, dbFileName))
	assert.NoError(t, err, "database file should exist")

	assert.ErrorIs(t, b.Attach(cfg), types.ErrAlreadyAttached)
}

func TestBackend_AttachRejectsBadConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{}), types.ErrBackendEmpty)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: "postgres"}), types.ErrBackendUnknown)
}

func TestBackend_Detach(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	tbl := mustTable(t, b, types.TableCanvases)

	require.NoError(t, b.Detach())
	assert.NoError(t, b.Detach(), "Detach is idempotent")

	_, err := b.GetTable(types.TableCanvases)
	assert.ErrorIs(t, err, types.ErrStoreDetached)

	_, err = tbl.Fetch(nil)
	assert.ErrorIs(t, err, types.ErrStoreDetached, "held accessors fail after detach")
}

func TestBackend_GetTable(t *testing.T) {
	b, _ := setupBackend(t, nil)
	for _, name := range types.StandardTableNames {
		t.Run(name, func(t *testing.T) {
			tbl, err := b.GetTable(name)
			require.NoError(t, err)
			assert.NotNil(t, tbl)
		})
	}
	_, err := b.GetTable("brushes")
	assert.ErrorIs(t, err, types.ErrTableNotFound)
}

func TestBackend_ReloadFromJSONL(t *testing.T) {
	dir := t.TempDir()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	canvas := createCanvas(t, b, "Persisted", 2, 2)
	cell := createCell(t, b, canvas, 1, 0)
	require.NoError(t, cell.SetOwner("artist"))
	_, err := mustTable(t, b, types.TableCells).Set(cell.CellID, cell)
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	b2 := NewBackend()
	require.NoError(t, b2.Attach(cfg))
	defer b2.Detach()

	got, err := mustTable(t, b2, types.TableCanvases).Get(canvas.CanvasID)
	require.NoError(t, err)
	gotCanvas := got.(*types.Canvas)
	assert.Equal(t, canvas.Slug, gotCanvas.Slug)
	assert.True(t, canvas.StartTime.Equal(gotCanvas.StartTime))

	gotCell, err := mustTable(t, b2, types.TableCells).Get(cell.CellID)
	require.NoError(t, err)
	assert.Equal(t, "artist", gotCell.(*types.Cell).Owner())
	assert.Equal(t, types.Coord{X: 1, Y: 0}, gotCell.(*types.Cell).Coord())

	edits, err := mustTable(t, b2, types.TableEdits).Fetch(types.Filter{"cell_id": cell.CellID})
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Len(t, edits[0].(*types.Edit).Horizontal, 72)

	// New edits continue the sequence after reload.
	next := &types.Edit{CellID: cell.CellID, Edges: cell.Blank(), IsValid: true}
	_, err = mustTable(t, b2, types.TableEdits).Set("", next)
	require.NoError(t, err)
	assert.Greater(t, next.Sequence, edits[0].(*types.Edit).Sequence)
}

func TestSyncStrategy_ImmediateDefault(t *testing.T) {
	b, dir := setupBackend(t, nil)
	assert.Equal(t, types.SyncImmediate, b.syncStrategy)

	createCanvas(t, b, "Immediate", 2, 2)

	data, err := os.ReadFile(filepath.Join(dir, canvasesFile))
	require.NoError(t, err)
	assert.NotEmpty(t, data, "canvases.jsonl is written immediately")
}

func TestSyncStrategy_OnCloseDefersWrites(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{
		Backend:      types.BackendSQLite,
		DataDir:      dir,
		SQLiteConfig: &types.SQLiteConfig{SyncStrategy: types.SyncOnClose},
	}))

	canvas := createCanvas(t, b, "Deferred", 2, 2)
	createCell(t, b, canvas, 0, 0)
	createCell(t, b, canvas, 0, 1)

	for _, file := range []string{canvasesFile, cellsFile, editsFile} {
		data, err := os.ReadFile(filepath.Join(dir, file))
		require.NoError(t, err)
		assert.Empty(t, data, "%s should be empty before Detach", file)
	}

	b.batchMu.Lock()
	pending := len(b.pendingWrites)
	b.batchMu.Unlock()
	assert.Equal(t, 3, pending, "one coalesced rewrite per table")

	require.NoError(t, b.Detach())

	for _, file := range []string{canvasesFile, cellsFile, editsFile} {
		records, err := readJSONL(filepath.Join(dir, file))
		require.NoError(t, err)
		assert.NotEmpty(t, records, "%s should be written on Detach", file)
	}
	records, err := readJSONL(filepath.Join(dir, editsFile))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSyncStrategy_BatchFlushAtThreshold(t *testing.T) {
	b, dir := setupBackend(t, &types.SQLiteConfig{
		SyncStrategy:  types.SyncBatch,
		BatchSize:     3,
		BatchInterval: 3600,
	})

	createCanvas(t, b, "Batch one", 2, 2)
	createCanvas(t, b, "Batch two", 2, 2)

	records, err := readJSONL(filepath.Join(dir, canvasesFile))
	require.NoError(t, err)
	assert.Empty(t, records, "below threshold nothing is written")

	createCanvas(t, b, "Batch three", 2, 2)

	records, err = readJSONL(filepath.Join(dir, canvasesFile))
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestBackend_Flush(t *testing.T) {
	b, dir := setupBackend(t, &types.SQLiteConfig{SyncStrategy: types.SyncOnClose})
	createCanvas(t, b, "Flushed", 2, 2)

	require.NoError(t, b.Flush())
	records, err := readJSONL(filepath.Join(dir, canvasesFile))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
