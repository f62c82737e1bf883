package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// setupTestDB opens an empty database with the full schema in a temp dir.
func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range append(append([]string{}, schemaDDL...), indexDDL...) {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, initJSONLFiles(dir))
	return db, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const loaderCanvas = `{"canvas_id":"cv1","title":"Loaded","slug":"loaded","description":"","creator_id":"",` +
	`"created_at":"2026-03-01T12:00:00Z","start_time":"2026-03-01T12:00:00Z","end_time":"2026-03-03T12:00:00Z",` +
	`"grid_width":2,"grid_height":2,"cell_width":1,"cell_height":1,"colour_range":1,"is_torus":false,` +
	`"new_cells_allowed":false,"legacy_field":"ignored"}`

const loaderCell = `{"cell_id":"c1","canvas_id":"cv1","owner_id":null,"created_at":"2026-03-01T12:00:00Z",` +
	`"x":1,"y":0,"width":1,"height":1,"south_east_diagonals":1,"south_west_diagonals":1,"colour_range":1,` +
	`"is_editable":true,"neighbours_may_edit":false}`

const loaderEdit = `{"sequence":41,"edit_id":"e1","cell_id":"c1","timestamp":"2026-03-01T12:00:00Z",` +
	`"horizontal":[0,1],"vertical":[2,0],"south_east":[3],"south_west":[0],"is_valid":true,` +
	`"author_id":"artist","source_direction":2}`

func TestLoadAllJSONL(t *testing.T) {
	db, dir := setupTestDB(t)
	writeFile(t, dir, canvasesFile, loaderCanvas+"\n")
	writeFile(t, dir, cellsFile, loaderCell+"\n")
	writeFile(t, dir, editsFile, "{broken\n"+loaderEdit+"\n")

	require.NoError(t, loadAllJSONL(db, dir))

	var width int
	var torus int
	require.NoError(t, db.QueryRow("SELECT grid_width, is_torus FROM canvases WHERE canvas_id = 'cv1'").Scan(&width, &torus))
	assert.Equal(t, 2, width)
	assert.Equal(t, 0, torus)

	var editable, neighbours int
	var owner sql.NullString
	require.NoError(t, db.QueryRow("SELECT is_editable, neighbours_may_edit, owner_id FROM cells WHERE cell_id = 'c1'").
		Scan(&editable, &neighbours, &owner))
	assert.Equal(t, 1, editable)
	assert.Equal(t, 0, neighbours)
	assert.False(t, owner.Valid)

	e, err := hydrateEdit(db.QueryRow("SELECT " + editColumns + " FROM edits WHERE edit_id = 'e1'"))
	require.NoError(t, err)
	assert.Equal(t, int64(41), e.Sequence)
	assert.Equal(t, []int{0, 1}, e.Horizontal)
	assert.Equal(t, []int{3}, e.SouthEast)
	assert.Equal(t, "artist", e.Author())
	require.NotNil(t, e.SourceDirection)
	assert.Equal(t, 2, int(*e.SourceDirection))
}

func TestLoadAllJSONL_SkipsDuplicates(t *testing.T) {
	db, dir := setupTestDB(t)
	writeFile(t, dir, canvasesFile, loaderCanvas+"\n")
	writeFile(t, dir, cellsFile, loaderCell+"\n"+loaderCell+"\n")

	require.NoError(t, loadAllJSONL(db, dir))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cells").Scan(&n))
	assert.Equal(t, 1, n, "duplicate cell rows are skipped")
}

func TestColumnValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"true", true, 1},
		{"false", false, 0},
		{"string", "x", "x"},
		{"nil", nil, nil},
		{"array", []any{1, 2}, "[1,2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, columnValue(tt.in))
		})
	}
}
