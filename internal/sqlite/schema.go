package sqlite

// Schema DDL for all tables.
const (
	createCanvases = `CREATE TABLE IF NOT EXISTS canvases (
    canvas_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    creator_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    grid_width INTEGER NOT NULL,
    grid_height INTEGER NOT NULL,
    cell_width INTEGER NOT NULL,
    cell_height INTEGER NOT NULL,
    colour_range INTEGER NOT NULL,
    is_torus INTEGER NOT NULL,
    new_cells_allowed INTEGER NOT NULL
);`

	createCells = `CREATE TABLE IF NOT EXISTS cells (
    cell_id TEXT PRIMARY KEY,
    canvas_id TEXT NOT NULL,
    owner_id TEXT,
    created_at TEXT NOT NULL,
    x INTEGER NOT NULL,
    y INTEGER NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    south_east_diagonals INTEGER NOT NULL,
    south_west_diagonals INTEGER NOT NULL,
    colour_range INTEGER NOT NULL,
    is_editable INTEGER NOT NULL,
    neighbours_may_edit INTEGER NOT NULL,
    FOREIGN KEY (canvas_id) REFERENCES canvases(canvas_id)
);`

	createEdits = `CREATE TABLE IF NOT EXISTS edits (
    sequence INTEGER PRIMARY KEY AUTOINCREMENT,
    edit_id TEXT NOT NULL,
    cell_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    horizontal TEXT NOT NULL,
    vertical TEXT NOT NULL,
    south_east TEXT NOT NULL,
    south_west TEXT NOT NULL,
    is_valid INTEGER NOT NULL,
    author_id TEXT,
    source_direction INTEGER,
    FOREIGN KEY (cell_id) REFERENCES cells(cell_id)
);`
)

// Index DDL. The unique indexes carry the per-canvas position, ownership and
// slug invariants; SQLite treats NULL owners as distinct.
const (
	idxCanvasesSlug   = `CREATE UNIQUE INDEX IF NOT EXISTS idx_canvases_slug ON canvases(slug);`
	idxCellsPosition  = `CREATE UNIQUE INDEX IF NOT EXISTS idx_cells_position ON cells(canvas_id, x, y);`
	idxCellsOwner     = `CREATE UNIQUE INDEX IF NOT EXISTS idx_cells_owner ON cells(canvas_id, owner_id);`
	idxEditsID        = `CREATE UNIQUE INDEX IF NOT EXISTS idx_edits_id ON edits(edit_id);`
	idxEditsCellSeq   = `CREATE INDEX IF NOT EXISTS idx_edits_cell_sequence ON edits(cell_id, sequence);`
	idxEditsCellValid = `CREATE INDEX IF NOT EXISTS idx_edits_cell_valid ON edits(cell_id, is_valid, sequence);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createCanvases,
	createCells,
	createEdits,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxCanvasesSlug,
	idxCellsPosition,
	idxCellsOwner,
	idxEditsID,
	idxEditsCellSeq,
	idxEditsCellValid,
}
