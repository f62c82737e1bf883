// Cells table accessor for the SQLite backend.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

var (
	_ types.Table     = (*cellsTable)(nil)
	_ types.BulkTable = (*cellsTable)(nil)
)

// cellsTable implements the Table interface for cells. A cell created with
// a Seed gets its first edit in the same transaction. Cells are only removed
// by deleting their canvas.
type cellsTable struct {
	backend *Backend
}

const cellColumns = "cell_id, canvas_id, owner_id, created_at, x, y, width, height, " +
	"south_east_diagonals, south_west_diagonals, colour_range, is_editable, neighbours_may_edit"

// Get retrieves a cell by ID.
func (ct *cellsTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := ct.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return nil, err
	}

	c, err := hydrateCell(b.db.QueryRow("SELECT "+cellColumns+" FROM cells WHERE cell_id = ?", id))
	if err != nil {
		if isNoRows(err) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting cell %s: %w", id, err)
	}
	return c, nil
}

// Set creates or updates a cell. Position, canvas and dimensions are fixed
// at creation; an update may change ownership (once), colour range and the
// edit flags. Duplicate positions or owners on a canvas return ErrDuplicate
// and write nothing.
func (ct *cellsTable) Set(id string, data any) (string, error) {
	c, ok := data.(*types.Cell)
	if !ok || c == nil {
		return "", types.ErrInvalidData
	}

	b := ct.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return "", err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing *types.Cell
	if id != "" {
		existing, err = hydrateCell(tx.QueryRow("SELECT "+cellColumns+" FROM cells WHERE cell_id = ?", id))
		if err != nil && !isNoRows(err) {
			return "", fmt.Errorf("checking cell existence: %w", err)
		}
	}

	if existing != nil {
		if err := updateCell(tx, existing, c); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing cell: %w", err)
		}
		c.CellID = id
		c.CreatedAt = existing.CreatedAt

		persist := func() error { return persistCellsJSONL(b) }
		if err := b.persist(types.TableCells, persist, persist); err != nil {
			return "", fmt.Errorf("persisting %s: %w", cellsFile, err)
		}
		return id, nil
	}

	c.CellID = id
	seed, err := insertCell(tx, c)
	if err != nil {
		c.CellID = ""
		return "", err
	}
	if err := tx.Commit(); err != nil {
		c.CellID = ""
		return "", fmt.Errorf("committing cell: %w", err)
	}

	if err := ct.persistCreated([]*types.Edit{seed}); err != nil {
		return "", err
	}
	return c.CellID, nil
}

// SetAll creates every cell in one transaction. Items must be new
// *types.Cell values; any failure leaves the table unchanged.
func (ct *cellsTable) SetAll(data []any) ([]string, error) {
	cells := make([]*types.Cell, 0, len(data))
	for _, d := range data {
		c, ok := d.(*types.Cell)
		if !ok || c == nil {
			return nil, types.ErrInvalidData
		}
		cells = append(cells, c)
	}

	b := ct.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return nil, err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(cells))
	var seeds []*types.Edit
	for _, c := range cells {
		c.CellID = ""
		seed, err := insertCell(tx, c)
		if err != nil {
			for _, done := range cells {
				done.CellID = ""
			}
			return nil, fmt.Errorf("cell %s: %w", c.Coord(), err)
		}
		ids = append(ids, c.CellID)
		seeds = append(seeds, seed)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cells: %w", err)
	}
	if err := ct.persistCreated(seeds); err != nil {
		return nil, err
	}
	return ids, nil
}

// persistCreated writes cells.jsonl and the seed edits of newly created
// cells. The caller must hold b.mu.
func (ct *cellsTable) persistCreated(seeds []*types.Edit) error {
	b := ct.backend
	persistCells := func() error { return persistCellsJSONL(b) }
	if err := b.persist(types.TableCells, persistCells, persistCells); err != nil {
		return fmt.Errorf("persisting %s: %w", cellsFile, err)
	}
	if len(seeds) == 0 {
		return nil
	}
	if err := b.persist(types.TableEdits,
		func() error { return appendEditsJSONL(b, seeds...) },
		func() error { return persistEditsJSONL(b) },
	); err != nil {
		return fmt.Errorf("persisting %s: %w", editsFile, err)
	}
	return nil
}

// Delete always fails: cells live as long as their canvas.
func (ct *cellsTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return fmt.Errorf("cells are removed with their canvas: %w", types.ErrAppendOnly)
}

// Fetch returns cells ordered by x then y. Supported filter keys:
// "canvas_id" and "owner_id" (string), "owned" (bool), "x" and "y" (int),
// "limit" and "offset" (int).
func (ct *cellsTable) Fetch(filter types.Filter) ([]any, error) {
	query := "SELECT " + cellColumns + " FROM cells"
	var conditions []string
	var args []any

	for _, key := range []string{"canvas_id", "owner_id"} {
		v, ok := filter[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, types.ErrInvalidFilter
		}
		conditions = append(conditions, key+" = ?")
		args = append(args, s)
	}
	if v, ok := filter["owned"]; ok {
		owned, ok := v.(bool)
		if !ok {
			return nil, types.ErrInvalidFilter
		}
		if owned {
			conditions = append(conditions, "owner_id IS NOT NULL")
		} else {
			conditions = append(conditions, "owner_id IS NULL")
		}
	}
	for _, key := range []string{"x", "y"} {
		v, ok := filter[key]
		if !ok {
			continue
		}
		n, ok := v.(int)
		if !ok {
			return nil, types.ErrInvalidFilter
		}
		conditions = append(conditions, key+" = ?")
		args = append(args, n)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY x ASC, y ASC"

	page, err := limitOffset(filter)
	if err != nil {
		return nil, err
	}
	query += page

	b := ct.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return nil, err
	}

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching cells: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		c, err := hydrateCell(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating cell: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cells: %w", err)
	}
	return results, nil
}

// insertCell writes a new cell and its first edit inside tx. The first edit
// carries c.Seed, or blank edges when no seed is set. Returns that edit.
func insertCell(tx *sql.Tx, c *types.Cell) (*types.Edit, error) {
	var canvasExists bool
	if err := tx.QueryRow("SELECT 1 FROM canvases WHERE canvas_id = ?", c.CanvasID).Scan(&canvasExists); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("canvas %s: %w", c.CanvasID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("checking canvas existence: %w", err)
	}

	if c.CellID == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generating UUID v7: %w", err)
		}
		c.CellID = newID.String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var owner any
	if c.Owned() {
		owner = c.Owner()
	}
	_, err := tx.Exec(`INSERT INTO cells (`+cellColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CellID, c.CanvasID, owner, formatTime(c.CreatedAt), c.X, c.Y, c.Width, c.Height,
		c.SouthEastDiagonals, c.SouthWestDiagonals, c.ColourRange,
		boolToInt(c.IsEditable), boolToInt(c.NeighboursMayEdit),
	)
	if err != nil {
		return nil, mapConstraintErr(err, "inserting cell")
	}

	edges := c.Blank()
	if c.Seed != nil {
		if err := c.ValidateEdges(*c.Seed); err != nil {
			return nil, err
		}
		edges = c.Seed.Clone()
	}
	seed := &types.Edit{
		CellID:    c.CellID,
		Timestamp: c.CreatedAt,
		Edges:     edges,
		IsValid:   true,
	}
	if err := insertEdit(tx, seed); err != nil {
		return nil, fmt.Errorf("seeding first edit: %w", err)
	}
	return seed, nil
}

// updateCell applies the mutable fields of next to the stored cell.
func updateCell(tx *sql.Tx, stored, next *types.Cell) error {
	if next.CanvasID != stored.CanvasID || next.X != stored.X || next.Y != stored.Y ||
		next.Width != stored.Width || next.Height != stored.Height ||
		next.SouthEastDiagonals != stored.SouthEastDiagonals ||
		next.SouthWestDiagonals != stored.SouthWestDiagonals {
		return fmt.Errorf("cell geometry is fixed at creation: %w", types.ErrInvalidData)
	}
	if stored.Owned() && stored.Owner() != next.Owner() {
		return &types.CellOwnedError{Coord: stored.Coord(), OwnerID: stored.Owner()}
	}

	var owner any
	if next.Owned() {
		owner = next.Owner()
	}
	_, err := tx.Exec(`UPDATE cells SET owner_id = ?, colour_range = ?, is_editable = ?,
		neighbours_may_edit = ? WHERE cell_id = ?`,
		owner, next.ColourRange, boolToInt(next.IsEditable), boolToInt(next.NeighboursMayEdit),
		stored.CellID,
	)
	if err != nil {
		return mapConstraintErr(err, "updating cell")
	}
	return nil
}

// hydrateCell converts a SQLite row into a *types.Cell.
func hydrateCell(row rowScanner) (*types.Cell, error) {
	var c types.Cell
	var owner sql.NullString
	var createdAt string
	var editable, neighboursMayEdit int
	if err := row.Scan(
		&c.CellID, &c.CanvasID, &owner, &createdAt, &c.X, &c.Y, &c.Width, &c.Height,
		&c.SouthEastDiagonals, &c.SouthWestDiagonals, &c.ColourRange, &editable, &neighboursMayEdit,
	); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	c.OwnerID = nullString(owner)
	c.IsEditable = editable != 0
	c.NeighboursMayEdit = neighboursMayEdit != 0
	return &c, nil
}

// persistCellsJSONL rewrites cells.jsonl from SQLite.
func persistCellsJSONL(b *Backend) error {
	rows, err := b.db.Query("SELECT " + cellColumns + " FROM cells ORDER BY canvas_id ASC, x ASC, y ASC")
	if err != nil {
		return fmt.Errorf("querying cells for JSONL: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		c, err := hydrateCell(rows)
		if err != nil {
			return fmt.Errorf("scanning cell for JSONL: %w", err)
		}
		data, err := json.Marshal(cellJSONLRecord{
			CellID:             c.CellID,
			CanvasID:           c.CanvasID,
			OwnerID:            c.OwnerID,
			CreatedAt:          formatTime(c.CreatedAt),
			X:                  c.X,
			Y:                  c.Y,
			Width:              c.Width,
			Height:             c.Height,
			SouthEastDiagonals: c.SouthEastDiagonals,
			SouthWestDiagonals: c.SouthWestDiagonals,
			ColourRange:        c.ColourRange,
			IsEditable:         c.IsEditable,
			NeighboursMayEdit:  c.NeighboursMayEdit,
		})
		if err != nil {
			return fmt.Errorf("marshaling cell for JSONL: %w", err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating cells for JSONL: %w", err)
	}

	return writeJSONL(filepath.Join(b.config.DataDir, cellsFile), records)
}
