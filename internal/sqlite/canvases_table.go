// Canvases table accessor for the SQLite backend.
package sqlite

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

var _ types.Table = (*canvasesTable)(nil)

// canvasesTable implements the Table interface for canvases. Deleting a
// canvas cascades to its cells and their edits.
type canvasesTable struct {
	backend *Backend
}

const canvasColumns = "canvas_id, title, slug, description, creator_id, created_at, start_time, end_time, " +
	"grid_width, grid_height, cell_width, cell_height, colour_range, is_torus, new_cells_allowed"

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Get retrieves a canvas by ID.
func (ct *canvasesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := ct.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return nil, err
	}

	row := b.db.QueryRow("SELECT "+canvasColumns+" FROM canvases WHERE canvas_id = ?", id)
	c, err := hydrateCanvas(row)
	if err != nil {
		if isNoRows(err) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting canvas %s: %w", id, err)
	}
	return c, nil
}

// Set creates or updates a canvas. An empty id creates a canvas with a new
// UUID v7. A duplicate slug returns ErrDuplicate.
func (ct *canvasesTable) Set(id string, data any) (string, error) {
	c, ok := data.(*types.Canvas)
	if !ok || c == nil {
		return "", types.ErrInvalidData
	}
	if err := c.Validate(); err != nil {
		return "", err
	}

	b := ct.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return "", err
	}

	if id == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generating UUID v7: %w", err)
		}
		id = newID.String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	tx, err := b.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRow("SELECT 1 FROM canvases WHERE canvas_id = ?", id).Scan(&exists)
	if err != nil && !isNoRows(err) {
		return "", fmt.Errorf("checking canvas existence: %w", err)
	}

	args := []any{
		c.Title, c.Slug, c.Description, c.CreatorID, formatTime(c.CreatedAt),
		formatTime(c.StartTime), formatTime(c.EndTime), c.GridWidth, c.GridHeight,
		c.CellWidth, c.CellHeight, c.ColourRange, boolToInt(c.IsTorus), boolToInt(c.NewCellsAllowed),
		id,
	}
	if exists {
		_, err = tx.Exec(`UPDATE canvases SET title = ?, slug = ?, description = ?, creator_id = ?,
			created_at = ?, start_time = ?, end_time = ?, grid_width = ?, grid_height = ?,
			cell_width = ?, cell_height = ?, colour_range = ?, is_torus = ?, new_cells_allowed = ?
			WHERE canvas_id = ?`, args...)
	} else {
		_, err = tx.Exec(`INSERT INTO canvases (title, slug, description, creator_id, created_at,
			start_time, end_time, grid_width, grid_height, cell_width, cell_height, colour_range,
			is_torus, new_cells_allowed, canvas_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	}
	if err != nil {
		return "", mapConstraintErr(err, "persisting canvas")
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing canvas: %w", err)
	}
	c.CanvasID = id

	persist := func() error { return persistCanvasesJSONL(b) }
	if err := b.persist(types.TableCanvases, persist, persist); err != nil {
		return "", fmt.Errorf("persisting %s: %w", canvasesFile, err)
	}
	return id, nil
}

// Delete removes a canvas together with its cells and their edits.
func (ct *canvasesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := ct.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkAttached(); err != nil {
		return err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow("SELECT 1 FROM canvases WHERE canvas_id = ?", id).Scan(&exists); err != nil {
		if isNoRows(err) {
			return types.ErrNotFound
		}
		return fmt.Errorf("checking canvas existence: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM edits WHERE cell_id IN (SELECT cell_id FROM cells WHERE canvas_id = ?)", id); err != nil {
		return fmt.Errorf("deleting canvas edits: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM cells WHERE canvas_id = ?", id); err != nil {
		return fmt.Errorf("deleting canvas cells: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM canvases WHERE canvas_id = ?", id); err != nil {
		return fmt.Errorf("deleting canvas: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing canvas deletion: %w", err)
	}

	for _, w := range []struct {
		table   string
		persist func() error
	}{
		{types.TableCanvases, func() error { return persistCanvasesJSONL(b) }},
		{types.TableCells, func() error { return persistCellsJSONL(b) }},
		{types.TableEdits, func() error { return persistEditsJSONL(b) }},
	} {
		if err := b.persist(w.table, w.persist, w.persist); err != nil {
			return fmt.Errorf("persisting %s: %w", w.table, err)
		}
	}
	return nil
}

// Fetch returns canvases ordered by creation time. Supported filter keys:
// "slug" and "creator_id" (string), "limit" and "offset" (int).
func (ct *canvasesTable) Fetch(filter types.Filter) ([]any, error) {
	query := "SELECT " + canvasColumns + " FROM canvases"
	var conditions []string
	var args []any

	for _, key := range []string{"slug", "creator_id"} {
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
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, canvas_id ASC"

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
		return nil, fmt.Errorf("fetching canvases: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		c, err := hydrateCanvas(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating canvas: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating canvases: %w", err)
	}
	return results, nil
}

// limitOffset renders the "limit" and "offset" filter keys as SQL.
func limitOffset(filter types.Filter) (string, error) {
	var clause string
	limit, offset := -1, 0
	if v, ok := filter["limit"]; ok {
		n, ok := v.(int)
		if !ok {
			return "", types.ErrInvalidFilter
		}
		if n > 0 {
			limit = n
		}
	}
	if v, ok := filter["offset"]; ok {
		n, ok := v.(int)
		if !ok {
			return "", types.ErrInvalidFilter
		}
		if n > 0 {
			offset = n
		}
	}
	if limit > 0 || offset > 0 {
		clause = fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}
	return clause, nil
}

// hydrateCanvas converts a SQLite row into a *types.Canvas.
func hydrateCanvas(row rowScanner) (*types.Canvas, error) {
	var c types.Canvas
	var createdAt, startTime, endTime string
	var isTorus, newCells int
	if err := row.Scan(
		&c.CanvasID, &c.Title, &c.Slug, &c.Description, &c.CreatorID, &createdAt,
		&startTime, &endTime, &c.GridWidth, &c.GridHeight, &c.CellWidth, &c.CellHeight,
		&c.ColourRange, &isTorus, &newCells,
	); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if c.StartTime, err = parseTime(startTime, "start_time"); err != nil {
		return nil, err
	}
	if c.EndTime, err = parseTime(endTime, "end_time"); err != nil {
		return nil, err
	}
	c.IsTorus = isTorus != 0
	c.NewCellsAllowed = newCells != 0
	return &c, nil
}

// persistCanvasesJSONL rewrites canvases.jsonl from SQLite.
func persistCanvasesJSONL(b *Backend) error {
	rows, err := b.db.Query("SELECT " + canvasColumns + " FROM canvases ORDER BY created_at ASC, canvas_id ASC")
	if err != nil {
		return fmt.Errorf("querying canvases for JSONL: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		c, err := hydrateCanvas(rows)
		if err != nil {
			return fmt.Errorf("scanning canvas for JSONL: %w", err)
		}
		data, err := json.Marshal(canvasJSONLRecord{
			CanvasID:        c.CanvasID,
			Title:           c.Title,
			Slug:            c.Slug,
			Description:     c.Description,
			CreatorID:       c.CreatorID,
			CreatedAt:       formatTime(c.CreatedAt),
			StartTime:       formatTime(c.StartTime),
			EndTime:         formatTime(c.EndTime),
			GridWidth:       c.GridWidth,
			GridHeight:      c.GridHeight,
			CellWidth:       c.CellWidth,
			CellHeight:      c.CellHeight,
			ColourRange:     c.ColourRange,
			IsTorus:         c.IsTorus,
			NewCellsAllowed: c.NewCellsAllowed,
		})
		if err != nil {
			return fmt.Errorf("marshaling canvas for JSONL: %w", err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating canvases for JSONL: %w", err)
	}

	return writeJSONL(filepath.Join(b.config.DataDir, canvasesFile), records)
}
