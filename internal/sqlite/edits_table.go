// Edits table accessor for the SQLite backend. Edits form an append-only log
// per cell; only the is_valid flag may change after insertion.
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
	_ types.Table         = (*editsTable)(nil)
	_ types.CountingTable = (*editsTable)(nil)
)

type editsTable struct {
	backend *Backend
}

const editColumns = "sequence, edit_id, cell_id, timestamp, horizontal, vertical, south_east, south_west, " +
	"is_valid, author_id, source_direction"

// Get retrieves an edit by its edit ID.
func (et *editsTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := et.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return nil, err
	}

	e, err := hydrateEdit(b.db.QueryRow("SELECT "+editColumns+" FROM edits WHERE edit_id = ?", id))
	if err != nil {
		if isNoRows(err) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting edit %s: %w", id, err)
	}
	return e, nil
}

// Set appends a new edit when id is empty or unknown. For an existing edit
// only IsValid may differ from the stored row; any other change returns
// ErrImmutableEdit. New edits get a UUID v7 and the next sequence number.
func (et *editsTable) Set(id string, data any) (string, error) {
	e, ok := data.(*types.Edit)
	if !ok || e == nil {
		return "", types.ErrInvalidData
	}
	if e.CellID == "" {
		return "", fmt.Errorf("edit without cell: %w", types.ErrInvalidData)
	}

	b := et.backend
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

	var existing *types.Edit
	if id != "" {
		existing, err = hydrateEdit(tx.QueryRow("SELECT "+editColumns+" FROM edits WHERE edit_id = ?", id))
		if err != nil && !isNoRows(err) {
			return "", fmt.Errorf("checking edit existence: %w", err)
		}
	}

	if existing != nil {
		if !sameEditContent(existing, e) {
			return "", types.ErrImmutableEdit
		}
		if _, err := tx.Exec("UPDATE edits SET is_valid = ? WHERE edit_id = ?", boolToInt(e.IsValid), id); err != nil {
			return "", fmt.Errorf("updating edit validity: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing edit: %w", err)
		}
		e.EditID = id
		e.Sequence = existing.Sequence
		e.Timestamp = existing.Timestamp

		persist := func() error { return persistEditsJSONL(b) }
		if err := b.persist(types.TableEdits, persist, persist); err != nil {
			return "", fmt.Errorf("persisting %s: %w", editsFile, err)
		}
		return id, nil
	}

	e.EditID = id
	if err := insertEdit(tx, e); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing edit: %w", err)
	}

	if err := b.persist(types.TableEdits,
		func() error { return appendEditsJSONL(b, e) },
		func() error { return persistEditsJSONL(b) },
	); err != nil {
		return "", fmt.Errorf("persisting %s: %w", editsFile, err)
	}
	return e.EditID, nil
}

// Delete always fails: edit history is append-only.
func (et *editsTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return types.ErrAppendOnly
}

// Fetch returns edits ordered by sequence. Supported filter keys:
// "cell_id" (string), "is_valid" (bool), "before_sequence" and
// "after_sequence" (int64 or int, exclusive bounds), "order" ("asc" or
// "desc"), "limit" and "offset" (int).
func (et *editsTable) Fetch(filter types.Filter) ([]any, error) {
	where, args, err := editConditions(filter)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + editColumns + " FROM edits" + where

	order := "ASC"
	if v, ok := filter["order"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, types.ErrInvalidFilter
		}
		switch strings.ToLower(s) {
		case "asc", "":
		case "desc":
			order = "DESC"
		default:
			return nil, types.ErrInvalidFilter
		}
	}
	query += " ORDER BY sequence " + order

	page, err := limitOffset(filter)
	if err != nil {
		return nil, err
	}
	query += page

	b := et.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return nil, err
	}

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching edits: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		e, err := hydrateEdit(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating edit: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edits: %w", err)
	}
	return results, nil
}

// Count returns the number of edits matching the same filter keys as Fetch,
// ignoring order and paging.
func (et *editsTable) Count(filter types.Filter) (int, error) {
	where, args, err := editConditions(filter)
	if err != nil {
		return 0, err
	}

	b := et.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkAttached(); err != nil {
		return 0, err
	}

	var n int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM edits"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting edits: %w", err)
	}
	return n, nil
}

// editConditions renders the WHERE clause shared by Fetch and Count.
func editConditions(filter types.Filter) (string, []any, error) {
	var conditions []string
	var args []any

	if v, ok := filter["cell_id"]; ok {
		s, ok := v.(string)
		if !ok {
			return "", nil, types.ErrInvalidFilter
		}
		conditions = append(conditions, "cell_id = ?")
		args = append(args, s)
	}
	if v, ok := filter["is_valid"]; ok {
		valid, ok := v.(bool)
		if !ok {
			return "", nil, types.ErrInvalidFilter
		}
		conditions = append(conditions, "is_valid = ?")
		args = append(args, boolToInt(valid))
	}
	for key, op := range map[string]string{"before_sequence": "<", "after_sequence": ">"} {
		v, ok := filter[key]
		if !ok {
			continue
		}
		n, ok := toInt64(v)
		if !ok {
			return "", nil, types.ErrInvalidFilter
		}
		conditions = append(conditions, "sequence "+op+" ?")
		args = append(args, n)
	}

	if len(conditions) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// toInt64 accepts the integer types callers commonly put in a Filter.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	return 0, false
}

// insertEdit writes e inside tx, filling EditID, Timestamp and Sequence.
// The cell must exist.
func insertEdit(tx *sql.Tx, e *types.Edit) error {
	var exists bool
	if err := tx.QueryRow("SELECT 1 FROM cells WHERE cell_id = ?", e.CellID).Scan(&exists); err != nil {
		if isNoRows(err) {
			return fmt.Errorf("cell %s: %w", e.CellID, types.ErrNotFound)
		}
		return fmt.Errorf("checking cell existence: %w", err)
	}

	if e.EditID == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating UUID v7: %w", err)
		}
		e.EditID = newID.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	arrays := make([]any, 0, len(types.EdgeNames))
	for _, name := range types.EdgeNames {
		s, err := encodeInts(*e.Edges.Field(name))
		if err != nil {
			return fmt.Errorf("encoding %s: %w", name, err)
		}
		arrays = append(arrays, s)
	}

	var source any
	if e.SourceDirection != nil {
		source = int(*e.SourceDirection)
	}
	var author any
	if e.AuthorID != nil {
		author = *e.AuthorID
	}

	args := append([]any{e.EditID, e.CellID, formatTime(e.Timestamp)}, arrays...)
	args = append(args, boolToInt(e.IsValid), author, source)
	res, err := tx.Exec(`INSERT INTO edits (edit_id, cell_id, timestamp, horizontal, vertical,
		south_east, south_west, is_valid, author_id, source_direction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return mapConstraintErr(err, "inserting edit")
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading edit sequence: %w", err)
	}
	e.Sequence = seq
	return nil
}

// sameEditContent reports whether b differs from a only in IsValid.
func sameEditContent(a, b *types.Edit) bool {
	if a.CellID != b.CellID || !a.Edges.Equal(b.Edges) || a.Author() != b.Author() {
		return false
	}
	switch {
	case a.SourceDirection == nil && b.SourceDirection == nil:
		return true
	case a.SourceDirection == nil || b.SourceDirection == nil:
		return false
	default:
		return *a.SourceDirection == *b.SourceDirection
	}
}

// hydrateEdit converts a SQLite row into a *types.Edit.
func hydrateEdit(row rowScanner) (*types.Edit, error) {
	var e types.Edit
	var timestamp, horizontal, vertical, southEast, southWest string
	var isValid int
	var author sql.NullString
	var source sql.NullInt64
	if err := row.Scan(
		&e.Sequence, &e.EditID, &e.CellID, &timestamp, &horizontal, &vertical,
		&southEast, &southWest, &isValid, &author, &source,
	); err != nil {
		return nil, err
	}

	var err error
	if e.Timestamp, err = parseTime(timestamp, "timestamp"); err != nil {
		return nil, err
	}
	for name, raw := range map[string]string{
		types.EdgeHorizontal: horizontal,
		types.EdgeVertical:   vertical,
		types.EdgeSouthEast:  southEast,
		types.EdgeSouthWest:  southWest,
	} {
		xs, err := decodeInts(raw, name)
		if err != nil {
			return nil, err
		}
		*e.Edges.Field(name) = xs
	}
	e.IsValid = isValid != 0
	e.AuthorID = nullString(author)
	if source.Valid {
		d := types.Direction(source.Int64)
		e.SourceDirection = &d
	}
	return &e, nil
}

// editRecord renders e as one edits.jsonl line.
func editRecord(e *types.Edit) (json.RawMessage, error) {
	rec := editJSONLRecord{
		Sequence:   e.Sequence,
		EditID:     e.EditID,
		CellID:     e.CellID,
		Timestamp:  formatTime(e.Timestamp),
		Horizontal: e.Horizontal,
		Vertical:   e.Vertical,
		SouthEast:  e.SouthEast,
		SouthWest:  e.SouthWest,
		IsValid:    e.IsValid,
		AuthorID:   e.AuthorID,
	}
	if e.SourceDirection != nil {
		d := int(*e.SourceDirection)
		rec.SourceDirection = &d
	}
	return json.Marshal(rec)
}

// appendEditsJSONL appends freshly inserted edits to edits.jsonl.
func appendEditsJSONL(b *Backend, edits ...*types.Edit) error {
	records := make([]json.RawMessage, 0, len(edits))
	for _, e := range edits {
		data, err := editRecord(e)
		if err != nil {
			return fmt.Errorf("marshaling edit for JSONL: %w", err)
		}
		records = append(records, data)
	}
	return appendJSONL(filepath.Join(b.config.DataDir, editsFile), records)
}

// persistEditsJSONL rewrites edits.jsonl from SQLite in sequence order.
func persistEditsJSONL(b *Backend) error {
	rows, err := b.db.Query("SELECT " + editColumns + " FROM edits ORDER BY sequence ASC")
	if err != nil {
		return fmt.Errorf("querying edits for JSONL: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		e, err := hydrateEdit(rows)
		if err != nil {
			return fmt.Errorf("scanning edit for JSONL: %w", err)
		}
		data, err := editRecord(e)
		if err != nil {
			return fmt.Errorf("marshaling edit for JSONL: %w", err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating edits for JSONL: %w", err)
	}

	return writeJSONL(filepath.Join(b.config.DataDir, editsFile), records)
}
