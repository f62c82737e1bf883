// JSONL loading for startup.
package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// jsonlTableMapping maps JSONL filenames to their SQLite tables and column lists.
// The order matters: tables with foreign keys must load after their referenced tables.
var jsonlTableMapping = []struct {
	file    string
	table   string
	columns []string
}{
	{canvasesFile, "canvases", []string{
		"canvas_id", "title", "slug", "description", "creator_id", "created_at",
		"start_time", "end_time", "grid_width", "grid_height", "cell_width",
		"cell_height", "colour_range", "is_torus", "new_cells_allowed",
	}},
	{cellsFile, "cells", []string{
		"cell_id", "canvas_id", "owner_id", "created_at", "x", "y", "width",
		"height", "south_east_diagonals", "south_west_diagonals", "colour_range",
		"is_editable", "neighbours_may_edit",
	}},
	{editsFile, "edits", []string{
		"sequence", "edit_id", "cell_id", "timestamp", "horizontal", "vertical",
		"south_east", "south_west", "is_valid", "author_id", "source_direction",
	}},
}

// loadAllJSONL reads each JSONL file from DataDir and inserts records into the
// corresponding SQLite tables. Loading is transactional: all succeed or the
// database remains empty. Malformed lines and records that violate a
// constraint are skipped. Unknown fields are ignored.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, mapping := range jsonlTableMapping {
		path := filepath.Join(dataDir, mapping.file)
		records, err := readJSONL(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", mapping.file, err)
		}

		if len(records) == 0 {
			continue
		}

		if err := insertRecords(tx, mapping.table, mapping.columns, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", mapping.file, mapping.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}

	return nil
}

// insertRecords inserts parsed JSONL records into a SQLite table. Only
// columns listed in the mapping are extracted. Arrays are stored as their
// JSON text; numbers keep their integer form.
func insertRecords(tx *sql.Tx, table string, columns []string, records []json.RawMessage) error {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]any
		dec := json.NewDecoder(bytes.NewReader(rec))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			continue
		}

		args := make([]any, len(columns))
		for i, col := range columns {
			val, ok := obj[col]
			if !ok {
				args[i] = nil
				continue
			}
			args[i] = columnValue(val)
		}

		if _, err := stmt.Exec(args...); err != nil {
			continue
		}
	}

	return nil
}

// columnValue converts a decoded JSON value to a SQLite argument.
func columnValue(val any) any {
	switch v := val.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return val
	}
}
