// JSONL record structures and column codecs for the SQLite backend.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is the stored timestamp format. Nanosecond precision keeps edit
// timestamps distinct; order is carried by the edit sequence regardless.
const timeLayout = time.RFC3339Nano

// canvasJSONLRecord is one line of canvases.jsonl.
type canvasJSONLRecord struct {
	CanvasID        string `json:"canvas_id"`
	Title           string `json:"title"`
	Slug            string `json:"slug"`
	Description     string `json:"description"`
	CreatorID       string `json:"creator_id"`
	CreatedAt       string `json:"created_at"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	GridWidth       int    `json:"grid_width"`
	GridHeight      int    `json:"grid_height"`
	CellWidth       int    `json:"cell_width"`
	CellHeight      int    `json:"cell_height"`
	ColourRange     int    `json:"colour_range"`
	IsTorus         bool   `json:"is_torus"`
	NewCellsAllowed bool   `json:"new_cells_allowed"`
}

// cellJSONLRecord is one line of cells.jsonl.
type cellJSONLRecord struct {
	CellID             string  `json:"cell_id"`
	CanvasID           string  `json:"canvas_id"`
	OwnerID            *string `json:"owner_id"`
	CreatedAt          string  `json:"created_at"`
	X                  int     `json:"x"`
	Y                  int     `json:"y"`
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	SouthEastDiagonals int     `json:"south_east_diagonals"`
	SouthWestDiagonals int     `json:"south_west_diagonals"`
	ColourRange        int     `json:"colour_range"`
	IsEditable         bool    `json:"is_editable"`
	NeighboursMayEdit  bool    `json:"neighbours_may_edit"`
}

// editJSONLRecord is one line of edits.jsonl.
type editJSONLRecord struct {
	Sequence        int64   `json:"sequence"`
	EditID          string  `json:"edit_id"`
	CellID          string  `json:"cell_id"`
	Timestamp       string  `json:"timestamp"`
	Horizontal      []int   `json:"horizontal"`
	Vertical        []int   `json:"vertical"`
	SouthEast       []int   `json:"south_east"`
	SouthWest       []int   `json:"south_west"`
	IsValid         bool    `json:"is_valid"`
	AuthorID        *string `json:"author_id"`
	SourceDirection *int    `json:"source_direction"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s, field string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// encodeInts stores an edge array as JSON text. A nil array is stored as [].
func encodeInts(xs []int) (string, error) {
	if xs == nil {
		xs = []int{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeInts(s, field string) ([]int, error) {
	var xs []int
	if err := json.Unmarshal([]byte(s), &xs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", field, err)
	}
	if xs == nil {
		xs = []int{}
	}
	return xs, nil
}

// nullString converts a nullable column to an optional string.
func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
