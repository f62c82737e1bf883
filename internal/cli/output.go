package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

const timeLayout = "2006-01-02 15:04"

// emit writes v as indented JSON under --json, and otherwise calls human.
func (s *session) emit(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if s.flags.jsonMode {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return systemError{fmt.Errorf("marshal JSON: %w", err)}
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	human(out)
	return nil
}

// table writes rows under a header, tab-aligned.
func table(w io.Writer, header string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
}

func printCanvas(w io.Writer, c *types.Canvas) {
	fmt.Fprintf(w, "ID:        %s\n", c.CanvasID)
	fmt.Fprintf(w, "Title:     %s\n", c.Title)
	fmt.Fprintf(w, "Slug:      %s\n", c.Slug)
	if c.Description != "" {
		fmt.Fprintf(w, "About:     %s\n", c.Description)
	}
	fmt.Fprintf(w, "Topology:  %s\n", c.Topology())
	if c.IsGrid() {
		fmt.Fprintf(w, "Grid:      %dx%d\n", c.GridWidth, c.GridHeight)
	}
	fmt.Fprintf(w, "Cell size: %dx%d\n", c.CellWidth, c.CellHeight)
	fmt.Fprintf(w, "Window:    %s to %s\n", c.StartTime.Format(timeLayout), c.EndTime.Format(timeLayout))
}

func printCell(w io.Writer, c *types.Cell) {
	fmt.Fprintf(w, "ID:        %s\n", c.CellID)
	fmt.Fprintf(w, "Canvas:    %s\n", c.CanvasID)
	fmt.Fprintf(w, "Position:  %s\n", c.Coord())
	fmt.Fprintf(w, "Owner:     %s\n", orDash(c.Owner()))
	fmt.Fprintf(w, "Size:      %dx%d\n", c.Width, c.Height)
	fmt.Fprintf(w, "Editable:  %t (neighbours may edit: %t)\n", c.IsEditable, c.NeighboursMayEdit)
}

func printEdit(w io.Writer, e *types.Edit) {
	fmt.Fprintf(w, "ID:        %s\n", e.EditID)
	fmt.Fprintf(w, "Cell:      %s\n", e.CellID)
	fmt.Fprintf(w, "Author:    %s\n", orDash(e.Author()))
	fmt.Fprintf(w, "Source:    %s\n", sourceOf(e))
	fmt.Fprintf(w, "Valid:     %t\n", e.IsValid)
	fmt.Fprintf(w, "Time:      %s\n", e.Timestamp.Format(time.RFC3339))
	printEdges(w, e.Edges)
}

func printEdges(w io.Writer, edges types.Edges) {
	for _, name := range types.EdgeNames {
		fmt.Fprintf(w, "  %-11s %v\n", name+":", *edges.Field(name))
	}
}

func sourceOf(e *types.Edit) string {
	if e.SourceDirection == nil {
		return "direct"
	}
	return e.SourceDirection.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
