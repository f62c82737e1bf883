package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/mosaic/pkg/mosaic"
	"github.com/mesh-intelligence/mosaic/pkg/types"
)

func newCanvasCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canvas",
		Short: "Create and manage canvases",
	}
	cmd.AddCommand(newCanvasCreateCmd(s))
	cmd.AddCommand(newCanvasShowCmd(s))
	cmd.AddCommand(newCanvasListCmd(s))
	cmd.AddCommand(newCanvasGridCmd(s))
	cmd.AddCommand(newCanvasExpandCmd(s))
	cmd.AddCommand(newCanvasDeleteCmd(s))
	return cmd
}

// withEngine opens the engine for the duration of fn.
func (s *session) withEngine(fn func(m *mosaic.Mosaic) error) error {
	m, err := s.open()
	if err != nil {
		return err
	}
	err = fn(m)
	if cerr := m.Close(); cerr != nil && err == nil {
		err = systemError{fmt.Errorf("close store: %w", cerr)}
	}
	return err
}

// resolveCanvas accepts a canvas ID or slug.
func resolveCanvas(m *mosaic.Mosaic, ref string) (*types.Canvas, error) {
	c, err := m.GetCanvas(ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, types.ErrNotFound) && !errors.Is(err, types.ErrInvalidID) {
		return nil, err
	}
	return m.CanvasBySlug(ref)
}

func newCanvasCreateCmd(s *session) *cobra.Command {
	var (
		c        types.Canvas
		start    string
		end      string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a canvas",
		Long: `Create a canvas. Bounded canvases (--width and --height) get every cell
generated up front; a canvas with neither dimension grows organically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.Title == "" {
				return usageError{fmt.Errorf("--title is required")}
			}
			var err error
			if c.StartTime, err = parseTime(start, time.Now()); err != nil {
				return usageError{fmt.Errorf("--start: %w", err)}
			}
			if c.EndTime, err = parseTime(end, c.StartTime.Add(duration)); err != nil {
				return usageError{fmt.Errorf("--end: %w", err)}
			}
			c.NewCellsAllowed = c.GridWidth == 0 && c.GridHeight == 0

			return s.withEngine(func(m *mosaic.Mosaic) error {
				created, err := m.CreateCanvas(&c)
				if err != nil {
					return err
				}
				return s.emit(cmd, created, func(w io.Writer) {
					fmt.Fprintf(w, "Created %s canvas %q: %s\n", created.Topology(), created.Title, created.CanvasID)
				})
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&c.Title, "title", "", "canvas title (required)")
	f.StringVar(&c.Description, "description", "", "canvas description")
	f.StringVar(&c.CreatorID, "creator", "", "creator participant ID")
	f.IntVar(&c.GridWidth, "width", 0, "grid width in cells (0 with --height 0 for organic)")
	f.IntVar(&c.GridHeight, "height", 0, "grid height in cells")
	f.IntVar(&c.CellWidth, "cell-width", types.DefaultCellSize, "cell width in lattice units")
	f.IntVar(&c.CellHeight, "cell-height", types.DefaultCellSize, "cell height in lattice units")
	f.IntVar(&c.ColourRange, "colour-range", types.DefaultColourRange, "largest segment value")
	f.BoolVar(&c.IsTorus, "torus", false, "wrap both axes")
	f.StringVar(&start, "start", "", "edit window start, RFC 3339 (default: now)")
	f.StringVar(&end, "end", "", "edit window end, RFC 3339 (default: start + --duration)")
	f.DurationVar(&duration, "duration", 7*24*time.Hour, "edit window length when --end is not given")
	return cmd
}

func parseTime(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, value)
}

func newCanvasShowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <canvas>",
		Short: "Display a canvas and its allocation",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				c, err := resolveCanvas(m, args[0])
				if err != nil {
					return err
				}
				cells, err := m.Cells(c.CanvasID)
				if err != nil {
					return err
				}
				owned := 0
				for _, cell := range cells {
					if cell.Owned() {
						owned++
					}
				}
				out := map[string]any{"canvas": c, "cells": len(cells), "owned": owned}
				return s.emit(cmd, out, func(w io.Writer) {
					printCanvas(w, c)
					fmt.Fprintf(w, "Cells:     %d (%d assigned)\n", len(cells), owned)
				})
			})
		},
	}
}

func newCanvasListCmd(s *session) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List canvases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				filter := types.Filter{"offset": offset}
				if limit > 0 {
					filter["limit"] = limit
				}
				canvases, err := m.FetchCanvases(filter)
				if err != nil {
					return err
				}
				return s.emit(cmd, canvases, func(w io.Writer) {
					rows := make([][]string, 0, len(canvases))
					for _, c := range canvases {
						size := "-"
						if c.IsGrid() {
							size = strconv.Itoa(c.GridWidth) + "x" + strconv.Itoa(c.GridHeight)
						}
						rows = append(rows, []string{c.Slug, c.Topology().String(), size,
							c.StartTime.Format(timeLayout), c.EndTime.Format(timeLayout), c.CanvasID})
					}
					table(w, "SLUG\tTOPOLOGY\tSIZE\tSTART\tEND\tID", rows)
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum canvases to list (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "canvases to skip")
	return cmd
}

func newCanvasGridCmd(s *session) *cobra.Command {
	var canAdd bool
	cmd := &cobra.Command{
		Use:   "grid <canvas>",
		Short: "Generate the missing blank cells of a bounded canvas",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				c, err := resolveCanvas(m, args[0])
				if err != nil {
					return err
				}
				if err := m.GenerateGrid(c.CanvasID, canAdd); err != nil {
					return err
				}
				cells, err := m.Cells(c.CanvasID)
				if err != nil {
					return err
				}
				return s.emit(cmd, map[string]any{"canvas_id": c.CanvasID, "cells": len(cells)}, func(w io.Writer) {
					fmt.Fprintf(w, "Canvas %q has %d cells\n", c.Title, len(cells))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&canAdd, "add", false, "fill the region beyond the existing cells")
	return cmd
}

func newCanvasExpandCmd(s *session) *cobra.Command {
	var width, height int
	cmd := &cobra.Command{
		Use:   "expand <canvas>",
		Short: "Grow a bounded canvas and generate the new cells",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				c, err := resolveCanvas(m, args[0])
				if err != nil {
					return err
				}
				if width == 0 {
					width = c.GridWidth
				}
				if height == 0 {
					height = c.GridHeight
				}
				if err := m.ExpandGrid(c.CanvasID, width, height); err != nil {
					return err
				}
				grown, err := m.GetCanvas(c.CanvasID)
				if err != nil {
					return err
				}
				return s.emit(cmd, grown, func(w io.Writer) {
					fmt.Fprintf(w, "Canvas %q is now %dx%d\n", grown.Title, grown.GridWidth, grown.GridHeight)
				})
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "new grid width (default: unchanged)")
	cmd.Flags().IntVar(&height, "height", 0, "new grid height (default: unchanged)")
	return cmd
}

func newCanvasDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <canvas>",
		Short: "Delete a canvas with all its cells and edits",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				c, err := resolveCanvas(m, args[0])
				if err != nil {
					return err
				}
				if err := m.DeleteCanvas(c.CanvasID); err != nil {
					return err
				}
				return s.emit(cmd, map[string]string{"deleted": c.CanvasID}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted canvas %q\n", c.Title)
				})
			})
		},
	}
}
