package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/mosaic/pkg/mosaic"
	"github.com/mesh-intelligence/mosaic/pkg/types"
)

func newCellCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cell",
		Short: "Assign and inspect cells",
	}
	cmd.AddCommand(newCellAssignCmd(s))
	cmd.AddCommand(newCellShowCmd(s))
	cmd.AddCommand(newCellListCmd(s))
	cmd.AddCommand(newCellNeighboursCmd(s))
	return cmd
}

func newCellAssignCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <canvas> <participant>",
		Short: "Return the participant's cell, assigning a contiguous one if needed",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				c, err := resolveCanvas(m, args[0])
				if err != nil {
					return err
				}
				cell, err := m.GetOrAssignCell(c.CanvasID, args[1])
				if err != nil {
					return err
				}
				return s.emit(cmd, cell, func(w io.Writer) {
					fmt.Fprintf(w, "Cell %s at %s belongs to %s\n", cell.CellID, cell.Coord(), cell.Owner())
				})
			})
		},
	}
}

func newCellShowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cell-id>",
		Short: "Display a cell and its latest valid edit",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				cell, err := m.GetCell(args[0])
				if err != nil {
					return err
				}
				latest, err := m.LatestValidEdit(cell.CellID)
				if err != nil && !errors.Is(err, types.ErrNotFound) {
					return err
				}
				out := map[string]any{"cell": cell, "latest": latest}
				return s.emit(cmd, out, func(w io.Writer) {
					printCell(w, cell)
					if latest == nil {
						fmt.Fprintln(w, "\nNo valid edits")
						return
					}
					fmt.Fprintf(w, "\nLatest edit %s by %s:\n", latest.EditID, orDash(latest.Author()))
					printEdges(w, latest.Edges)
				})
			})
		},
	}
}

func newCellListCmd(s *session) *cobra.Command {
	var ownedOnly bool
	cmd := &cobra.Command{
		Use:   "list <canvas>",
		Short: "List the cells of a canvas",
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
				if ownedOnly {
					cells = slices.DeleteFunc(cells, func(cell *types.Cell) bool { return !cell.Owned() })
				}
				return s.emit(cmd, cells, func(w io.Writer) {
					rows := make([][]string, 0, len(cells))
					for _, cell := range cells {
						rows = append(rows, []string{cell.Coord().String(), orDash(cell.Owner()), cell.CellID})
					}
					table(w, "POSITION\tOWNER\tID", rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&ownedOnly, "owned", false, "only assigned cells")
	return cmd
}

func newCellNeighboursCmd(s *session) *cobra.Command {
	var corners, empty bool
	cmd := &cobra.Command{
		Use:     "neighbours <cell-id>",
		Aliases: []string{"neighbors"},
		Short:   "List the cells adjacent to a cell",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				neighbours, err := m.GetNeighbours(args[0], corners, empty)
				if err != nil {
					return err
				}
				byName := make(map[string]*types.Cell, len(neighbours))
				for d, n := range neighbours {
					byName[d.String()] = n
				}
				return s.emit(cmd, byName, func(w io.Writer) {
					var rows [][]string
					for _, d := range types.NeighbourOffsets(corners) {
						n, ok := neighbours[d]
						switch {
						case !ok:
							continue
						case n == nil:
							rows = append(rows, []string{d.String(), "-", "-", "-"})
						default:
							rows = append(rows, []string{d.String(), n.Coord().String(), orDash(n.Owner()), n.CellID})
						}
					}
					table(w, "DIRECTION\tPOSITION\tOWNER\tID", rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&corners, "corners", false, "include diagonal neighbours")
	cmd.Flags().BoolVar(&empty, "empty", false, "include positions with no cell")
	return cmd
}
