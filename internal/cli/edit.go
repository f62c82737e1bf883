package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/mosaic/pkg/mosaic"
	"github.com/mesh-intelligence/mosaic/pkg/types"
)

func newEditCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Submit and inspect cell edits",
	}
	cmd.AddCommand(newEditSubmitCmd(s))
	cmd.AddCommand(newEditLatestCmd(s))
	cmd.AddCommand(newEditHistoryCmd(s))
	cmd.AddCommand(newEditDeltaCmd(s))
	cmd.AddCommand(newEditValidityCmd(s, "invalidate", false))
	cmd.AddCommand(newEditValidityCmd(s, "validate", true))
	cmd.AddCommand(newEditReplayCmd(s))
	return cmd
}

// readEdges decodes edge arrays from inline JSON or from a file, "-" being
// standard input.
func readEdges(cmd *cobra.Command, inline, file string) (types.Edges, error) {
	var data []byte
	switch {
	case inline != "" && file != "":
		return types.Edges{}, usageError{fmt.Errorf("--edges and --file are mutually exclusive")}
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return types.Edges{}, systemError{fmt.Errorf("read stdin: %w", err)}
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return types.Edges{}, usageError{fmt.Errorf("read edges: %w", err)}
		}
		data = b
	default:
		return types.Edges{}, usageError{fmt.Errorf("one of --edges or --file is required")}
	}

	var edges types.Edges
	if err := json.Unmarshal(data, &edges); err != nil {
		return types.Edges{}, usageError{fmt.Errorf("parse edges: %w", err)}
	}
	return edges, nil
}

func newEditSubmitCmd(s *session) *cobra.Command {
	var author, inline, file string
	cmd := &cobra.Command{
		Use:   "submit <cell-id>",
		Short: "Append an edit to a cell and propagate its shared edges",
		Long: `Append an edit to a cell. The edges are a JSON object with the arrays
"horizontal", "vertical", "south_east" and "south_west", sized to the cell
lattice. Changed shared edges are copied into the adjacent cells.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if author == "" {
				return usageError{fmt.Errorf("--author is required")}
			}
			edges, err := readEdges(cmd, inline, file)
			if err != nil {
				return err
			}
			return s.withEngine(func(m *mosaic.Mosaic) error {
				edit, err := m.SubmitEdit(args[0], author, edges)
				if err != nil {
					return err
				}
				return s.emit(cmd, edit, func(w io.Writer) {
					fmt.Fprintf(w, "Submitted edit %s\n", edit.EditID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "participant making the edit (required)")
	cmd.Flags().StringVar(&inline, "edges", "", "edge arrays as JSON")
	cmd.Flags().StringVar(&file, "file", "", "read edge arrays from a JSON file (- for stdin)")
	return cmd
}

func newEditLatestCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <cell-id>",
		Short: "Display the latest valid edit of a cell",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				edit, err := m.LatestValidEdit(args[0])
				if err != nil {
					return err
				}
				return s.emit(cmd, edit, func(w io.Writer) { printEdit(w, edit) })
			})
		},
	}
}

func newEditHistoryCmd(s *session) *cobra.Command {
	var validOnly bool
	cmd := &cobra.Command{
		Use:   "history <cell-id>",
		Short: "List the edits of a cell in creation order",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				history := m.EditHistory
				if validOnly {
					history = m.ValidHistory
				}
				var edits []*types.Edit
				for edit, err := range history(args[0]) {
					if err != nil {
						return err
					}
					edits = append(edits, edit)
				}
				return s.emit(cmd, edits, func(w io.Writer) {
					rows := make([][]string, 0, len(edits))
					valid := 0
					for i, e := range edits {
						editNumber := "-"
						if e.IsValid {
							editNumber = strconv.Itoa(valid)
							valid++
						}
						historyNumber := strconv.Itoa(i)
						if validOnly {
							historyNumber = "-"
						}
						rows = append(rows, []string{historyNumber, editNumber, orDash(e.Author()), sourceOf(e),
							e.Timestamp.Format(timeLayout), e.EditID})
					}
					table(w, "HISTORY\tEDIT\tAUTHOR\tSOURCE\tTIME\tID", rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&validOnly, "valid", false, "only valid edits")
	return cmd
}

func newEditDeltaCmd(s *session) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delta <edit-id>",
		Short: "Show how an edit differs from the edit before it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				edit, err := m.GetEdit(args[0])
				if err != nil {
					return err
				}
				delta, err := m.EdgesDelta(edit, !all)
				if err != nil {
					return err
				}
				return s.emit(cmd, delta, func(w io.Writer) {
					fmt.Fprintf(w, "Delta of edit %s:\n", edit.EditID)
					printEdges(w, delta)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "compare against the previous edit even if it is invalid")
	return cmd
}

func newEditValidityCmd(s *session, use string, valid bool) *cobra.Command {
	short := "Mark an edit invalid, hiding it from the latest view"
	if valid {
		short = "Mark an edit valid again"
	}
	return &cobra.Command{
		Use:   use + " <edit-id>",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				edit, err := m.SetEditValidity(args[0], valid)
				if err != nil {
					return err
				}
				return s.emit(cmd, edit, func(w io.Writer) {
					fmt.Fprintf(w, "Edit %s valid: %t\n", edit.EditID, edit.IsValid)
				})
			})
		},
	}
}

func newEditReplayCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <cell-id>",
		Short: "Rebuild every valid state of a cell from its deltas",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withEngine(func(m *mosaic.Mosaic) error {
				states, err := m.Replay(args[0])
				if err != nil {
					return err
				}
				return s.emit(cmd, states, func(w io.Writer) {
					fmt.Fprintf(w, "Replayed %d valid states of cell %s\n", len(states), args[0])
				})
			})
		},
	}
}
