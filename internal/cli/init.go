package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize mosaic storage",
		Long: `Create the configuration directory with a default config.yaml, then create
the data directory and its JSONL files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.open()
			if err != nil {
				return err
			}
			if err := m.Close(); err != nil {
				return systemError{fmt.Errorf("finalize storage: %w", err)}
			}
			dataDir, err := s.dataDir()
			if err != nil {
				return systemError{err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Mosaic initialized successfully")
			fmt.Fprintln(out, "  config:", s.configDir)
			fmt.Fprintln(out, "  data:  ", dataDir)
			return nil
		},
	}
}
