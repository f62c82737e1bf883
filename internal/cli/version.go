package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/mosaic/pkg/mosaic"
)

const modulePath = "github.com/mesh-intelligence/mosaic"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mosaic version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "mosaic v%s\nmodule: %s\ngo: %s\n", mosaic.Version, modulePath, runtime.Version())
			return nil
		},
	}
}
