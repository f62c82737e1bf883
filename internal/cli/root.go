// Package cli implements the mosaic command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/mosaic/internal/paths"
	"github.com/mesh-intelligence/mosaic/pkg/mosaic"
	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// session is the state shared by the subcommands of one invocation.
type session struct {
	flags     rootFlags
	configDir string
	config    *viper.Viper
	logger    *slog.Logger
}

// NewRootCmd creates the top-level "mosaic" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:   "mosaic",
		Short: "A collaborative canvas engine",
		Long: `Mosaic partitions shared canvases into cells, assigns each participant a
contiguous cell, and keeps the edges shared by adjacent cells in step as
participants draw.`,
		Version:       mosaic.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return s.load(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&s.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	pf.BoolVar(&s.flags.jsonMode, "json", false, "output in JSON format")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(s))
	root.AddCommand(newCanvasCmd(s))
	root.AddCommand(newCellCmd(s))
	root.AddCommand(newEditCmd(s))
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mosaic:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// load resolves the configuration directory, reads config.yaml, and builds
// the logger.
func (s *session) load(stderr io.Writer) error {
	configDir, err := paths.ResolveConfigDir(s.flags.configDir)
	if err != nil {
		return systemError{fmt.Errorf("resolve config dir: %w", err)}
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return systemError{err}
	}
	logger, err := newLogger(v, stderr)
	if err != nil {
		return usageError{err}
	}
	s.configDir, s.config, s.logger = configDir, v, logger
	return nil
}

// dataDir applies --data-dir > config.yaml data_dir > MOSAIC_DATA_DIR >
// $(CWD)/.mosaic-db.
func (s *session) dataDir() (string, error) {
	return paths.ResolveDataDir(s.flags.dataDir, s.config.GetString(cfgKeyDataDir))
}

// open attaches the store and returns the engine. The caller closes it.
func (s *session) open() (*mosaic.Mosaic, error) {
	dataDir, err := s.dataDir()
	if err != nil {
		return nil, systemError{fmt.Errorf("resolve data dir: %w", err)}
	}
	opts, err := engineOptions(s.config, s.logger)
	if err != nil {
		return nil, usageError{err}
	}
	m, err := mosaic.Open(storeConfig(s.config, dataDir), opts...)
	if err != nil {
		return nil, systemError{err}
	}
	return m, nil
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// usageError marks a failure caused by the invocation itself.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// systemError marks a failure of the environment: directories, config
// files, or the store.
type systemError struct{ err error }

func (e systemError) Error() string { return e.err.Error() }
func (e systemError) Unwrap() error { return e.err }

// exitCode maps an error to the process exit status. Engine rule
// violations are user errors; anything unclassified is a system error.
func exitCode(err error) int {
	var sys systemError
	var usage usageError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &usage):
		return exitUserError
	case errors.As(err, &sys):
		return exitSysError
	}
	for _, target := range []error{
		types.ErrValidation, types.ErrNotFound, types.ErrInvalidID, types.ErrDuplicate,
		types.ErrPermission, types.ErrCanvasClosed, types.ErrFullGrid,
		types.ErrNoAvailableCells, types.ErrCellOwned, types.ErrAppendOnly,
	} {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}
