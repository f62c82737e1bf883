package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/mosaic/pkg/mosaic"
	"github.com/mesh-intelligence/mosaic/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeySyncStrategy  = "sync_strategy"
	cfgKeyBatchSize     = "batch_size"
	cfgKeyBatchInterval = "batch_interval"
	cfgKeyPlacement     = "initial_placement"
	cfgKeyRNGSeed       = "rng_seed"
	cfgKeyLogLevel      = "log_level"
	cfgKeyLogFormat     = "log_format"
)

// configFile is the layout written to config.yaml on first run.
type configFile struct {
	Backend          string `yaml:"backend"`
	DataDir          string `yaml:"data_dir,omitempty"`
	SyncStrategy     string `yaml:"sync_strategy"`
	InitialPlacement string `yaml:"initial_placement"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
}

func defaultConfig() configFile {
	return configFile{
		Backend:          types.BackendSQLite,
		SyncStrategy:     types.SyncImmediate,
		InitialPlacement: types.PlacementCentre.String(),
		LogLevel:         "warn",
		LogFormat:        "text",
	}
}

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first run. A missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, configFileExt), defaultConfig()); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}

	def := defaultConfig()
	v := viper.New()
	v.SetDefault(cfgKeyBackend, def.Backend)
	v.SetDefault(cfgKeySyncStrategy, def.SyncStrategy)
	v.SetDefault(cfgKeyPlacement, def.InitialPlacement)
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)
	v.SetDefault(cfgKeyLogFormat, def.LogFormat)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates path from cfg unless it already exists.
func writeConfigIfMissing(path string, cfg configFile) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append([]byte("# mosaic configuration\n"), data...), 0o644)
}

// storeConfig builds the store configuration from config.yaml.
func storeConfig(v *viper.Viper, dataDir string) types.Config {
	return types.Config{
		Backend: v.GetString(cfgKeyBackend),
		DataDir: dataDir,
		SQLiteConfig: &types.SQLiteConfig{
			SyncStrategy:  v.GetString(cfgKeySyncStrategy),
			BatchSize:     v.GetInt(cfgKeyBatchSize),
			BatchInterval: v.GetInt(cfgKeyBatchInterval),
		},
	}
}

// engineOptions maps config.yaml onto engine options.
func engineOptions(v *viper.Viper, logger *slog.Logger) ([]mosaic.Option, error) {
	placement, err := types.ParsePlacement(v.GetString(cfgKeyPlacement))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfgKeyPlacement, err)
	}
	opts := []mosaic.Option{mosaic.WithLogger(logger), mosaic.WithPlacement(placement)}
	if v.IsSet(cfgKeyRNGSeed) {
		opts = append(opts, mosaic.WithSeed(v.GetUint64(cfgKeyRNGSeed)))
	}
	return opts, nil
}

// newLogger builds the slog handler selected by log_level and log_format.
func newLogger(v *viper.Viper, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(cfgKeyLogLevel))); err != nil {
		return nil, fmt.Errorf("%s: %w", cfgKeyLogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(v.GetString(cfgKeyLogFormat)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("%s: unknown format %q (valid: text, json)", cfgKeyLogFormat, v.GetString(cfgKeyLogFormat))
}
