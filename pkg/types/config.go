package types

import "errors"

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend      string        `json:"backend" yaml:"backend"`
	DataDir      string        `json:"data_dir" yaml:"data_dir"`
	SQLiteConfig *SQLiteConfig `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
}

// SQLiteConfig controls when the SQLite backend writes its JSONL files.
// A nil *SQLiteConfig behaves like the zero value.
type SQLiteConfig struct {
	SyncStrategy  string `json:"sync_strategy" yaml:"sync_strategy"`
	BatchSize     int    `json:"batch_size" yaml:"batch_size"`
	BatchInterval int    `json:"batch_interval" yaml:"batch_interval"` // seconds
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Sync strategies for JSONL persistence.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
	SyncBatch     = "batch"
)

// Defaults applied when SQLiteConfig fields are unset.
const (
	DefaultBatchSize     = 100
	DefaultBatchInterval = 5
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.SQLiteConfig != nil {
		return c.SQLiteConfig.Validate()
	}
	return nil
}

// Validate checks the sync strategy and batch parameters.
func (s *SQLiteConfig) Validate() error {
	switch s.SyncStrategy {
	case "", SyncImmediate, SyncOnClose:
	case SyncBatch:
		if s.BatchSize < 0 {
			return ErrBatchSizeInvalid
		}
		if s.BatchInterval < 0 {
			return ErrBatchIntervalInvalid
		}
	default:
		return ErrSyncStrategyUnknown
	}
	return nil
}

// GetSyncStrategy returns the configured strategy, defaulting to immediate.
func (s *SQLiteConfig) GetSyncStrategy() string {
	if s == nil || s.SyncStrategy == "" {
		return SyncImmediate
	}
	return s.SyncStrategy
}

// GetBatchSize returns the batch size, defaulting to DefaultBatchSize.
func (s *SQLiteConfig) GetBatchSize() int {
	if s == nil || s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// GetBatchInterval returns the batch interval in seconds, defaulting to
// DefaultBatchInterval.
func (s *SQLiteConfig) GetBatchInterval() int {
	if s == nil || s.BatchInterval <= 0 {
		return DefaultBatchInterval
	}
	return s.BatchInterval
}
