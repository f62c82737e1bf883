// Package sqlite implements the SQLite storage backend for mosaic canvases.
// SQLite is the query engine; the JSONL files in the data directory are the
// source of truth and are reloaded on every Attach.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/mosaic/pkg/types"
)

// dbFileName is the SQLite file created inside DataDir.
const dbFileName = "mosaic.db"

// Backend implements types.Store using SQLite as the query engine and JSONL
// files as the source of truth.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	tables   map[string]types.Table

	syncStrategy  string         // effective sync strategy: immediate, on_close, batch
	batchSize     int            // number of writes before batch flush
	batchInterval time.Duration  // time between batch flushes
	pendingWrites []pendingWrite // queue of writes pending JSONL persist
	batchTimer    *time.Timer    // timer for interval-based batch flush
	batchMu       sync.Mutex     // protects pendingWrites and batchTimer

	writesSinceFlush int // mutations recorded since the last flush
}

// pendingWrite represents a deferred JSONL write operation.
type pendingWrite struct {
	tableName string       // canvases, cells or edits
	persist   func() error // rewrites the table's JSONL file from SQLite
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{
		tables: make(map[string]types.Table),
	}
}

// GetTable returns the accessor for the named table.
// Returns ErrTableNotFound if the table name is not recognized and
// ErrStoreDetached if the backend is not attached.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	table, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return table, nil
}

// Attach initializes the backend with the given configuration.
// Creates DataDir if it does not exist, builds a fresh SQLite schema, and
// loads the JSONL files into it.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	if config.DataDir == "" {
		config.DataDir = "."
	}
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// The database is a cache of the JSONL files and is rebuilt on attach.
	dbPath := filepath.Join(config.DataDir, dbFileName)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// A single connection keeps transactions and pragmas on one SQLite handle.
	db.SetMaxOpenConns(1)

	for _, stmt := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if err := initJSONLFiles(config.DataDir); err != nil {
		db.Close()
		return err
	}

	if err := loadAllJSONL(db, config.DataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.config = config

	b.syncStrategy = config.SQLiteConfig.GetSyncStrategy()
	b.batchSize = config.SQLiteConfig.GetBatchSize()
	b.batchInterval = time.Duration(config.SQLiteConfig.GetBatchInterval()) * time.Second
	b.pendingWrites = nil

	if b.syncStrategy == types.SyncBatch && b.batchInterval > 0 {
		b.startBatchTimer()
	}

	b.attached = true

	b.tables[types.TableCanvases] = &canvasesTable{backend: b}
	b.tables[types.TableCells] = &cellsTable{backend: b}
	b.tables[types.TableEdits] = &editsTable{backend: b}

	return nil
}

// Detach releases all resources held by the backend.
// Pending JSONL writes are flushed before the connection closes. After
// Detach, all operations return ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.stopBatchTimer()

	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.tables = make(map[string]types.Table)

	return nil
}

// Flush writes every pending JSONL update now, regardless of strategy.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	return b.flushPendingWritesLocked()
}

// checkAttached returns ErrStoreDetached once Detach has run. The caller must
// hold b.mu.
func (b *Backend) checkAttached() error {
	if !b.attached || b.db == nil {
		return types.ErrStoreDetached
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapConstraintErr converts unique-index failures into ErrDuplicate.
func mapConstraintErr(err error, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, types.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// shouldPersistImmediately returns true if JSONL writes should happen immediately.
func (b *Backend) shouldPersistImmediately() bool {
	return b.syncStrategy == types.SyncImmediate || b.syncStrategy == ""
}

// persist runs fn now under the immediate strategy and queues fullRewrite
// otherwise. The caller must hold b.mu.
func (b *Backend) persist(tableName string, fn, fullRewrite func() error) error {
	if b.shouldPersistImmediately() {
		return fn()
	}
	return b.queueWrite(tableName, fullRewrite)
}

// queueWrite adds a full-table rewrite to the pending queue. A table already
// queued is not queued again since the rewrite reads SQLite at flush time.
// For the batch strategy the queue is flushed once it reaches batchSize.
// The caller must hold b.mu.
func (b *Backend) queueWrite(tableName string, persist func() error) error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	queued := false
	for _, pw := range b.pendingWrites {
		if pw.tableName == tableName {
			queued = true
			break
		}
	}
	if !queued {
		b.pendingWrites = append(b.pendingWrites, pendingWrite{
			tableName: tableName,
			persist:   persist,
		})
	}

	if b.syncStrategy == types.SyncBatch && b.batchSize > 0 {
		b.writesSinceFlush++
		if b.writesSinceFlush >= b.batchSize {
			return b.flushPendingWritesBatchLocked()
		}
	}
	return nil
}

// flushPendingWritesLocked flushes all pending writes to JSONL files.
// The caller must hold b.mu write lock.
func (b *Backend) flushPendingWritesLocked() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	return b.flushPendingWritesBatchLocked()
}

// flushPendingWritesBatchLocked executes all pending writes.
// The caller must hold b.batchMu.
func (b *Backend) flushPendingWritesBatchLocked() error {
	b.writesSinceFlush = 0
	if len(b.pendingWrites) == 0 {
		return nil
	}

	for i, pw := range b.pendingWrites {
		if err := pw.persist(); err != nil {
			// Keep the failed write and everything after it for the next flush.
			b.pendingWrites = b.pendingWrites[i:]
			return fmt.Errorf("flush %s: %w", pw.tableName, err)
		}
	}

	b.pendingWrites = nil
	return nil
}

// startBatchTimer starts the batch interval timer for periodic flushes.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}

	b.batchTimer = time.AfterFunc(b.batchInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.attached {
			return
		}

		_ = b.flushPendingWritesLocked()

		b.batchMu.Lock()
		if b.batchTimer != nil && b.attached {
			b.batchTimer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
}

// stopBatchTimer stops the batch interval timer if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}
