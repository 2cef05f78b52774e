package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"raw-organizer/internal/logging"
	"raw-organizer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// DefaultFileName is the ledger file created in the output directory.
const DefaultFileName = "runs.db"

// schemaVersion is stored in the metadata table and bumped with every
// migration added to runMigrations.
const schemaVersion = "2"

// Database is the run ledger: every organize run and the tags it assigned.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (creating if needed) the ledger at dbPath.
// dbPath is the full path to the database FILE; its parent directory must
// already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Debug("Run ledger path: %s", dbPath)

	// Diagnose potential permission issues
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Run ledger permission diagnostics: %v", err)
	}

	// busy_timeout keeps a concurrent rawtags query from failing while a run
	// is being recorded.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return d, nil
}

// Path returns the ledger file path.
func (d *Database) Path() string {
	return d.dbPath
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- One row per organize run
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		images INTEGER NOT NULL DEFAULT 0,
		thumbnails INTEGER NOT NULL DEFAULT 0,
		cache_hits INTEGER NOT NULL DEFAULT 0,
		embeddings INTEGER NOT NULL DEFAULT 0,
		dimension INTEGER NOT NULL DEFAULT 0,
		fine_clusters INTEGER NOT NULL DEFAULT 0,
		coarse_clusters INTEGER NOT NULL DEFAULT 0,
		sidecars_updated INTEGER NOT NULL DEFAULT 0,
		sidecars_planned INTEGER NOT NULL DEFAULT 0,
		sidecars_failed INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root_started ON runs(root, started_at);

	-- Tags assigned to each image identity by a run
	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		identity TEXT NOT NULL,
		granularity TEXT NOT NULL,
		tag TEXT NOT NULL,
		keyword TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
		UNIQUE(run_id, identity, tag)
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_run_identity ON assignments(run_id, identity);
	CREATE INDEX IF NOT EXISTS idx_assignments_run_tag ON assignments(run_id, tag);
	CREATE INDEX IF NOT EXISTS idx_assignments_run_keyword ON assignments(run_id, keyword);

	-- Metadata table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: ledgers written before cache hits were tracked lack the
	// cache_hits column.
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('runs')
		WHERE name='cache_hits'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for cache_hits column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating run ledger: adding cache_hits column to runs table")
		if _, err := d.db.ExecContext(ctx, `
			ALTER TABLE runs ADD COLUMN cache_hits INTEGER NOT NULL DEFAULT 0
		`); err != nil {
			return fmt.Errorf("failed to add cache_hits column: %w", err)
		}
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, schemaVersion)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// beginBatch starts a transaction. The returned start time is handed back
// to endBatch for the transaction duration metric.
func (d *Database) beginBatch(ctx context.Context) (*sql.Tx, time.Time, error) {
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	return tx, start, err
}

// endBatch commits or rolls back a transaction.
func (d *Database) endBatch(tx *sql.Tx, start time.Time, err error) error {
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// LedgerStats reports row counts and connection usage for the metrics
// collector.
func (d *Database) LedgerStats() metrics.Stats {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	err = d.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM runs), (SELECT COUNT(*) FROM assignments)
	`).Scan(&stats.Runs, &stats.Assignments)
	if err != nil {
		logging.Warn("failed to collect ledger stats: %v", err)
	}
	stats.OpenConnections = d.db.Stats().OpenConnections
	return stats
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Run ledger directory: %s (mode: %v)", dir, dirInfo.Mode())

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("%s exists (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only (mode: %v); writes will fail", p, info.Mode())
		if p == dbPath {
			continue
		}
		// WAL and SHM files left read-only by another user can be fixed.
		if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
			logging.Error("Failed to fix %s permissions: %v", p, chmodErr)
		} else {
			logging.Info("Fixed %s permissions", p)
		}
	}

	return nil
}
