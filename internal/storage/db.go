package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/runger/camflow/internal/config"
)

const (
	// walCheckpointInterval is how often we checkpoint the WAL file
	// to prevent unbounded growth during long-running sessions.
	walCheckpointInterval = 5 * time.Minute
)

// Supported database dialects.
const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// timeLayout is a fixed-width UTC timestamp format. Fixed width keeps
// text comparison in SQL aligned with chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// SQLStore implements the Store interface over SQLite (default) or
// PostgreSQL, selected by the database URL scheme.
type SQLStore struct {
	db        *sql.DB
	dialect   string
	stopCh    chan struct{} // signals background goroutines to stop
	stoppedCh chan struct{} // signals background goroutines have stopped
	closeOnce sync.Once     // ensures Close() is idempotent
	closeErr  error         // stores the error from Close()
}

// DefaultDBPath returns the database path used when no database URL
// is configured.
func DefaultDBPath() (string, error) {
	return config.DefaultPaths().DatabaseFile(), nil
}

// Open connects to the database named by databaseURL and migrates the
// schema. URLs starting with postgres:// or postgresql:// select the
// PostgreSQL backend; anything else is treated as a SQLite path (an
// optional sqlite:// prefix is stripped, empty selects the default
// path). SQLite is opened with WAL mode for better concurrency.
func Open(databaseURL string) (*SQLStore, error) {
	if hasPrefix(databaseURL, "postgres://") || hasPrefix(databaseURL, "postgresql://") {
		return openPostgres(databaseURL)
	}

	path := databaseURL
	if hasPrefix(path, "sqlite://") {
		path = path[len("sqlite://"):]
	}
	return openSQLite(path)
}

func openSQLite(dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		var err error
		dbPath, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pragmas in DSN
	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1) // SQLite handles concurrency better with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Don't close connections

	// Ping to establish connection and ensure pragmas are applied
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLStore{
		db:        db,
		dialect:   dialectSQLite,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	// Run migrations
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Start background WAL checkpointing
	go store.walCheckpointLoop()

	return store, nil
}

func openPostgres(databaseURL string) (*SQLStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLStore{
		db:      db,
		dialect: dialectPostgres,
	}

	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
// It is safe to call Close multiple times.
func (s *SQLStore) Close() error {
	s.closeOnce.Do(func() {
		// Stop the background checkpoint goroutine (SQLite only)
		if s.stopCh != nil {
			close(s.stopCh)
			<-s.stoppedCh // wait for goroutine to finish
		}

		if s.db != nil {
			if s.dialect == dialectSQLite {
				// Final checkpoint before closing to merge WAL into main db
				_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			}
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

// DB returns the underlying database connection for advanced use cases.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// walCheckpointLoop periodically checkpoints the WAL file to prevent
// unbounded growth during long-running sessions.
func (s *SQLStore) walCheckpointLoop() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// TRUNCATE mode: checkpoint and truncate WAL to zero size
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				log.Printf("WAL checkpoint failed: %v", err)
			}
		}
	}
}

// rebind rewrites ? placeholders to the $N form PostgreSQL expects.
// SQLite queries pass through unchanged.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, '$')
			out = strconv.AppendInt(out, int64(n), 10)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLStore) SchemaVersion(ctx context.Context) (int, error) {
	version := 0
	row := s.db.QueryRowContext(ctx, `
		SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1
	`)
	if err := row.Scan(&version); err != nil {
		if err == sql.ErrNoRows || isTableNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// migrate runs database migrations to ensure the schema is up to date.
func (s *SQLStore) migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	// Run migrations in order
	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql:     s.pickSQL(migrationV1SQLite, migrationV1Postgres),
		},
		{
			version: 2,
			sql:     s.pickSQL(migrationV2SQLite, migrationV2Postgres),
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}

		// Record migration
		_, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO schema_meta (version, applied_at_unix_ms)
			VALUES (?, ?)
			ON CONFLICT (version) DO UPDATE SET applied_at_unix_ms = excluded.applied_at_unix_ms
		`), m.version, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (s *SQLStore) pickSQL(sqlite, postgres string) string {
	if s.dialect == dialectPostgres {
		return postgres
	}
	return sqlite
}

// isTableNotFoundError checks if the error indicates a missing table.
func isTableNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return contains(errStr, "no such table") || contains(errStr, "does not exist")
}

// isDuplicateKeyError checks if the error indicates a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return contains(errStr, "UNIQUE constraint failed") ||
		contains(errStr, "duplicate key") ||
		contains(errStr, "already exists")
}

// isForeignKeyError checks if the error indicates a foreign key violation.
func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return contains(errStr, "FOREIGN KEY constraint failed") ||
		contains(errStr, "foreign key constraint")
}

// contains is a simple string contains check to avoid importing strings.
func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// hasPrefix reports whether s starts with prefix.
func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// migrationV1SQLite creates the initial schema.
const migrationV1SQLite = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_meta (
  version INTEGER PRIMARY KEY,
  applied_at_unix_ms INTEGER NOT NULL
);

-- Camera registry
CREATE TABLE IF NOT EXISTS traffic_cameras (
  camera_id TEXT PRIMARY KEY,
  location TEXT NOT NULL DEFAULT '',
  latitude REAL,
  longitude REAL,
  notes TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);

-- Pipeline runs
CREATE TABLE IF NOT EXISTS pipeline_runs (
  run_id TEXT PRIMARY KEY,
  camera_id TEXT NOT NULL REFERENCES traffic_cameras(camera_id),
  source TEXT NOT NULL,
  config_hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'running',
  started_at TEXT NOT NULL,
  ended_at TEXT,
  error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_lineage ON pipeline_runs(camera_id, source, config_hash, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);

-- Per-class vehicle counts, one row per (run, bucket, class)
CREATE TABLE IF NOT EXISTS vehicle_counts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
  camera_id TEXT NOT NULL,
  bucket_ts TEXT NOT NULL,
  vehicle_type TEXT NOT NULL,
  count INTEGER NOT NULL DEFAULT 0,
  source TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  UNIQUE (run_id, bucket_ts, vehicle_type)
);

CREATE INDEX IF NOT EXISTS idx_vehicle_counts_camera_ts ON vehicle_counts(camera_id, bucket_ts);

-- Congestion per bucket
CREATE TABLE IF NOT EXISTS traffic_density (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
  camera_id TEXT NOT NULL,
  bucket_ts TEXT NOT NULL,
  total_vehicles INTEGER NOT NULL DEFAULT 0,
  density_score REAL NOT NULL DEFAULT 0,
  density_level TEXT NOT NULL DEFAULT 'low',
  bbox_occupancy REAL,
  source TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  UNIQUE (run_id, bucket_ts)
);

CREATE INDEX IF NOT EXISTS idx_traffic_density_camera_ts ON traffic_density(camera_id, bucket_ts);

-- CO2 estimates per bucket
CREATE TABLE IF NOT EXISTS emission_estimates (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
  camera_id TEXT NOT NULL,
  bucket_ts TEXT NOT NULL,
  estimated_co2_kg REAL NOT NULL DEFAULT 0,
  co2_low_kg REAL NOT NULL DEFAULT 0,
  co2_high_kg REAL NOT NULL DEFAULT 0,
  source TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  UNIQUE (run_id, bucket_ts)
);

CREATE INDEX IF NOT EXISTS idx_emission_estimates_camera_ts ON emission_estimates(camera_id, bucket_ts);

-- Resume checkpoints, one per run
CREATE TABLE IF NOT EXISTS processing_checkpoints (
  run_id TEXT PRIMARY KEY REFERENCES pipeline_runs(run_id),
  bucket_index INTEGER NOT NULL,
  last_bucket_ts TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`

// migrationV2SQLite adds video metadata captured when a run opens its source.
const migrationV2SQLite = `
ALTER TABLE pipeline_runs ADD COLUMN video_fps REAL;
ALTER TABLE pipeline_runs ADD COLUMN frame_count INTEGER;
ALTER TABLE pipeline_runs ADD COLUMN frame_width INTEGER;
ALTER TABLE pipeline_runs ADD COLUMN frame_height INTEGER;
`

// migrationV1Postgres mirrors migrationV1SQLite for PostgreSQL.
const migrationV1Postgres = `
CREATE TABLE IF NOT EXISTS schema_meta (
  version INTEGER PRIMARY KEY,
  applied_at_unix_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS traffic_cameras (
  camera_id TEXT PRIMARY KEY,
  location TEXT NOT NULL DEFAULT '',
  latitude DOUBLE PRECISION,
  longitude DOUBLE PRECISION,
  notes TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
  run_id TEXT PRIMARY KEY,
  camera_id TEXT NOT NULL REFERENCES traffic_cameras(camera_id),
  source TEXT NOT NULL,
  config_hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'running',
  started_at TEXT NOT NULL,
  ended_at TEXT,
  error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_lineage ON pipeline_runs(camera_id, source, config_hash, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);

CREATE TABLE IF NOT EXISTS vehicle_counts (
  id BIGSERIAL PRIMARY KEY,
  run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
  camera_id TEXT NOT NULL,
  bucket_ts TEXT NOT NULL,
  vehicle_type TEXT NOT NULL,
  count INTEGER NOT NULL DEFAULT 0,
  source TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  UNIQUE (run_id, bucket_ts, vehicle_type)
);

CREATE INDEX IF NOT EXISTS idx_vehicle_counts_camera_ts ON vehicle_counts(camera_id, bucket_ts);

CREATE TABLE IF NOT EXISTS traffic_density (
  id BIGSERIAL PRIMARY KEY,
  run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
  camera_id TEXT NOT NULL,
  bucket_ts TEXT NOT NULL,
  total_vehicles INTEGER NOT NULL DEFAULT 0,
  density_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  density_level TEXT NOT NULL DEFAULT 'low',
  bbox_occupancy DOUBLE PRECISION,
  source TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  UNIQUE (run_id, bucket_ts)
);

CREATE INDEX IF NOT EXISTS idx_traffic_density_camera_ts ON traffic_density(camera_id, bucket_ts);

CREATE TABLE IF NOT EXISTS emission_estimates (
  id BIGSERIAL PRIMARY KEY,
  run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
  camera_id TEXT NOT NULL,
  bucket_ts TEXT NOT NULL,
  estimated_co2_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
  co2_low_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
  co2_high_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
  source TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  UNIQUE (run_id, bucket_ts)
);

CREATE INDEX IF NOT EXISTS idx_emission_estimates_camera_ts ON emission_estimates(camera_id, bucket_ts);

CREATE TABLE IF NOT EXISTS processing_checkpoints (
  run_id TEXT PRIMARY KEY REFERENCES pipeline_runs(run_id),
  bucket_index INTEGER NOT NULL,
  last_bucket_ts TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`

// migrationV2Postgres mirrors migrationV2SQLite for PostgreSQL.
const migrationV2Postgres = `
ALTER TABLE pipeline_runs ADD COLUMN IF NOT EXISTS video_fps DOUBLE PRECISION;
ALTER TABLE pipeline_runs ADD COLUMN IF NOT EXISTS frame_count INTEGER;
ALTER TABLE pipeline_runs ADD COLUMN IF NOT EXISTS frame_width INTEGER;
ALTER TABLE pipeline_runs ADD COLUMN IF NOT EXISTS frame_height INTEGER;
`
