package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/loam/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/loam.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.loam.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create the archive index segment directory
	if err := os.MkdirAll(IndexDir(baseDir), 0700); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	_ = os.Chmod(IndexDir(baseDir), 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "loam.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// IndexDir returns the directory holding archive index segment files.
func IndexDir(baseDir string) string {
	return filepath.Join(baseDir, "index")
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS files (
		  path         TEXT PRIMARY KEY,
		  content      TEXT NOT NULL,
		  content_hash TEXT NOT NULL,
		  mode         TEXT NOT NULL CHECK (mode IN ('minimal', 'professional', 'research')),
		  tags_json    TEXT,
		  session_id   TEXT,
		  score        REAL NOT NULL,
		  state        TEXT NOT NULL CHECK (state IN ('active', 'aging', 'archive_eligible')),
		  retain_days  INTEGER NOT NULL DEFAULT 0,
		  created_at   INTEGER NOT NULL,
		  accessed_at  INTEGER NOT NULL,
		  modified_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_files_state_accessed
		ON files(state, accessed_at);

		CREATE INDEX IF NOT EXISTS idx_files_session
		ON files(session_id)
		WHERE session_id IS NOT NULL;

		CREATE TABLE IF NOT EXISTS archive_records (
		  id           TEXT PRIMARY KEY,
		  path         TEXT NOT NULL,
		  content      TEXT NOT NULL,
		  content_hash TEXT NOT NULL,
		  tags_json    TEXT,
		  category     TEXT NOT NULL,
		  score        REAL NOT NULL,
		  archived_at  INTEGER NOT NULL,
		  indexed_at   INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_archive_archived_at
		ON archive_records(archived_at);

		CREATE TABLE IF NOT EXISTS archive_purges (
		  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		  archive_id   TEXT NOT NULL,
		  path         TEXT NOT NULL,
		  content_hash TEXT NOT NULL,
		  reason       TEXT NOT NULL,
		  purged_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS merge_log (
		  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		  destination  TEXT NOT NULL,
		  sources_json TEXT NOT NULL,
		  kind         TEXT NOT NULL,
		  confidence   REAL NOT NULL,
		  merged_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
		  seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		  session_id       TEXT NOT NULL UNIQUE,
		  files_json       TEXT NOT NULL,
		  outcome          TEXT NOT NULL,
		  duration_minutes INTEGER NOT NULL,
		  recorded_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS insights (
		  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		  generation   TEXT NOT NULL,
		  kind         TEXT NOT NULL,
		  value_json   TEXT NOT NULL,
		  samples      INTEGER NOT NULL,
		  confidence   REAL NOT NULL,
		  generated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_insights_generation
		ON insights(generation);

		CREATE TABLE IF NOT EXISTS index_state (
		  archive_id TEXT PRIMARY KEY,
		  segment    TEXT NOT NULL,
		  indexed_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_index_state_segment
		ON index_state(segment);

		CREATE TABLE IF NOT EXISTS index_retry (
		  archive_id      TEXT PRIMARY KEY,
		  attempts        INTEGER NOT NULL DEFAULT 0,
		  next_attempt_at INTEGER NOT NULL,
		  last_error      TEXT
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
