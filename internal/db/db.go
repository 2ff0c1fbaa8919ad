package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/sightline/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DBTX is satisfied by *sql.DB and *sql.Tx, so queries can run inside or
// outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Init initializes the SQLite database at baseDir/sightline.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.sightline.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "sightline.db")
	// Transactions take the write lock at BEGIN so read-then-write sequences
	// inside WithTx serialize instead of failing on lock upgrade.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
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
		CREATE TABLE IF NOT EXISTS signals (
		  project_id  TEXT NOT NULL,
		  entity_kind TEXT NOT NULL,
		  entity_id   TEXT NOT NULL,
		  key         TEXT NOT NULL,
		  value       REAL NOT NULL,
		  updated_at  INTEGER NOT NULL,
		  PRIMARY KEY (project_id, entity_kind, entity_id, key)
		);

		CREATE TABLE IF NOT EXISTS applicability (
		  project_id   TEXT NOT NULL,
		  pillar       TEXT NOT NULL,
		  status       TEXT NOT NULL,
		  reasons_json TEXT,
		  updated_at   INTEGER NOT NULL,
		  PRIMARY KEY (project_id, pillar)
		);

		CREATE TABLE IF NOT EXISTS members (
		  project_id TEXT NOT NULL,
		  user_id    TEXT NOT NULL,
		  role       TEXT NOT NULL,
		  updated_at INTEGER NOT NULL,
		  PRIMARY KEY (project_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS live_fields (
		  project_id  TEXT NOT NULL,
		  entity_kind TEXT NOT NULL,
		  entity_id   TEXT NOT NULL,
		  field_group TEXT NOT NULL,
		  value       TEXT NOT NULL,
		  updated_at  INTEGER NOT NULL,
		  PRIMARY KEY (project_id, entity_kind, entity_id, field_group)
		);

		CREATE TABLE IF NOT EXISTS drafts (
		  id                TEXT PRIMARY KEY,
		  project_id        TEXT NOT NULL,
		  entity_kind       TEXT NOT NULL,
		  entity_id         TEXT NOT NULL,
		  field_group       TEXT NOT NULL,
		  ai_work_key       TEXT,
		  raw_suggestion    TEXT NOT NULL,
		  final_suggestion  TEXT NOT NULL,
		  generated_with_ai INTEGER NOT NULL,
		  state             TEXT NOT NULL,
		  version           INTEGER NOT NULL,
		  created_at        INTEGER NOT NULL,
		  updated_at        INTEGER NOT NULL,
		  applied_at        INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_drafts_entity_field
		ON drafts(project_id, entity_kind, entity_id, field_group, created_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS approvals (
		  id            TEXT PRIMARY KEY,
		  draft_id      TEXT NOT NULL REFERENCES drafts(id),
		  draft_version INTEGER NOT NULL,
		  requested_by  TEXT NOT NULL,
		  status        TEXT NOT NULL,
		  decided_by    TEXT,
		  decided_at    INTEGER,
		  created_at    INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_one_pending
		ON approvals(draft_id)
		WHERE status = 'pending';

		CREATE TABLE IF NOT EXISTS scores (
		  project_id      TEXT NOT NULL,
		  entity_kind     TEXT NOT NULL,
		  entity_id       TEXT NOT NULL,
		  overall         INTEGER,
		  components_json TEXT NOT NULL,
		  computed_at     INTEGER NOT NULL,
		  PRIMARY KEY (project_id, entity_kind, entity_id)
		);

		CREATE TABLE IF NOT EXISTS fix_cache (
		  work_key     TEXT PRIMARY KEY,
		  result_json  TEXT NOT NULL,
		  generated_at INTEGER NOT NULL,
		  reuses       INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS ai_usage (
		  project_id TEXT NOT NULL,
		  day        TEXT NOT NULL,
		  count      INTEGER NOT NULL,
		  PRIMARY KEY (project_id, day)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

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

// WithTx runs fn in a transaction, committing on success.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
