// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationScript is one embedded migration. Migrations are compiled into the
// binary because the core ships as a shared library on mobile, where a
// migrations directory on disk is not available.
type migrationScript struct {
	version     int
	description string
	sql         string
}

// migrations lists all schema migrations in order. Never edit an entry after
// release; append a new version instead (checksums are verified on startup).
var migrations = []migrationScript{
	{
		version:     1,
		description: "sync queue and documents",
		sql: `
		CREATE TABLE IF NOT EXISTS sync_queue (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			operation TEXT NOT NULL CHECK(operation IN ('insert', 'update', 'delete')),
			data TEXT NOT NULL,
			enqueued_at INTEGER NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0 CHECK(retry_count >= 0),
			last_error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sync_queue_enqueued_at ON sync_queue(enqueued_at);

		CREATE TABLE IF NOT EXISTS documents (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	},
	{
		version:     2,
		description: "workout tables",
		sql: `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			notes TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS session_exercises (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			exercise_id TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			notes TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_session_exercises_session ON session_exercises(session_id);

		CREATE TABLE IF NOT EXISTS exercise_sets (
			id TEXT PRIMARY KEY,
			session_exercise_id TEXT NOT NULL REFERENCES session_exercises(id) ON DELETE CASCADE,
			set_number INTEGER NOT NULL,
			reps INTEGER NOT NULL,
			weight_kg REAL NOT NULL DEFAULT 0,
			rpe REAL,
			completed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_exercise_sets_exercise ON exercise_sets(session_exercise_id);

		CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			plan TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations. Already-applied migrations have their
// checksums verified against the embedded scripts.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedByVersion := make(map[int]Migration)
	for _, mig := range applied {
		appliedByVersion[mig.Version] = mig
	}

	for _, script := range migrations {
		sum := checksum(script.sql)

		if prev, ok := appliedByVersion[script.version]; ok {
			if prev.Checksum != sum {
				return fmt.Errorf("migration V%d checksum mismatch: applied %s, embedded %s",
					script.version, prev.Checksum, sum)
			}
			continue
		}

		if err := m.apply(script, sum); err != nil {
			return fmt.Errorf("failed to apply migration V%d (%s): %w",
				script.version, script.description, err)
		}
	}

	return nil
}

// apply runs one migration script and records it in a single transaction.
func (m *Migrator) apply(script migrationScript, sum string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script.sql); err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		script.version, time.Now().Unix(), script.description, sum,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// checksum computes the SHA-256 hex digest of a migration script.
func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
