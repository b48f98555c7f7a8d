package db

import (
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// TestMigratorUp verifies all embedded migrations apply on a fresh database.
func TestMigratorUp(t *testing.T) {
	database := openTestDB(t)
	migrator := NewMigrator(database.DB)

	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("Expected version %d, got %d", len(migrations), version)
	}

	// The migrated schema must accept queue writes.
	_, err = database.Exec(
		"INSERT INTO sync_queue (id, type, operation, data, enqueued_at) VALUES ('x', 'session', 'insert', '{}', 1)")
	if err != nil {
		t.Errorf("sync_queue insert failed after migration: %v", err)
	}
}

// TestMigratorUpIsIdempotent verifies a second Up is a no-op.
func TestMigratorUpIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	migrator := NewMigrator(database.DB)

	if err := migrator.Up(); err != nil {
		t.Fatalf("First Up failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Second Up failed: %v", err)
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("Expected %d applied migrations, got %d", len(migrations), len(applied))
	}
	for i, mig := range applied {
		if mig.Version != i+1 {
			t.Errorf("Migration %d: expected version %d, got %d", i, i+1, mig.Version)
		}
		if len(mig.Checksum) != 64 {
			t.Errorf("Migration %d: expected sha256 hex checksum, got %q", i, mig.Checksum)
		}
	}
}

// TestMigratorDetectsTamperedScript verifies a checksum mismatch aborts
// startup instead of silently re-running altered DDL.
func TestMigratorDetectsTamperedScript(t *testing.T) {
	database := openTestDB(t)
	migrator := NewMigrator(database.DB)

	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	_, err := database.Exec("UPDATE schema_migrations SET checksum = ? WHERE version = 1",
		"0000000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("Failed to tamper checksum: %v", err)
	}

	if err := migrator.Up(); err == nil {
		t.Errorf("Expected checksum mismatch error")
	}
}

// TestMigratorSchemaOperationCheck verifies the operation CHECK constraint.
func TestMigratorSchemaOperationCheck(t *testing.T) {
	database := openTestDB(t)
	if err := NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	_, err := database.Exec(
		"INSERT INTO sync_queue (id, type, operation, data, enqueued_at) VALUES ('x', 'session', 'upsert', '{}', 1)")
	if err == nil {
		t.Errorf("Expected CHECK violation for unknown operation")
	}
}
