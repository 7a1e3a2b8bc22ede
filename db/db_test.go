package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer db.Close()

	// Verify database file exists
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	// contacts, contact_links, sync_state, sync_runs, schema_migrations
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count < 5 {
		t.Errorf("Expected at least 5 tables, got %d", count)
	}

	// Verify WAL mode
	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected WAL mode, got %s", mode)
	}
}

func TestOpenDatabaseInvalidPath(t *testing.T) {
	dbPath := "/invalid/nonexistent/path/that/cannot/be/created/test.db"

	_, err := OpenDatabase(dbPath)
	if err == nil {
		t.Errorf("Expected error for invalid path, but OpenDatabase succeeded")
	}
}

func TestOpenDatabaseReopenKeepsMigrations(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("Initial OpenDatabase failed: %v", err)
	}
	db.Close()

	// Second open finds the schema current and must not fail with ErrNoChange
	db, err = OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase should handle an up-to-date schema, but got error: %v", err)
	}
	defer db.Close()

	var version int
	var dirty bool
	if err := db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty); err != nil {
		t.Fatalf("Failed to read migration version: %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("Expected clean version 3, got %d (dirty=%v)", version, dirty)
	}
}

func TestSchemaVersionAndRollback(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	version, dirty, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("Expected fresh database at version 0, got %d (dirty=%v)", version, dirty)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if err := MigrateDown(db, 2); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err = SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1 after two steps down, got %d", version)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sync_runs'").Scan(&count); err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count != 0 {
		t.Error("sync_runs should be dropped after rolling back")
	}
}

func TestBackupFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := os.WriteFile(dbPath, []byte("data"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	backupPath, err := BackupFile(dbPath, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BackupFile failed: %v", err)
	}
	if backupPath != dbPath+".backup.20240501-120000" {
		t.Errorf("Unexpected backup path %s", backupPath)
	}

	content, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != "data" {
		t.Errorf("Backup content mismatch: %q", content)
	}
}
