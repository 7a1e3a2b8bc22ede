// ABOUTME: Standalone schema migration utility for the crmsync SQLite database
// ABOUTME: Applies or rolls back embedded migrations with optional backup and dry run

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/db"
)

func main() {
	dbPath := flag.String("db", config.DefaultDatabasePath(), "Path to database file")
	dryRun := flag.Bool("dry-run", false, "Show the current version without making changes")
	backup := flag.Bool("backup", true, "Create backup before migration")
	steps := flag.Int("steps", 1, "Number of migrations to roll back with 'down' (0 = all)")
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	if err := run(*dbPath, command, *dryRun, *backup, *steps); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(dbPath, command string, dryRun, createBackup bool, steps int) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) && command != "up" {
		return fmt.Errorf("database file does not exist: %s", dbPath)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	version, dirty, err := db.SchemaVersion(database)
	if err != nil {
		return err
	}
	log.Printf("Current schema version: %d (dirty=%v)", version, dirty)

	if command == "version" {
		return nil
	}
	if dryRun {
		log.Printf("[DRY RUN] Would run '%s'", command)
		return nil
	}

	if createBackup && version > 0 {
		backupPath, err := db.BackupFile(dbPath, time.Now())
		if err != nil {
			return err
		}
		log.Printf("Backup created: %s", backupPath)
	}

	switch command {
	case "up":
		err = db.Migrate(database)
	case "down":
		err = db.MigrateDown(database, steps)
	default:
		return fmt.Errorf("unknown command %q (use up, down or version)", command)
	}
	if err != nil {
		return err
	}

	version, _, err = db.SchemaVersion(database)
	if err != nil {
		return err
	}
	log.Printf("Schema now at version %d", version)
	return nil
}
