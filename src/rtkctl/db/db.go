// Package db records run history in a file-backed SQLite database so past
// builds, deploys and verifications can be listed later.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bitswalk/rtk/src/common/paths"
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection
type Database struct {
	db *sql.DB
}

// Config holds the database configuration
type Config struct {
	// Path is the SQLite database file
	Path string
}

// DefaultConfig returns the default database configuration
func DefaultConfig() Config {
	return Config{
		Path: "~/.rtk/rtk.db",
	}
}

// New opens (creating if needed) the run history database
func New(cfg Config) (*Database, error) {
	path := paths.Expand(cfg.Path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	database := &Database{db: db}
	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return database, nil
}

// initSchema creates the database tables
func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		kernel_version TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		artifact_count INTEGER DEFAULT 0,
		error_message TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// DB returns the underlying sql.DB
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
