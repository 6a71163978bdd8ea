package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is where the audit database lives unless configured.
const DefaultPath = "./data/psd2attr.db"

// Database manages SQLite operations
type Database struct {
	path string
	db   *sql.DB
}

// New creates a new database instance for the SQLite file at path
func New(path string) *Database {
	if path == "" {
		path = DefaultPath
	}
	return &Database{path: path}
}

// Initialize opens the database and creates the tables
func (d *Database) Initialize() error {
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", d.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.db = db

	// Create tables
	if err := d.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	slog.Info("Database initialized", "path", d.path)
	return nil
}

// createTables creates all necessary tables
func (d *Database) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS attribute_lookups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL DEFAULT '',
			organization_identifier TEXT NOT NULL DEFAULT '',
			roles TEXT NOT NULL DEFAULT '[]',
			outcome TEXT NOT NULL,
			error_code TEXT NOT NULL DEFAULT '',
			valid_from DATETIME,
			valid_to DATETIME,
			source TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attribute_lookups_fingerprint ON attribute_lookups (fingerprint)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
