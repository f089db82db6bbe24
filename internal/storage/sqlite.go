// Package storage provides SQLite persistence for pskwatch.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "pskwatch.db"

var (
	// ErrNotFound is returned when a row addressed by id or callsign does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCallsign is returned for empty callsigns.
	ErrInvalidCallsign = errors.New("invalid callsign")
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
}

// Initialize opens the database in dataDir and creates the schema.
func Initialize(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, DatabaseFile))
}

// Open opens the database at path and creates the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{DB: db}
	if err := d.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return d, nil
}

// NewDB wraps an existing connection without touching the schema.
func NewDB(db *sql.DB) *DB {
	return &DB{DB: db}
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS monitored_callsigns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			callsign TEXT NOT NULL UNIQUE,
			active INTEGER NOT NULL DEFAULT 1,
			snr_threshold INTEGER,
			distance_threshold INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_monitored_callsigns_active ON monitored_callsigns(active)`,

		`CREATE TABLE IF NOT EXISTS reception_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tx_callsign TEXT NOT NULL,
			rx_callsign TEXT NOT NULL,
			frequency INTEGER NOT NULL,
			snr INTEGER,
			mode TEXT,
			tx_locator TEXT,
			rx_locator TEXT,
			tx_latitude REAL,
			tx_longitude REAL,
			rx_latitude REAL,
			rx_longitude REAL,
			distance INTEGER,
			decoder_software TEXT,
			timestamp DATETIME NOT NULL,
			alert_sent INTEGER NOT NULL DEFAULT 0,
			received_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reception_reports_tx ON reception_reports(tx_callsign)`,
		`CREATE INDEX IF NOT EXISTS idx_reception_reports_rx ON reception_reports(rx_callsign)`,
		`CREATE INDEX IF NOT EXISTS idx_reception_reports_timestamp ON reception_reports(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_reception_reports_pending ON reception_reports(alert_sent, tx_callsign)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
