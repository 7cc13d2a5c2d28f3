package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/mscrnt/dimmctl/pkg/driver"
)

// DB wraps the SQL database connection
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database
func Open(path string) (*DB, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate creates or updates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device TEXT NOT NULL,
		bus TEXT NOT NULL,
		address INTEGER NOT NULL,
		label TEXT NOT NULL,
		value REAL NOT NULL,
		unit TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_device ON readings(device);
	CREATE INDEX IF NOT EXISTS idx_readings_recorded_at ON readings(recorded_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// RecordStatus stores the status reported by dev at the given time, in a
// single transaction
func (db *DB) RecordStatus(dev driver.Device, status []driver.Status, at time.Time) error {
	if len(status) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Only rollback if we haven't committed
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(
		`INSERT INTO readings (device, bus, address, label, value, unit, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	at = at.UTC()
	for _, s := range status {
		_, err := stmt.Exec(dev.Description(), dev.Bus().Name(), int(dev.Address()), s.Label, s.Value, s.Unit, at)
		if err != nil {
			return fmt.Errorf("failed to insert reading %s: %w", s.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListReadings retrieves readings based on filters, newest first
func (db *DB) ListReadings(filter ReadingFilter) ([]*Reading, error) {
	query := `SELECT id, device, bus, address, label, value, unit, recorded_at
	          FROM readings WHERE 1=1`
	args := []interface{}{}

	if filter.Device != "" {
		query += " AND device = ?"
		args = append(args, filter.Device)
	}

	if filter.Bus != "" {
		query += " AND bus = ?"
		args = append(args, filter.Bus)
	}

	if filter.Label != "" {
		query += " AND label = ?"
		args = append(args, filter.Label)
	}

	if filter.Since != nil {
		query += " AND recorded_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	if filter.Until != nil {
		query += " AND recorded_at <= ?"
		args = append(args, filter.Until.UTC())
	}

	query += " ORDER BY recorded_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var readings []*Reading
	for rows.Next() {
		r := &Reading{}
		err := rows.Scan(
			&r.ID, &r.Device, &r.Bus, &r.Address,
			&r.Label, &r.Value, &r.Unit, &r.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// Prune deletes readings recorded before the given time and returns how
// many were removed
func (db *DB) Prune(before time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM readings WHERE recorded_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune readings: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned readings: %w", err)
	}
	return n, nil
}
