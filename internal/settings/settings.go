// Package settings persists user preferences in SQLite: the Steam root,
// per-container overlay configurations, and the status colour palette.
package settings

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS overlay_configs (
	container_id TEXT PRIMARY KEY,
	config       TEXT NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS status_colors (
	label TEXT PRIMARY KEY,
	color TEXT NOT NULL
);
`

// Setting keys.
const (
	keyRootPath      = "root_path"
	keyPaletteSeeded = "palette_seeded"
)

// DB wraps a sql.DB with settings-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database, applies the schema, and seeds
// the default palette the first time.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("settings: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("settings: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("settings: apply schema: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.seedPalette(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) get(key string) (string, bool, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return v, true, nil
}

func (db *DB) set(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// RootPath returns the saved Steam root, or "" when none was saved.
func (db *DB) RootPath() (string, error) {
	v, _, err := db.get(keyRootPath)
	return v, err
}

// SetRootPath saves the Steam root. An empty path clears it.
func (db *DB) SetRootPath(path string) error {
	if path == "" {
		if _, err := db.conn.Exec(`DELETE FROM settings WHERE key = ?`, keyRootPath); err != nil {
			return fmt.Errorf("settings: clear root: %w", err)
		}
		return nil
	}
	return db.set(keyRootPath, path)
}
