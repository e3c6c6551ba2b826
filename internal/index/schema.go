// Package index keeps the label history of a dataset in SQLite: every
// committed change, a mirror of the last saved table for label lookups, and
// the saves themselves.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS label_changes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL DEFAULT '',
	row_index   INTEGER NOT NULL,
	folder_path TEXT NOT NULL,
	image_id    TEXT NOT NULL,
	old_class   TEXT NOT NULL DEFAULT '',
	new_class   TEXT NOT NULL DEFAULT '',
	changed_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS images (
	folder_path TEXT NOT NULL,
	image_id    TEXT NOT NULL,
	class       TEXT NOT NULL DEFAULT 'unset',
	position    INTEGER NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (folder_path, image_id)
);

CREATE TABLE IF NOT EXISTS saves (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	checksum TEXT NOT NULL,
	rows     INTEGER NOT NULL,
	saved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_changes_image ON label_changes(folder_path, image_id);
CREATE INDEX IF NOT EXISTS idx_images_class ON images(class);
`

// DB wraps a sql.DB with history-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
