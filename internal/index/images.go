package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

const defaultFindLimit = 100

// SaveRecord describes one persisted version of the dataset file.
type SaveRecord struct {
	Checksum string    `json:"checksum"`
	Rows     int       `json:"rows"`
	SavedAt  time.Time `json:"saved_at"`
}

// SyncRows replaces the image mirror with rows in a single transaction.
func (db *DB) SyncRows(rows []models.Row) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM images`); err != nil {
		return fmt.Errorf("index: clear images: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO images (folder_path, image_id, class, position, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(folder_path, image_id) DO UPDATE SET
			class      = excluded.class,
			position   = excluded.position,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("index: prepare image insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, r := range rows {
		if _, err := stmt.Exec(r.FolderPath, r.ImageID, r.Class, i, now); err != nil {
			return fmt.Errorf("index: insert image %s: %w", r.ImagePath(), err)
		}
		if err := ftsInsert(tx, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordSave appends a save record.
func (db *DB) RecordSave(s SaveRecord) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`INSERT INTO saves (checksum, rows, saved_at) VALUES (?, ?, ?)`,
		s.Checksum, s.Rows, s.SavedAt)
	if err != nil {
		return fmt.Errorf("index: record save: %w", err)
	}
	return nil
}

// LastSave returns the most recent save, or apperr.ErrNotFound when the
// dataset was never saved.
func (db *DB) LastSave() (*SaveRecord, error) {
	var s SaveRecord
	err := db.conn.QueryRow(`SELECT checksum, rows, saved_at FROM saves ORDER BY id DESC LIMIT 1`).
		Scan(&s.Checksum, &s.Rows, &s.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: last save: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: last save: %w", err)
	}
	return &s, nil
}

func scanRows(rows *sql.Rows) ([]models.Row, error) {
	defer rows.Close()
	out := []models.Row{}
	for rows.Next() {
		var r models.Row
		if err := rows.Scan(&r.FolderPath, &r.ImageID, &r.Class); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
