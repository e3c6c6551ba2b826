package index

import (
	"fmt"
	"time"

	"github.com/starford/laguz/internal/models"
)

const defaultHistoryLimit = 50

// RecordChange appends one committed label edit.
func (db *DB) RecordChange(c models.LabelChange) error {
	if c.ChangedAt.IsZero() {
		c.ChangedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO label_changes (session_id, row_index, folder_path, image_id, old_class, new_class, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.SessionID, c.RowIndex, c.FolderPath, c.ImageID, c.OldClass, c.NewClass, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("index: record change: %w", err)
	}
	return nil
}

// History returns the most recent changes, newest first.
func (db *DB) History(limit int) ([]models.LabelChange, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := db.conn.Query(`
		SELECT session_id, row_index, folder_path, image_id, old_class, new_class, changed_at
		FROM label_changes
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: history: %w", err)
	}
	defer rows.Close()

	out := []models.LabelChange{}
	for rows.Next() {
		var c models.LabelChange
		if err := rows.Scan(&c.SessionID, &c.RowIndex, &c.FolderPath, &c.ImageID, &c.OldClass, &c.NewClass, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
