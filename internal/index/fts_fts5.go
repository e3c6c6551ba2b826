//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/laguz/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS images_fts USING fts5(
			folder_path UNINDEXED,
			image_id UNINDEXED,
			class,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, r models.Row) error {
	_, err := tx.Exec(`INSERT INTO images_fts (folder_path, image_id, class) VALUES (?, ?, ?)`,
		r.FolderPath, r.ImageID, r.Class)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM images_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// FindByLabel runs a phrase query for id over the class tokens, so list
// members match regardless of quoting, in table order.
func (db *DB) FindByLabel(id string, limit int) ([]models.Row, error) {
	if limit <= 0 {
		limit = defaultFindLimit
	}
	phrase := `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
	rows, err := db.conn.Query(`
		SELECT i.folder_path, i.image_id, i.class
		FROM images_fts f
		JOIN images i ON i.folder_path = f.folder_path AND i.image_id = f.image_id
		WHERE images_fts MATCH ?
		ORDER BY i.position
		LIMIT ?
	`, "class:"+phrase, limit)
	if err != nil {
		return nil, fmt.Errorf("index: find by label: %w", err)
	}
	return scanRows(rows)
}
