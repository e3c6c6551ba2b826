//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/laguz/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; label lookups use LIKE on images.class.
	return nil
}

func ftsInsert(_ *sql.Tx, _ models.Row) error { return nil }

func ftsClear(_ *sql.Tx) error { return nil }

// FindByLabel returns mirrored rows whose class is id or a list containing
// id, in table order.
func (db *DB) FindByLabel(id string, limit int) ([]models.Row, error) {
	if limit <= 0 {
		limit = defaultFindLimit
	}
	esc := escapeLike(id)
	rows, err := db.conn.Query(`
		SELECT folder_path, image_id, class
		FROM images
		WHERE class = ?
		   OR (class LIKE '[%' AND (class LIKE ? ESCAPE '\' OR class LIKE ? ESCAPE '\'))
		ORDER BY position
		LIMIT ?
	`, id, "%'"+esc+"'%", `%"`+esc+`"%`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: find by label: %w", err)
	}
	return scanRows(rows)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
