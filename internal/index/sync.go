package index

import (
	"errors"
	"log/slog"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

// Sync brings the image mirror up to date with a saved dataset and records
// the save. When sum matches the last recorded save the mirror is left alone
// and false is returned.
func Sync(db Store, rows []models.Row, sum string, logger *slog.Logger) (bool, error) {
	last, err := db.LastSave()
	switch {
	case err == nil && last.Checksum == sum && last.Rows == len(rows):
		logger.Debug("sync: dataset unchanged", slog.String("checksum", sum))
		return false, nil
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return false, err
	}

	if err := db.SyncRows(rows); err != nil {
		return false, err
	}
	if err := db.RecordSave(SaveRecord{Checksum: sum, Rows: len(rows)}); err != nil {
		return false, err
	}
	logger.Debug("sync: mirrored dataset", slog.Int("rows", len(rows)), slog.String("checksum", sum))
	return true, nil
}
