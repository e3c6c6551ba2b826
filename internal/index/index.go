package index

import "github.com/starford/laguz/internal/models"

// Store defines the label history operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Store interface {
	RecordChange(c models.LabelChange) error
	History(limit int) ([]models.LabelChange, error)
	SyncRows(rows []models.Row) error
	FindByLabel(id string, limit int) ([]models.Row, error)
	RecordSave(s SaveRecord) error
	LastSave() (*SaveRecord, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
