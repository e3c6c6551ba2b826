package index

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "laguz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"label_changes", "images", "saves"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestRecordChangeAndHistory(t *testing.T) {
	db := testDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, class := range []string{"fire", "smoke", "['fire', 'smoke']"} {
		err := db.RecordChange(models.LabelChange{
			SessionID:  "s1",
			RowIndex:   i,
			FolderPath: ".",
			ImageID:    "a.png",
			OldClass:   "unset",
			NewClass:   class,
			ChangedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordChange: %v", err)
		}
	}

	got, err := db.History(2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(got))
	}
	if got[0].NewClass != "['fire', 'smoke']" || got[1].NewClass != "smoke" {
		t.Errorf("history not newest first: %+v", got)
	}
	if !got[0].ChangedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("changed_at = %v", got[0].ChangedAt)
	}
}

func TestHistory_Empty(t *testing.T) {
	db := testDB(t)
	got, err := db.History(0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func sampleRows() []models.Row {
	return []models.Row{
		{FolderPath: ".", ImageID: "a.png", Class: "fire"},
		{FolderPath: ".", ImageID: "b.png", Class: "['fire', 'smoke']"},
		{FolderPath: "sub", ImageID: "c.png", Class: "smoke"},
		{FolderPath: "sub", ImageID: "d.png", Class: "fireplace"},
		{FolderPath: "sub", ImageID: "e.png", Class: "unset"},
	}
}

func TestFindByLabel(t *testing.T) {
	db := testDB(t)
	if err := db.SyncRows(sampleRows()); err != nil {
		t.Fatalf("SyncRows: %v", err)
	}

	got, err := db.FindByLabel("fire", 0)
	if err != nil {
		t.Fatalf("FindByLabel: %v", err)
	}
	if len(got) != 2 || got[0].ImageID != "a.png" || got[1].ImageID != "b.png" {
		t.Errorf("fire matches = %+v, want a.png and b.png", got)
	}

	got, _ = db.FindByLabel("smoke", 1)
	if len(got) != 1 || got[0].ImageID != "b.png" {
		t.Errorf("smoke limit 1 = %+v", got)
	}

	got, _ = db.FindByLabel("lava", 0)
	if len(got) != 0 {
		t.Errorf("expected no lava rows, got %+v", got)
	}
}

func TestSyncRowsReplaces(t *testing.T) {
	db := testDB(t)
	_ = db.SyncRows(sampleRows())
	if err := db.SyncRows([]models.Row{{FolderPath: ".", ImageID: "z.png", Class: "fire"}}); err != nil {
		t.Fatalf("SyncRows: %v", err)
	}
	got, _ := db.FindByLabel("fire", 0)
	if len(got) != 1 || got[0].ImageID != "z.png" {
		t.Errorf("old rows survived resync: %+v", got)
	}
}

func TestLastSave(t *testing.T) {
	db := testDB(t)
	if _, err := db.LastSave(); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = db.RecordSave(SaveRecord{Checksum: "one", Rows: 3})
	_ = db.RecordSave(SaveRecord{Checksum: "two", Rows: 4})

	last, err := db.LastSave()
	if err != nil {
		t.Fatalf("LastSave: %v", err)
	}
	if last.Checksum != "two" || last.Rows != 4 || last.SavedAt.IsZero() {
		t.Errorf("last save = %+v", last)
	}
}

func TestSync_SkipsUnchanged(t *testing.T) {
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rows := sampleRows()

	changed, err := Sync(db, rows, "abc", logger)
	if err != nil || !changed {
		t.Fatalf("first sync: changed=%v err=%v", changed, err)
	}
	changed, err = Sync(db, rows, "abc", logger)
	if err != nil || changed {
		t.Fatalf("second sync: changed=%v err=%v", changed, err)
	}
	changed, _ = Sync(db, rows[:1], "def", logger)
	if !changed {
		t.Error("new checksum should resync")
	}
	got, _ := db.FindByLabel("smoke", 0)
	if len(got) != 0 {
		t.Errorf("mirror not replaced: %+v", got)
	}
}
