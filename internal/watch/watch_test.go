package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, path string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+path)
	r.mu.Unlock()
}

func (r *recorder) has(want string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == want {
			return true
		}
	}
	return false
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string) *recorder {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	rec := &recorder{}
	go func() {
		defer close(done)
		if err := Watch(ctx, root, logger, rec.record); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatch_NewImageReported(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root)

	_ = os.WriteFile(filepath.Join(root, "new.png"), []byte("img"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:new.png")
	}, "expected created:new.png callback")
}

func TestWatch_IgnoresNonImages(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root)

	_ = os.WriteFile(filepath.Join(root, "dataset.csv"), []byte("folder_path,image_id,class\n"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "after.jpg"), []byte("img"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:after.jpg")
	}, "expected created:after.jpg callback")
	for _, e := range rec.snapshot() {
		if filepath.Ext(e) == ".csv" {
			t.Errorf("csv event reported: %s", e)
		}
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root)

	sub := filepath.Join(root, "fire")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.png"), []byte("img"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:fire/deep.png")
	}, "image in new subdir not reported")
}

func TestWatch_DeleteAndRename(t *testing.T) {
	root := t.TempDir()
	_ = os.WriteFile(filepath.Join(root, "del.png"), []byte("img"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "old.png"), []byte("img"), 0o644)
	rec := startWatch(t, root)

	_ = os.Remove(filepath.Join(root, "del.png"))
	_ = os.Rename(filepath.Join(root, "old.png"), filepath.Join(root, "renamed.png"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("deleted:del.png") && rec.has("deleted:old.png") && rec.has("created:renamed.png")
	}, "delete/rename events missing")
}
