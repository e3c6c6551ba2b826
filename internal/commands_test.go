package internal

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/laguz/internal/session"
	"github.com/starford/laguz/internal/testutil"
)

func testConfig(t *testing.T, images ...string) *Config {
	t.Helper()
	root, _ := testutil.ImageTree(t, images...)
	cfg := NewDefaultConfig()
	cfg.Dataset.Root = root
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "laguz.db")
	return cfg
}

func TestScan_Confirmed(t *testing.T) {
	cfg := testConfig(t, "fire/a.png", "smoke/b.png", "smoke/c.jpg")
	var out bytes.Buffer

	err := Scan(context.Background(), true,
		WithConfig(cfg),
		WithConfirmer(session.Always(true)),
		WithOutput(&out),
		WithLogOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got := out.String(); got != "3 images written to dataset.csv\n" {
		t.Errorf("output = %q", got)
	}
	data, err := os.ReadFile(filepath.Join(cfg.Dataset.Root, "dataset.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "smoke,c.jpg,smoke") {
		t.Errorf("dataset = %s", data)
	}
}

func TestScan_Declined(t *testing.T) {
	cfg := testConfig(t, "a.png")
	var out bytes.Buffer

	err := Scan(context.Background(), false, WithConfig(cfg), WithOutput(&out), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out.String(), "not written") {
		t.Errorf("output = %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(cfg.Dataset.Root, "dataset.csv")); !os.IsNotExist(err) {
		t.Error("declined scan wrote the dataset")
	}
}

func TestStats(t *testing.T) {
	cfg := testConfig(t, "fire/a.png", "fire/b.png", "smoke/c.png")
	ctx := context.Background()
	if err := Scan(ctx, true, WithConfig(cfg), WithConfirmer(session.Always(true)),
		WithOutput(io.Discard), WithLogOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Stats(ctx, WithConfig(cfg), WithOutput(&out), WithLogOutput(io.Discard)); err != nil {
		t.Fatalf("stats: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	if f := strings.Fields(lines[1]); f[0] != "fire" || f[1] != "2" {
		t.Errorf("first row = %q", lines[1])
	}
	if f := strings.Fields(lines[3]); f[0] != "total" || f[1] != "3" {
		t.Errorf("total row = %q", lines[3])
	}
}

func TestStats_NoDataset(t *testing.T) {
	cfg := testConfig(t, "a.png")
	err := Stats(context.Background(), WithConfig(cfg), WithOutput(io.Discard), WithLogOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error without a dataset file")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t, "a.png")
	cfg.App.HTTP.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, WithConfig(cfg), WithLogOutput(io.Discard)) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
