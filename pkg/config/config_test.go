package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestDecode_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "frames")
	s := sample{Port: 1}
	if err := Decode([]byte("name: ${SAMPLE_NAME}\n"), "inline", &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "frames" || s.Port != 1 {
		t.Errorf("decoded = %+v", s)
	}
}

func TestDecode_Validates(t *testing.T) {
	var s sample
	if err := Decode([]byte("name: x\n"), "inline", &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_Missing(t *testing.T) {
	var s sample
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	s := sample{Port: 8080}
	found, err := LoadOptional(filepath.Join(dir, "nope.yaml"), &s)
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}

	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err = LoadOptional(path, &s)
	if err != nil || !found || s.Port != 9000 {
		t.Fatalf("found=%v err=%v sample=%+v", found, err, s)
	}

	if err := os.WriteFile(path, []byte("port: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOptional(path, &s); err == nil {
		t.Fatal("expected parse error")
	}
}
