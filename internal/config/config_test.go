package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyFileOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := "lru_cache_size: 10\nheartbeat_timeout: 30s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ApplyFile(Default(), path)
	if err != nil {
		t.Fatal(err)
	}
	if got.LRUCacheSize != 10 {
		t.Errorf("LRUCacheSize = %d; want 10", got.LRUCacheSize)
	}
	if got.HeartbeatTimeout != 30*time.Second {
		t.Errorf("HeartbeatTimeout = %v; want 30s", got.HeartbeatTimeout)
	}
	// Untouched fields keep their compiled default.
	want := Default()
	if got.MaxFiles != want.MaxFiles {
		t.Errorf("MaxFiles = %d; want untouched default %d", got.MaxFiles, want.MaxFiles)
	}
}

func TestApplyFileEmptyPathIsNoop(t *testing.T) {
	got, err := ApplyFile(Default(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != Default() {
		t.Errorf("expected unchanged defaults, got %+v", got)
	}
}

func TestApplyFileMissingFileErrors(t *testing.T) {
	if _, err := ApplyFile(Default(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
