package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultFillsEveryField(t *testing.T) {
	cfg := Default()
	if cfg.Listen == "" || cfg.BaseURL == "" || cfg.SettingsDir == "" {
		t.Fatalf("expected defaults to be filled, got %+v", cfg)
	}
	if cfg.Blob.Backend != "local" {
		t.Fatalf("expected default blob backend local, got %q", cfg.Blob.Backend)
	}
	if cfg.TDCache.TTLSecs != 30 {
		t.Fatalf("expected default TD cache TTL 30s, got %d", cfg.TDCache.TTLSecs)
	}
}

func TestLoadAppliesDefaultsOnTopOfFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "listen: \":9000\"\nthings:\n  - counter\n  - sensor\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Fatalf("expected listen :9000, got %q", cfg.Listen)
	}
	if len(cfg.Things) != 2 || cfg.Things[0] != "counter" {
		t.Fatalf("expected [counter sensor], got %v", cfg.Things)
	}
	if cfg.SettingsDir == "" {
		t.Fatal("expected settings dir to receive a default even though it wasn't in the file")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
