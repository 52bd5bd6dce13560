package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/labthings/internal/affordance"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	gain, err := affordance.NewSetting(affordance.SettingConfig[float64]{Name: "gain", Default: 1.0})
	if err != nil {
		t.Fatalf("NewSetting: %v", err)
	}
	if err := gain.Set(3.5); err != nil {
		t.Fatalf("Set: %v", err)
	}

	settingsMap := map[string]affordance.Setting{"gain": gain}
	if err := store.Save("sensor", settingsMap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "sensor", "settings.json")); err != nil {
		t.Fatalf("expected settings file to exist: %v", err)
	}

	reloaded, err := affordance.NewSetting(affordance.SettingConfig[float64]{Name: "gain", Default: 1.0})
	if err != nil {
		t.Fatalf("NewSetting: %v", err)
	}
	if err := store.Load("sensor", map[string]affordance.Setting{"gain": reloaded}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Get() != 3.5 {
		t.Fatalf("expected reloaded gain 3.5, got %v", reloaded.Get())
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	store := NewStore(t.TempDir())
	gain, err := affordance.NewSetting(affordance.SettingConfig[float64]{Name: "gain", Default: 1.0})
	if err != nil {
		t.Fatalf("NewSetting: %v", err)
	}
	if err := store.Load("never-saved", map[string]affordance.Setting{"gain": gain}); err != nil {
		t.Fatalf("expected no error for a missing settings file, got %v", err)
	}
	if gain.Get() != 1.0 {
		t.Fatalf("expected default retained, got %v", gain.Get())
	}
}

func TestLoadMalformedFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	thingDir := filepath.Join(dir, "sensor")
	if err := os.MkdirAll(thingDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(thingDir, "settings.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := NewStore(dir)
	gain, err := affordance.NewSetting(affordance.SettingConfig[float64]{Name: "gain", Default: 1.0})
	if err != nil {
		t.Fatalf("NewSetting: %v", err)
	}
	if err := store.Load("sensor", map[string]affordance.Setting{"gain": gain}); err != nil {
		t.Fatalf("expected malformed settings file to not surface as an error, got %v", err)
	}
	if gain.Get() != 1.0 {
		t.Fatalf("expected default retained after malformed file, got %v", gain.Get())
	}
}

func TestLoadSkipsReadOnlySettings(t *testing.T) {
	dir := t.TempDir()
	thingDir := filepath.Join(dir, "sensor")
	if err := os.MkdirAll(thingDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	raw, err := json.Marshal(map[string]string{"status": "busy"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(thingDir, "settings.json"), raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := NewStore(dir)
	status, err := affordance.NewSetting(affordance.SettingConfig[string]{Name: "status", Default: "idle", ReadOnly: true})
	if err != nil {
		t.Fatalf("NewSetting: %v", err)
	}
	if err := store.Load("sensor", map[string]affordance.Setting{"status": status}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if status.Get() != "idle" {
		t.Fatalf("expected read-only setting to keep its default, got %v", status.Get())
	}
}

func TestLoadIgnoresUnknownSettingNames(t *testing.T) {
	dir := t.TempDir()
	thingDir := filepath.Join(dir, "sensor")
	if err := os.MkdirAll(thingDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	raw, err := json.Marshal(map[string]float64{"gain": 2.0, "mystery": 9.0})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(thingDir, "settings.json"), raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := NewStore(dir)
	gain, err := affordance.NewSetting(affordance.SettingConfig[float64]{Name: "gain", Default: 1.0})
	if err != nil {
		t.Fatalf("NewSetting: %v", err)
	}
	if err := store.Load("sensor", map[string]affordance.Setting{"gain": gain}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gain.Get() != 2.0 {
		t.Fatalf("expected gain loaded from file, got %v", gain.Get())
	}
}
