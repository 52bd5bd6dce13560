// Package settings persists each Thing's Setting[T] values to a JSON file
// on disk: one file per Thing at {settings_folder}/{thing}/settings.json.
// The write path is grounded on the teacher's internal/ai prompt-template
// save path (os.CreateTemp + Write + Close + os.Rename) — atomic so a crash
// mid-write never leaves a half-written settings file behind.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oriys/labthings/internal/affordance"
	"github.com/oriys/labthings/internal/logging"
	"github.com/oriys/labthings/internal/metrics"
)

// Store loads and saves one Thing's settings file.
type Store struct {
	root string // settings folder root; per-Thing files live at root/{thing}/settings.json

	mu sync.Mutex
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) thingDir(thing string) string {
	return filepath.Join(s.root, thing)
}

func (s *Store) thingFile(thing string) string {
	return filepath.Join(s.thingDir(thing), "settings.json")
}

// Load reads a Thing's settings file and applies each value onto the
// matching Setting by name. A missing file is not an error — it means the
// Thing has never persisted settings yet, and every Setting keeps its
// default. A malformed file, or a value that fails a Setting's LoadJSON,
// logs a warning and otherwise leaves that Setting's default untouched —
// per spec.md §4.6, settings loading must never prevent a Thing from
// starting.
func (s *Store) Load(thing string, settings map[string]affordance.Setting) error {
	data, err := os.ReadFile(s.thingFile(thing))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("settings: read %s: %w", thing, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Op().Warn("settings: malformed settings file, using defaults", "thing", thing, "err", err)
		return nil
	}

	for name, value := range raw {
		setting, ok := settings[name]
		if !ok {
			logging.Op().Warn("settings: unknown setting in file, ignored", "thing", thing, "setting", name)
			continue
		}
		if setting.ReadOnly() {
			continue
		}
		if err := setting.LoadJSON(value); err != nil {
			logging.Op().Warn("settings: failed to apply persisted value, keeping default", "thing", thing, "setting", name, "err", err)
		}
	}
	return nil
}

// Save serializes every Setting's current value to the Thing's settings
// file, via a temp-file-then-rename so concurrent readers never observe a
// partially written file.
func (s *Store) Save(thing string, settings map[string]affordance.Setting) (err error) {
	defer func() { metrics.Global().RecordSettingsSave(thing, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]json.RawMessage, len(settings))
	for name, setting := range settings {
		v, err := setting.GetJSON()
		if err != nil {
			return fmt.Errorf("settings: marshal %s.%s: %w", thing, name, err)
		}
		out[name] = v
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal settings for %s: %w", thing, err)
	}

	dir := s.thingDir(thing)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create dir %s: %w", dir, err)
	}

	target := s.thingFile(thing)
	tmp, err := os.CreateTemp(dir, "settings.*.tmp")
	if err != nil {
		return fmt.Errorf("settings: create temp file for %s: %w", thing, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("settings: write temp file for %s: %w", thing, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("settings: close temp file for %s: %w", thing, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("settings: replace settings file for %s: %w", thing, err)
	}

	return nil
}
