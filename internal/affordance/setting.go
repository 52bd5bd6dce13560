package affordance

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/schema"
)

// Setting is the non-generic interface every Setting[T] satisfies. Settings
// are like read/write DataProperty values but persist to the per-Thing
// settings file rather than being exposed as a property affordance;
// internal/settings loads/saves them as a flat name->JSON map.
type Setting interface {
	Name() string
	Description() string
	ReadOnly() bool
	Schema() (map[string]any, error)
	GetJSON() (json.RawMessage, error)
	LoadJSON(raw json.RawMessage) error // applied at Thing setup, malformed input logs a warning and keeps the default
}

// Setting generic implementation.
type SettingT[T any] struct {
	name        string
	description string
	readOnly    bool
	constraints schema.Constraints

	mu    sync.RWMutex
	value T

	onChange func(T)
}

// SettingConfig configures a new Setting[T].
type SettingConfig[T any] struct {
	Name        string
	Description string
	Default     T
	Constraints schema.Constraints
	OnChange    func(T)
	// ReadOnly marks a setting that can be read over HTTP/the direct client
	// but never written: a PUT is rejected with domain.ErrNotAllowed, and
	// persisted values for it are skipped at load time (it always keeps the
	// value its getter computes, not a value from a settings file).
	ReadOnly bool
}

// NewSetting constructs a Setting[T] with its default value.
func NewSetting[T any](cfg SettingConfig[T]) (*SettingT[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: setting name must not be empty", domain.ErrConfiguration)
	}
	return &SettingT[T]{
		name:        cfg.Name,
		description: cfg.Description,
		readOnly:    cfg.ReadOnly,
		constraints: cfg.Constraints,
		value:       cfg.Default,
		onChange:    cfg.OnChange,
	}, nil
}

func (s *SettingT[T]) Name() string        { return s.name }
func (s *SettingT[T]) Description() string { return s.description }
func (s *SettingT[T]) ReadOnly() bool      { return s.readOnly }

func (s *SettingT[T]) Schema() (map[string]any, error) {
	return buildSchema[T](s.constraints)
}

// Get returns the current typed value.
func (s *SettingT[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set applies a new typed value, used by Go callers at runtime (as opposed
// to LoadJSON, which decodes a raw JSON value: the persisted file at setup,
// or a PUT body at runtime).
func (s *SettingT[T]) Set(v T) error {
	if err := validateValue(v, s.constraints); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
	}
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(v)
	}
	return nil
}

func (s *SettingT[T]) GetJSON() (json.RawMessage, error) {
	return json.Marshal(s.Get())
}

// LoadJSON applies a persisted value at setup time, or a PUT body at
// runtime. Per spec.md §4.6, malformed settings data must not prevent the
// Thing from starting: the caller (internal/settings) is expected to log
// the error returned here as a warning and leave the default value in
// place, rather than propagate it. A read-only setting rejects every write
// with domain.ErrNotAllowed (405 over HTTP); internal/settings also skips
// read-only settings during load so they are never even attempted.
func (s *SettingT[T]) LoadJSON(raw json.RawMessage) error {
	if s.readOnly {
		return fmt.Errorf("%w: setting %q is read-only", domain.ErrNotAllowed, s.name)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
	}
	return s.Set(v)
}
