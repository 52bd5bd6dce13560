// Package affordance implements the three WoT affordance descriptor types —
// Property, Action, and (minimally) Event — as Go generics over the value
// type they carry. A generic type parameter replaces the original's
// explicit-subscript-vs-annotation reconciliation (MissingType,
// InconsistentType) with a compile-time guarantee: Property[T] always knows
// its value_type is T, no reflection-based inference required at
// registration time.
package affordance

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/schema"
)

// Property is the non-generic interface every Property[T] satisfies, used
// wherever a Thing needs to hold a heterogeneous collection of properties
// (its registry, the HTTP handlers, the TD builder).
type Property interface {
	Name() string
	Title() string
	Description() string
	ReadOnly() bool
	Observable() bool
	Schema() (map[string]any, error)

	// GetJSON returns the property's current value, already marshalled.
	GetJSON() (json.RawMessage, error)

	// SetJSON validates and applies a new value from a raw JSON body,
	// returning the applied value (already marshalled) for the observation
	// bus, or domain.ErrNotAllowed if the property is read-only, or
	// domain.ErrValidationFailed if raw fails schema/constraint validation.
	SetJSON(raw json.RawMessage) (json.RawMessage, error)
}

// Getter reads the current value of a property of type T.
type Getter[T any] func() (T, error)

// Setter applies a new value to a property of type T. Returning a
// non-nil error aborts the write; the property's prior value is unchanged.
type Setter[T any] func(T) error

// DataProperty is the "data" variant of Property[T]: the descriptor owns
// storage directly (a value field of type T, guarded by its own mutex) rather
// than delegating reads/writes to handler functions. This mirrors the
// original's plain-attribute property variant.
type DataProperty[T any] struct {
	name        string
	title       string
	description string
	readOnly    bool
	observable  bool
	constraints schema.Constraints

	mu    sync.RWMutex
	value T

	onChange func(T) // invoked with the new value after a successful Set, for the observation bus
}

// DataPropertyConfig configures a new DataProperty[T].
type DataPropertyConfig[T any] struct {
	Name        string
	Title       string
	Description string
	ReadOnly    bool
	Observable  bool
	Initial     T
	Constraints schema.Constraints
	OnChange    func(T)
}

// NewDataProperty constructs a DataProperty[T]. Name must be non-empty;
// violating this raises domain.ErrConfiguration eagerly, matching spec.md's
// rule that descriptor mistakes are caught at registration, not first use.
func NewDataProperty[T any](cfg DataPropertyConfig[T]) (*DataProperty[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: property name must not be empty", domain.ErrConfiguration)
	}
	return &DataProperty[T]{
		name:        cfg.Name,
		title:       cfg.Title,
		description: cfg.Description,
		readOnly:    cfg.ReadOnly,
		observable:  cfg.Observable,
		constraints: cfg.Constraints,
		value:       cfg.Initial,
		onChange:    cfg.OnChange,
	}, nil
}

func (p *DataProperty[T]) Name() string        { return p.name }
func (p *DataProperty[T]) Title() string       { return p.title }
func (p *DataProperty[T]) Description() string { return p.description }
func (p *DataProperty[T]) ReadOnly() bool      { return p.readOnly }
func (p *DataProperty[T]) Observable() bool    { return p.observable }

// Get returns the current typed value.
func (p *DataProperty[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Set validates and applies a new typed value directly, bypassing JSON
// decoding — used by Go callers (e.g. another action's handler) that
// already have a T in hand.
func (p *DataProperty[T]) Set(v T) error {
	if p.readOnly {
		return domain.ErrNotAllowed
	}
	if err := validateValue(v, p.constraints); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	if p.onChange != nil {
		p.onChange(v)
	}
	return nil
}

// SetInternal applies a new value unconditionally, bypassing both the
// read-only flag and constraint validation. Per spec.md §4.1, writes issued
// by a Thing's own code (e.g. an action incrementing its own counter
// property) are not subject to the HTTP write path's restrictions — those
// exist to police external clients, not the Thing's own logic.
func (p *DataProperty[T]) SetInternal(v T) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	if p.onChange != nil {
		p.onChange(v)
	}
}

func (p *DataProperty[T]) Schema() (map[string]any, error) {
	return buildSchema[T](p.constraints)
}

func (p *DataProperty[T]) GetJSON() (json.RawMessage, error) {
	return json.Marshal(p.Get())
}

func (p *DataProperty[T]) SetJSON(raw json.RawMessage) (json.RawMessage, error) {
	if p.readOnly {
		return nil, domain.ErrNotAllowed
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
	}
	if err := p.Set(v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// FuncProperty is the "functional" variant of Property[T]: reads and writes
// are delegated to handler functions rather than descriptor-owned storage,
// for properties backed by live hardware state (e.g. reading a sensor) or
// that need side effects on write.
type FuncProperty[T any] struct {
	name        string
	title       string
	description string
	observable  bool
	constraints schema.Constraints

	get Getter[T]
	set Setter[T] // nil means read-only

	onChange func(T)
}

// FuncPropertyConfig configures a new FuncProperty[T].
type FuncPropertyConfig[T any] struct {
	Name        string
	Title       string
	Description string
	Observable  bool
	Constraints schema.Constraints
	Get         Getter[T]
	Set         Setter[T] // leave nil for a read-only property
	OnChange    func(T)
}

// NewFuncProperty constructs a FuncProperty[T]. Get is required.
func NewFuncProperty[T any](cfg FuncPropertyConfig[T]) (*FuncProperty[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: property name must not be empty", domain.ErrConfiguration)
	}
	if cfg.Get == nil {
		return nil, fmt.Errorf("%w: functional property %q has no getter", domain.ErrConfiguration, cfg.Name)
	}
	return &FuncProperty[T]{
		name:        cfg.Name,
		title:       cfg.Title,
		description: cfg.Description,
		observable:  cfg.Observable,
		constraints: cfg.Constraints,
		get:         cfg.Get,
		set:         cfg.Set,
		onChange:    cfg.OnChange,
	}, nil
}

func (p *FuncProperty[T]) Name() string        { return p.name }
func (p *FuncProperty[T]) Title() string       { return p.title }
func (p *FuncProperty[T]) Description() string { return p.description }
func (p *FuncProperty[T]) ReadOnly() bool      { return p.set == nil }
func (p *FuncProperty[T]) Observable() bool    { return p.observable }

func (p *FuncProperty[T]) Schema() (map[string]any, error) {
	return buildSchema[T](p.constraints)
}

func (p *FuncProperty[T]) GetJSON() (json.RawMessage, error) {
	v, err := p.get()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (p *FuncProperty[T]) SetJSON(raw json.RawMessage) (json.RawMessage, error) {
	if p.set == nil {
		return nil, domain.ErrNotAllowed
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
	}
	if err := validateValue(v, p.constraints); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
	}
	if err := p.set(v); err != nil {
		return nil, err
	}
	if p.onChange != nil {
		p.onChange(v)
	}
	return json.Marshal(v)
}

// buildSchema generates the DataSchema document for T, applying
// constraints. Shared by both property variants and by Setting[T].
func buildSchema[T any](c schema.Constraints) (map[string]any, error) {
	var zero T
	gen := schemaGenerator()
	doc, err := gen.Generate(&zero)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfiguration, err)
	}
	if err := c.Apply(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfiguration, err)
	}
	return doc, nil
}

// validateValue runs the Go-side constraint checks. It is the only
// constraint check on both write paths: Set() calls it directly and
// SetJSON (the HTTP write path) calls it after decoding; values are not
// validated against the generated JSON Schema document. Constraints are
// checked for float64, float32, int, int64 and string values; values of
// other types pass unchecked.
func validateValue[T any](v T, c schema.Constraints) error {
	switch val := any(v).(type) {
	case float64:
		return c.ValidateFloat(val)
	case float32:
		return c.ValidateFloat(float64(val))
	case int:
		return c.ValidateFloat(float64(val))
	case int64:
		return c.ValidateFloat(float64(val))
	case string:
		return c.ValidateString(val)
	default:
		return nil
	}
}

var schemaGeneratorOnce sync.Once
var sharedSchemaGenerator *schema.Generator

// schemaGenerator returns a process-wide Generator; invopop/jsonschema's
// Reflector caches no mutable state worth isolating per-descriptor.
func schemaGenerator() *schema.Generator {
	schemaGeneratorOnce.Do(func() {
		sharedSchemaGenerator = schema.NewGenerator()
	})
	return sharedSchemaGenerator
}
