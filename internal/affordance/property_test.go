package affordance

import (
	"errors"
	"testing"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/schema"
)

func TestNewDataPropertyRejectsEmptyName(t *testing.T) {
	if _, err := NewDataProperty(DataPropertyConfig[int]{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestDataPropertySetRejectsReadOnly(t *testing.T) {
	p, err := NewDataProperty(DataPropertyConfig[int]{Name: "count", ReadOnly: true, Initial: 0})
	if err != nil {
		t.Fatalf("NewDataProperty: %v", err)
	}
	if err := p.Set(5); !errors.Is(err, domain.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if p.Get() != 0 {
		t.Fatalf("expected value unchanged, got %d", p.Get())
	}
}

func TestDataPropertySetInternalBypassesReadOnly(t *testing.T) {
	p, err := NewDataProperty(DataPropertyConfig[int]{Name: "count", ReadOnly: true, Initial: 0})
	if err != nil {
		t.Fatalf("NewDataProperty: %v", err)
	}
	p.SetInternal(5)
	if p.Get() != 5 {
		t.Fatalf("expected SetInternal to apply despite ReadOnly, got %d", p.Get())
	}
}

func TestDataPropertySetJSONValidatesConstraints(t *testing.T) {
	ge := -273.15
	le := 1000.0
	p, err := NewDataProperty(DataPropertyConfig[float64]{
		Name:        "temperature",
		Constraints: schema.Constraints{Ge: &ge, Le: &le},
	})
	if err != nil {
		t.Fatalf("NewDataProperty: %v", err)
	}

	if _, err := p.SetJSON([]byte("100.5")); err != nil {
		t.Fatalf("expected valid value accepted, got %v", err)
	}
	if p.Get() != 100.5 {
		t.Fatalf("expected 100.5, got %v", p.Get())
	}

	if _, err := p.SetJSON([]byte("-300")); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for out-of-range value, got %v", err)
	}
	if p.Get() != 100.5 {
		t.Fatalf("expected value unchanged after rejected write, got %v", p.Get())
	}

	if _, err := p.SetJSON([]byte(`"not a number"`)); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for malformed JSON, got %v", err)
	}
}

func TestDataPropertyOnChangeFiresOnSuccessfulWrite(t *testing.T) {
	var seen []int
	p, err := NewDataProperty(DataPropertyConfig[int]{
		Name:     "count",
		OnChange: func(v int) { seen = append(seen, v) },
	})
	if err != nil {
		t.Fatalf("NewDataProperty: %v", err)
	}
	if err := p.Set(1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := p.Set(2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected onChange called with [1 2], got %v", seen)
	}
}

func TestFuncPropertyIsReadOnlyWithoutSetter(t *testing.T) {
	p, err := NewFuncProperty(FuncPropertyConfig[int]{
		Name: "reading",
		Get:  func() (int, error) { return 42, nil },
	})
	if err != nil {
		t.Fatalf("NewFuncProperty: %v", err)
	}
	if !p.ReadOnly() {
		t.Fatal("expected a FuncProperty with no Set to be read-only")
	}
	raw, err := p.GetJSON()
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if string(raw) != "42" {
		t.Fatalf("expected 42, got %s", raw)
	}
	if _, err := p.SetJSON([]byte("1")); !errors.Is(err, domain.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestFuncPropertySetDelegatesToSetter(t *testing.T) {
	var stored int
	p, err := NewFuncProperty(FuncPropertyConfig[int]{
		Name: "level",
		Get:  func() (int, error) { return stored, nil },
		Set:  func(v int) error { stored = v; return nil },
	})
	if err != nil {
		t.Fatalf("NewFuncProperty: %v", err)
	}
	if p.ReadOnly() {
		t.Fatal("expected a FuncProperty with a Set to not be read-only")
	}
	if _, err := p.SetJSON([]byte("7")); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if stored != 7 {
		t.Fatalf("expected setter invoked with 7, got %d", stored)
	}
}
