package schema

import (
	"math"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestConstraintsApplyNumericKeywords(t *testing.T) {
	c := Constraints{Ge: f64(-273.15), Le: f64(1000), MultipleOf: f64(0.5)}
	doc := map[string]any{"type": "number"}
	if err := c.Apply(doc); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if doc["minimum"] != -273.15 || doc["maximum"] != 1000.0 || doc["multipleOf"] != 0.5 {
		t.Fatalf("unexpected doc: %v", doc)
	}
}

func TestConstraintsApplyRejectsNonPositiveMultipleOf(t *testing.T) {
	c := Constraints{MultipleOf: f64(0)}
	if err := c.Apply(map[string]any{"type": "number"}); err == nil {
		t.Fatal("expected error for non-positive multipleOf")
	}
}

func TestConstraintsApplyRejectsLengthConstraintOnNumber(t *testing.T) {
	minLen := 1
	c := Constraints{MinLength: &minLen}
	if err := c.Apply(map[string]any{"type": "number"}); err == nil {
		t.Fatal("expected error applying length constraint to a number schema")
	}
}

func TestConstraintsApplyUsesMinMaxItemsForArrays(t *testing.T) {
	minLen, maxLen := 1, 5
	c := Constraints{MinLength: &minLen, MaxLength: &maxLen}
	doc := map[string]any{"type": "array"}
	if err := c.Apply(doc); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if doc["minItems"] != 1 || doc["maxItems"] != 5 {
		t.Fatalf("expected minItems/maxItems on array schema, got %v", doc)
	}
	if _, ok := doc["minLength"]; ok {
		t.Fatal("did not expect minLength on an array schema")
	}
}

func TestConstraintsApplyUsesMinMaxLengthForStrings(t *testing.T) {
	minLen := 2
	c := Constraints{MinLength: &minLen, Pattern: "^[a-z]+$"}
	doc := map[string]any{"type": "string"}
	if err := c.Apply(doc); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if doc["minLength"] != 2 || doc["pattern"] != "^[a-z]+$" {
		t.Fatalf("unexpected doc: %v", doc)
	}
}

func TestValidateFloatRejectsOutOfRangeAndNonFinite(t *testing.T) {
	c := Constraints{Ge: f64(0), Le: f64(10)}
	if err := c.ValidateFloat(5); err != nil {
		t.Fatalf("expected 5 within [0,10] to pass, got %v", err)
	}
	if err := c.ValidateFloat(-1); err == nil {
		t.Fatal("expected -1 below Ge to fail")
	}
	if err := c.ValidateFloat(11); err == nil {
		t.Fatal("expected 11 above Le to fail")
	}

	nan := Constraints{}
	if err := nan.ValidateFloat(math.NaN()); err == nil {
		t.Fatal("expected NaN to be rejected by default")
	}
	allowing := Constraints{AllowInfNaN: true}
	if err := allowing.ValidateFloat(math.NaN()); err != nil {
		t.Fatalf("expected NaN to pass when AllowInfNaN is set, got %v", err)
	}
}

func TestValidateFloatMultipleOf(t *testing.T) {
	c := Constraints{MultipleOf: f64(0.5)}
	if err := c.ValidateFloat(1.5); err != nil {
		t.Fatalf("expected 1.5 to be a multiple of 0.5, got %v", err)
	}
	if err := c.ValidateFloat(1.3); err == nil {
		t.Fatal("expected 1.3 to fail multipleOf 0.5")
	}
}

func TestValidateStringLengthAndPattern(t *testing.T) {
	minLen, maxLen := 2, 4
	c := Constraints{MinLength: &minLen, MaxLength: &maxLen, Pattern: "^[a-z]+$"}
	if err := c.ValidateString("abc"); err != nil {
		t.Fatalf("expected abc to pass, got %v", err)
	}
	if err := c.ValidateString("a"); err == nil {
		t.Fatal("expected single-char string to fail MinLength")
	}
	if err := c.ValidateString("abcde"); err == nil {
		t.Fatal("expected 5-char string to fail MaxLength")
	}
	if err := c.ValidateString("ABC"); err == nil {
		t.Fatal("expected uppercase string to fail pattern")
	}
}

func TestValidateStringRejectsInvalidPattern(t *testing.T) {
	c := Constraints{Pattern: "("}
	if err := c.ValidateString("anything"); err == nil {
		t.Fatal("expected invalid regex pattern to produce an error")
	}
}
