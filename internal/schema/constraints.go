package schema

import (
	"fmt"
	"math"
)

// Constraints mirrors the validation keywords spec.md names for Property
// and Setting descriptors. They are applied on top of whatever DataSchema
// Generate derived from the Go type, the same way the original layers
// pydantic Field(...) constraints on top of a type annotation.
type Constraints struct {
	Gt          *float64
	Ge          *float64
	Lt          *float64
	Le          *float64
	MultipleOf  *float64
	MinLength   *int
	MaxLength   *int
	Pattern     string
	AllowInfNaN bool
}

// Apply mutates a generated DataSchema map in place, adding the JSON Schema
// keywords that correspond to c's constraints. It returns an error wrapping
// domain.ErrConfiguration-flavored text when a constraint cannot apply to
// the schema's type (e.g. Pattern on a non-string schema) — callers raise
// this eagerly at descriptor registration, not at first validation.
func (c Constraints) Apply(doc map[string]any) error {
	if c.Gt != nil {
		doc["exclusiveMinimum"] = *c.Gt
	}
	if c.Ge != nil {
		doc["minimum"] = *c.Ge
	}
	if c.Lt != nil {
		doc["exclusiveMaximum"] = *c.Lt
	}
	if c.Le != nil {
		doc["maximum"] = *c.Le
	}
	if c.MultipleOf != nil {
		if *c.MultipleOf <= 0 {
			return fmt.Errorf("schema: multiple_of must be positive, got %v", *c.MultipleOf)
		}
		doc["multipleOf"] = *c.MultipleOf
	}

	typ, _ := doc["type"].(string)

	if c.MinLength != nil || c.MaxLength != nil || c.Pattern != "" {
		if typ != "" && typ != "string" && typ != "array" {
			return fmt.Errorf("schema: length/pattern constraints do not apply to type %q", typ)
		}
	}
	if typ == "array" {
		if c.MinLength != nil {
			doc["minItems"] = *c.MinLength
		}
		if c.MaxLength != nil {
			doc["maxItems"] = *c.MaxLength
		}
	} else {
		if c.MinLength != nil {
			doc["minLength"] = *c.MinLength
		}
		if c.MaxLength != nil {
			doc["maxLength"] = *c.MaxLength
		}
		if c.Pattern != "" {
			doc["pattern"] = c.Pattern
		}
	}

	return nil
}

// ValidateFloat applies the subset of c that numeric validation needs,
// independent of any generated JSON Schema document. The affordance
// package's write paths call it; no JSON Schema validator runs afterwards.
func (c Constraints) ValidateFloat(v float64) error {
	if !c.AllowInfNaN && (math.IsInf(v, 0) || math.IsNaN(v)) {
		return fmt.Errorf("schema: value must be finite, got %v", v)
	}
	if c.Gt != nil && !(v > *c.Gt) {
		return fmt.Errorf("schema: value %v must be > %v", v, *c.Gt)
	}
	if c.Ge != nil && !(v >= *c.Ge) {
		return fmt.Errorf("schema: value %v must be >= %v", v, *c.Ge)
	}
	if c.Lt != nil && !(v < *c.Lt) {
		return fmt.Errorf("schema: value %v must be < %v", v, *c.Lt)
	}
	if c.Le != nil && !(v <= *c.Le) {
		return fmt.Errorf("schema: value %v must be <= %v", v, *c.Le)
	}
	if c.MultipleOf != nil && *c.MultipleOf != 0 {
		q := v / *c.MultipleOf
		if math.Abs(q-math.Round(q)) > 1e-9 {
			return fmt.Errorf("schema: value %v is not a multiple of %v", v, *c.MultipleOf)
		}
	}
	return nil
}

// ValidateString applies the length/pattern subset of c.
func (c Constraints) ValidateString(s string) error {
	if c.MinLength != nil && len(s) < *c.MinLength {
		return fmt.Errorf("schema: string length %d below minimum %d", len(s), *c.MinLength)
	}
	if c.MaxLength != nil && len(s) > *c.MaxLength {
		return fmt.Errorf("schema: string length %d above maximum %d", len(s), *c.MaxLength)
	}
	if c.Pattern != "" {
		ok, err := matchPattern(c.Pattern, s)
		if err != nil {
			return fmt.Errorf("schema: invalid pattern %q: %w", c.Pattern, err)
		}
		if !ok {
			return fmt.Errorf("schema: string %q does not match pattern %q", s, c.Pattern)
		}
	}
	return nil
}
