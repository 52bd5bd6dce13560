package schema

import "testing"

type sampleReading struct {
	Celsius float64 `json:"celsius"`
	Label   string  `json:"label"`
}

func TestGenerateProducesObjectSchemaForStruct(t *testing.T) {
	g := NewGenerator()
	doc, err := g.Generate(&sampleReading{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if doc["type"] != "object" {
		t.Fatalf("expected object schema, got %v", doc["type"])
	}
	props, ok := doc["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %v", doc["properties"])
	}
	if _, ok := props["celsius"]; !ok {
		t.Fatalf("expected celsius property in schema, got %v", props)
	}
	if _, ok := doc["additionalProperties"]; ok {
		t.Fatal("did not expect additionalProperties to survive into the DataSchema document")
	}
	if _, ok := doc["$defs"]; ok {
		t.Fatal("did not expect $defs to survive into the DataSchema document")
	}
}

func TestGenerateForPrimitiveType(t *testing.T) {
	g := NewGenerator()
	var zero float64
	doc, err := g.Generate(&zero)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if doc["type"] != "number" {
		t.Fatalf("expected number schema, got %v", doc["type"])
	}
}

func TestTransformFoldsAnyOfIntoOneOf(t *testing.T) {
	in := map[string]any{
		"anyOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "number"},
		},
	}
	out := transform(in, nil, 0).(map[string]any)
	if _, ok := out["anyOf"]; ok {
		t.Fatal("expected anyOf to be removed")
	}
	oneOf, ok := out["oneOf"].([]any)
	if !ok || len(oneOf) != 2 {
		t.Fatalf("expected oneOf with 2 entries, got %v", out["oneOf"])
	}
}

func TestTransformRewritesPrefixItemsToItems(t *testing.T) {
	in := map[string]any{
		"prefixItems": []any{map[string]any{"type": "string"}},
	}
	out := transform(in, nil, 0).(map[string]any)
	if _, ok := out["prefixItems"]; ok {
		t.Fatal("expected prefixItems to be removed")
	}
	if _, ok := out["items"]; !ok {
		t.Fatal("expected items to replace prefixItems")
	}
}

func TestTransformInlinesLocalRefs(t *testing.T) {
	defs := map[string]any{
		"Inner": map[string]any{"type": "string"},
	}
	in := map[string]any{"$ref": "#/$defs/Inner", "description": "an inner value"}
	out := transform(in, defs, 0).(map[string]any)
	if out["type"] != "string" {
		t.Fatalf("expected inlined type string, got %v", out["type"])
	}
	if out["description"] != "an inner value" {
		t.Fatalf("expected sibling keys preserved alongside the inlined ref, got %v", out)
	}
	if _, ok := out["$ref"]; ok {
		t.Fatal("expected $ref to be removed after inlining")
	}
}
