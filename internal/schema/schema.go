// Package schema bridges Go types to JSON Schema, then reshapes the result
// into the subset of JSON Schema that W3C Web of Things Thing Descriptions
// use as their DataSchema dialect.
//
// Generation itself is delegated to github.com/invopop/jsonschema, a
// reflection-based generator (the same approach the teacher takes for its
// own struct-tag-driven (de)serialization) — this package's own code is the
// three structural transforms a DataSchema needs that a generic JSON Schema
// does not: folding anyOf into oneOf, rewriting tuple validation from
// prefixItems to items, and dropping additionalProperties (WoT DataSchema
// has no equivalent keyword), plus inlining local $refs so a TD consumer
// never has to resolve definitions out-of-band.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// maxInlineDepth bounds $ref inlining recursion. A schema whose definitions
// form a cycle deeper than this keeps its $ref rather than expanding forever;
// 99 matches the distilled spec's stated limit and is far beyond any
// realistic descriptor nesting.
const maxInlineDepth = 99

// Generator produces WoT-flavored JSON Schema documents from Go types.
type Generator struct {
	reflector *jsonschema.Reflector
}

// NewGenerator returns a Generator configured for TD-shaped output:
// definitions are expanded inline rather than left as a top-level $defs map
// reference, and additionalProperties is never set on generated objects
// (WoT DataSchema forbids it).
func NewGenerator() *Generator {
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
		DoNotReference:            false,
	}
	return &Generator{reflector: r}
}

// Generate derives a DataSchema document for v, applying the TD transforms.
// v should be a pointer to the zero value of the Go type to describe (the
// same convention invopop/jsonschema itself uses for Reflect).
func (g *Generator) Generate(v any) (map[string]any, error) {
	raw := g.reflector.Reflect(v)

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal reflected schema: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode reflected schema: %w", err)
	}

	defs, _ := extractDefs(doc)
	result := transform(doc, defs, 0)
	resultMap, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema: reflected schema for %T did not produce an object", v)
	}

	delete(resultMap, "$defs")
	delete(resultMap, "definitions")
	delete(resultMap, "$schema")
	delete(resultMap, "$id")

	return resultMap, nil
}

// extractDefs pulls the $defs/definitions map out of a top-level schema
// document so inlining can look definitions up by name.
func extractDefs(doc map[string]any) (map[string]any, bool) {
	if d, ok := doc["$defs"].(map[string]any); ok {
		return d, true
	}
	if d, ok := doc["definitions"].(map[string]any); ok {
		return d, true
	}
	return nil, false
}

// transform walks a decoded JSON Schema document applying, at every object
// node: anyOf -> oneOf, prefixItems -> items, additionalProperties removal,
// and local $ref inlining. depth tracks $ref-inlining recursion only.
func transform(node any, defs map[string]any, depth int) any {
	switch v := node.(type) {
	case map[string]any:
		return transformObject(v, defs, depth)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = transform(item, defs, depth)
		}
		return out
	default:
		return node
	}
}

func transformObject(m map[string]any, defs map[string]any, depth int) map[string]any {
	if ref, ok := m["$ref"].(string); ok && depth < maxInlineDepth {
		if target, ok := resolveRef(ref, defs); ok {
			inlined := transform(cloneMap(target), defs, depth+1)
			if im, ok := inlined.(map[string]any); ok {
				for k, v := range m {
					if k == "$ref" {
						continue
					}
					im[k] = v
				}
				return im
			}
		}
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "anyOf":
			out["oneOf"] = transform(v, defs, depth)
		case "prefixItems":
			out["items"] = transform(v, defs, depth)
		case "additionalProperties":
			// WoT DataSchema has no additionalProperties keyword; dropped
			// rather than carried through as dead weight on the wire.
		default:
			out[k] = transform(v, defs, depth)
		}
	}
	return out
}

// resolveRef resolves a local "#/$defs/Name" or "#/definitions/Name" ref
// against the extracted definitions map.
func resolveRef(ref string, defs map[string]any) (map[string]any, bool) {
	if defs == nil {
		return nil, false
	}
	const defsPrefix = "#/$defs/"
	const oldDefsPrefix = "#/definitions/"
	var name string
	switch {
	case hasPrefix(ref, defsPrefix):
		name = ref[len(defsPrefix):]
	case hasPrefix(ref, oldDefsPrefix):
		name = ref[len(oldDefsPrefix):]
	default:
		return nil, false
	}
	target, ok := defs[name].(map[string]any)
	return target, ok
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
