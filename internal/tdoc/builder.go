// Package tdoc builds a W3C Web of Thing Description 1.1 JSON document from
// a Thing's registered affordances, and caches the serialized result per
// (path, base_url) pair — grounded on
// original_source/src/labthings_fastapi/thing_description/__init__.py and
// model.py, rendered as a generic map[string]any document (rather than a
// fixed Go struct) so the builder can carry forward whatever keys
// internal/schema's generated DataSchema produces without needing a
// hand-maintained struct mirror of the TD spec.
package tdoc

import (
	"fmt"
	"sort"

	"github.com/oriys/labthings/internal/affordance"
	"github.com/oriys/labthings/internal/thing"
)

// contextURL is the WoT TD 1.1 context, required verbatim on every document.
const contextURL = "https://www.w3.org/2022/wot/td/v1.1"

// Builder assembles Thing Description documents.
type Builder struct{}

// NewBuilder returns a Builder. It holds no state; all context a build
// needs (the Thing, the base URL) is passed to Build.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles the Thing Description for t, with every form's href
// rooted at baseURL (e.g. "http://localhost:7123").
func (b *Builder) Build(t *thing.Thing, baseURL string) (map[string]any, error) {
	doc := map[string]any{
		"@context": contextURL,
		"title":    t.Title(),
		"id":       "urn:labthings:" + t.Name(),
	}
	if t.Description() != "" {
		doc["description"] = t.Description()
	}

	properties, err := b.properties(t, baseURL)
	if err != nil {
		return nil, err
	}
	if len(properties) > 0 {
		doc["properties"] = properties
	}

	actions, err := b.actions(t, baseURL)
	if err != nil {
		return nil, err
	}
	if len(actions) > 0 {
		doc["actions"] = actions
	}

	events := b.events(t, baseURL)
	if len(events) > 0 {
		doc["events"] = events
	}

	return doc, nil
}

func (b *Builder) properties(t *thing.Thing, baseURL string) (map[string]any, error) {
	props := t.Properties()
	names := sortedKeys(props)

	out := make(map[string]any, len(props))
	for _, name := range names {
		p := props[name]
		schema, err := p.Schema()
		if err != nil {
			return nil, fmt.Errorf("tdoc: schema for property %q: %w", name, err)
		}
		entry := cloneSchema(schema)
		entry["title"] = p.Title()
		if p.Description() != "" {
			entry["description"] = p.Description()
		}
		entry["readOnly"] = p.ReadOnly()
		entry["observable"] = p.Observable()

		href := fmt.Sprintf("%s/%s/%s", baseURL, t.Name(), name)
		ops := []string{"readproperty"}
		if !p.ReadOnly() {
			ops = append(ops, "writeproperty")
		}
		entry["forms"] = []map[string]any{{"href": href, "op": ops}}
		if p.Observable() {
			entry["forms"] = append(entry["forms"].([]map[string]any), map[string]any{
				"href":        fmt.Sprintf("%s/%s/ws", wsURL(baseURL), t.Name()),
				"op":          []string{"observeproperty"},
				"subprotocol": "labthings",
			})
		}

		out[name] = entry
	}
	return out, nil
}

func (b *Builder) actions(t *thing.Thing, baseURL string) (map[string]any, error) {
	actions := t.Actions()
	names := sortedActionKeys(actions)

	out := make(map[string]any, len(actions))
	for _, name := range names {
		a := actions[name]
		input, err := a.InputSchema()
		if err != nil {
			return nil, fmt.Errorf("tdoc: input schema for action %q: %w", name, err)
		}
		output, err := a.OutputSchema()
		if err != nil {
			return nil, fmt.Errorf("tdoc: output schema for action %q: %w", name, err)
		}

		entry := map[string]any{
			"title":      a.Title(),
			"safe":       a.Safe(),
			"idempotent": a.Idempotent(),
			"input":      cloneSchema(input),
			"output":     cloneSchema(output),
		}
		if a.Description() != "" {
			entry["description"] = a.Description()
		}

		href := fmt.Sprintf("%s/%s/%s", baseURL, t.Name(), name)
		entry["forms"] = []map[string]any{{"href": href, "op": []string{"invokeaction"}}}

		out[name] = entry
	}
	return out, nil
}

func (b *Builder) events(t *thing.Thing, baseURL string) map[string]any {
	events := t.Events()
	names := make([]string, 0, len(events))
	for name := range events {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(events))
	for _, name := range names {
		e := events[name]
		entry := map[string]any{"title": e.Title()}
		if e.Description() != "" {
			entry["description"] = e.Description()
		}
		entry["forms"] = []map[string]any{{
			"href":        fmt.Sprintf("%s/%s/ws", wsURL(baseURL), t.Name()),
			"op":          []string{"subscribeevent"},
			"subprotocol": "labthings",
		}}
		out[name] = entry
	}
	return out
}

func sortedKeys(m map[string]affordance.Property) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedActionKeys(m map[string]affordance.Action) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// cloneSchema copies the generated DataSchema map so mutating it per-form
// (adding title/description/forms) never corrupts the shared descriptor's
// own cached schema.
func cloneSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+4)
	for k, v := range schema {
		out[k] = v
	}
	return out
}

// wsURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsURL(baseURL string) string {
	switch {
	case len(baseURL) >= 5 && baseURL[:5] == "https":
		return "wss" + baseURL[5:]
	case len(baseURL) >= 4 && baseURL[:4] == "http":
		return "ws" + baseURL[4:]
	default:
		return baseURL
	}
}
