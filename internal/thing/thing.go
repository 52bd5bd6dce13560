// Package thing implements Thing lifecycle (construction, slot resolution,
// Setup/Teardown) and the Server that owns an ordered collection of Things,
// wiring each one to the invocation manager, the observation bus, and
// settings persistence.
package thing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/labthings/internal/affordance"
	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/observation"
)

// Lifecycle is implemented by a Thing that needs setup/teardown hooks run
// when the Server starts/stops it — connecting to hardware, opening a
// device handle, releasing it on shutdown. A Thing that needs neither
// simply does not implement this interface (checked with a type assertion,
// the idiomatic Go stand-in for the original's optional lifecycle methods).
type Lifecycle interface {
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Thing is the runtime registration surface every concrete Thing
// implementation embeds as *thing.Thing, then populates in its constructor
// via AddProperty/AddAction/AddEvent/AddSetting.
type Thing struct {
	name        string
	title       string
	description string

	mu         sync.RWMutex
	properties map[string]affordance.Property
	actions    map[string]affordance.Action
	events     map[string]*affordance.Event
	settings   map[string]affordance.Setting

	hub *observation.Hub
}

// Config names a Thing when it is constructed.
type Config struct {
	Name        string
	Title       string
	Description string
}

// New constructs an empty Thing registration surface. Concrete Thing types
// embed the *Thing that New returns and expose it through Impl.ThingBase.
func New(cfg Config) (*Thing, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: thing name must not be empty", domain.ErrConfiguration)
	}
	return &Thing{
		name:        cfg.Name,
		title:       cfg.Title,
		description: cfg.Description,
		properties:  make(map[string]affordance.Property),
		actions:     make(map[string]affordance.Action),
		events:      make(map[string]*affordance.Event),
		settings:    make(map[string]affordance.Setting),
	}, nil
}

func (t *Thing) Name() string        { return t.name }
func (t *Thing) Title() string       { return t.title }
func (t *Thing) Description() string { return t.description }

// AddProperty registers a property, rejecting a duplicate name eagerly
// (domain.ErrConfiguration) per spec.md's "descriptor mistakes caught at
// registration" rule.
func (t *Thing) AddProperty(p affordance.Property) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.properties[p.Name()]; exists {
		return fmt.Errorf("%w: thing %q already has a property named %q", domain.ErrConfiguration, t.name, p.Name())
	}
	t.properties[p.Name()] = p
	return nil
}

// AddAction registers an action.
func (t *Thing) AddAction(a affordance.Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.actions[a.Name()]; exists {
		return fmt.Errorf("%w: thing %q already has an action named %q", domain.ErrConfiguration, t.name, a.Name())
	}
	t.actions[a.Name()] = a
	return nil
}

// AddEvent registers an event.
func (t *Thing) AddEvent(e *affordance.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.events[e.Name()]; exists {
		return fmt.Errorf("%w: thing %q already has an event named %q", domain.ErrConfiguration, t.name, e.Name())
	}
	t.events[e.Name()] = e
	return nil
}

// AddSetting registers a setting.
func (t *Thing) AddSetting(s affordance.Setting) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.settings[s.Name()]; exists {
		return fmt.Errorf("%w: thing %q already has a setting named %q", domain.ErrConfiguration, t.name, s.Name())
	}
	t.settings[s.Name()] = s
	return nil
}

// Property looks up a registered property by name.
func (t *Thing) Property(name string) (affordance.Property, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.properties[name]
	return p, ok
}

// Action looks up a registered action by name.
func (t *Thing) Action(name string) (affordance.Action, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.actions[name]
	return a, ok
}

// Setting looks up a registered setting by name.
func (t *Thing) Setting(name string) (affordance.Setting, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.settings[name]
	return s, ok
}

// Event looks up a registered event by name.
func (t *Thing) Event(name string) (*affordance.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.events[name]
	return e, ok
}

// Properties returns a snapshot of the registered properties, keyed by
// name. The map is unordered; the TD builder sorts the names itself.
func (t *Thing) Properties() map[string]affordance.Property {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]affordance.Property, len(t.properties))
	for k, v := range t.properties {
		out[k] = v
	}
	return out
}

// Actions returns a snapshot of the registered actions.
func (t *Thing) Actions() map[string]affordance.Action {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]affordance.Action, len(t.actions))
	for k, v := range t.actions {
		out[k] = v
	}
	return out
}

// Events returns a snapshot of the registered events.
func (t *Thing) Events() map[string]*affordance.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*affordance.Event, len(t.events))
	for k, v := range t.events {
		out[k] = v
	}
	return out
}

// Settings returns a snapshot of the registered settings, keyed by name.
func (t *Thing) Settings() map[string]affordance.Setting {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]affordance.Setting, len(t.settings))
	for k, v := range t.settings {
		out[k] = v
	}
	return out
}

// bindHub attaches the observation Hub the Server created for this Thing.
// It wires no property change notifications; those are published through
// PublishPropertyChange. Called once per Thing by Server.Start.
func (t *Thing) bindHub(hub *observation.Hub) {
	t.mu.Lock()
	t.hub = hub
	t.mu.Unlock()
}

// Hub returns the Thing's observation hub, or nil if it has not been
// mounted on a Server yet.
func (t *Thing) Hub() *observation.Hub {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hub
}

// Emit publishes an Event occurrence on the Thing's observation bus. Event
// descriptors carry no handler of their own (unlike Property/Action), so
// this is how Thing code notifies subscribers that one fired, with data as
// the event payload.
func (t *Thing) Emit(event string, data any) error {
	if _, ok := t.Event(event); !ok {
		return fmt.Errorf("%w: event %q", domain.ErrNotFound, event)
	}
	hub := t.Hub()
	if hub == nil {
		return nil
	}
	hub.Publish(domain.ObservationMessage{
		Kind: domain.KindEvent,
		Name: event,
		Time: time.Now(),
		Data: data,
	})
	return nil
}

// PublishPropertyChange notifies observers that an observable property's
// value changed. Call this from a property's OnChange callback.
func (t *Thing) PublishPropertyChange(property string, value any) {
	hub := t.Hub()
	if hub == nil {
		return
	}
	hub.Publish(domain.ObservationMessage{
		Kind: domain.KindProperty,
		Name: property,
		Time: time.Now(),
		Data: value,
	})
}
