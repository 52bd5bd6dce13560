package affordance

import (
	"fmt"

	"github.com/oriys/labthings/internal/domain"
)

// Event is a named occurrence a Thing can emit on its observation bus
// without being tied to a property's value or an action's invocation
// status — a WoT event affordance. Unlike Property and Action, an Event
// descriptor carries no handler: emission is triggered by Thing code
// calling Server.Emit/Thing.Emit directly with a value.
type Event struct {
	name        string
	title       string
	description string
}

// EventConfig configures a new Event descriptor.
type EventConfig struct {
	Name        string
	Title       string
	Description string
}

// NewEvent constructs an Event descriptor.
func NewEvent(cfg EventConfig) (*Event, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: event name must not be empty", domain.ErrConfiguration)
	}
	return &Event{name: cfg.Name, title: cfg.Title, description: cfg.Description}, nil
}

func (e *Event) Name() string        { return e.name }
func (e *Event) Title() string       { return e.title }
func (e *Event) Description() string { return e.description }
