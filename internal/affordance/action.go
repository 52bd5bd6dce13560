package affordance

import (
	"encoding/json"
	"fmt"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/invocation"
)

// Action is the non-generic interface every Action[In, Out] satisfies.
// Decode/Invoke takes raw JSON rather than a typed value so a Thing's
// action registry can hold heterogeneous Action[In, Out] instances behind
// one interface.
type Action interface {
	Name() string
	Title() string
	Description() string
	Safe() bool
	Idempotent() bool
	InputSchema() (map[string]any, error)
	OutputSchema() (map[string]any, error)

	// Invoke decodes raw as the action's input type, runs the handler, and
	// returns the handler's typed output value, not yet marshalled (a
	// domain.Blob output is returned as-is like any other value, so the
	// caller can type-switch on it before marshalling).
	Invoke(ctx *invocation.Context, raw json.RawMessage) (any, error)
}

// Handler is an action's business logic: given the per-invocation Context
// and a decoded input value, produce an output value or an error. Go has no
// *args/**kwargs/positional-only parameters, so spec.md's "forbid
// positional-only and variadic" requirement is enforced structurally by
// this fixed signature: the input is one value of type In (typically a
// struct whose fields become the input model; its kind is not checked).
type Handler[In, Out any] func(*invocation.Context, In) (Out, error)

// ActionT is the generic Action descriptor. In and Out are typically
// structs; a one-field struct is the idiomatic stand-in for a
// single-parameter action, and an empty struct{} stands in for "no input"
// or "no output".
type ActionT[In, Out any] struct {
	name        string
	title       string
	description string
	safe        bool
	idempotent  bool
	handler     Handler[In, Out]
}

// ActionConfig configures a new Action[In, Out].
type ActionConfig[In, Out any] struct {
	Name        string
	Title       string
	Description string
	// Safe marks the action as not modifying Thing state (informational,
	// carried through to the Thing Description per the WoT vocabulary).
	Safe bool
	// Idempotent marks repeated identical calls as having the same effect
	// as one call.
	Idempotent bool
	Handler    Handler[In, Out]
}

// NewAction constructs an Action[In, Out]. Name and Handler are required;
// violating this raises domain.ErrConfiguration eagerly.
func NewAction[In, Out any](cfg ActionConfig[In, Out]) (*ActionT[In, Out], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: action name must not be empty", domain.ErrConfiguration)
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("%w: action %q has no handler", domain.ErrConfiguration, cfg.Name)
	}
	return &ActionT[In, Out]{
		name:        cfg.Name,
		title:       cfg.Title,
		description: cfg.Description,
		safe:        cfg.Safe,
		idempotent:  cfg.Idempotent,
		handler:     cfg.Handler,
	}, nil
}

func (a *ActionT[In, Out]) Name() string        { return a.name }
func (a *ActionT[In, Out]) Title() string       { return a.title }
func (a *ActionT[In, Out]) Description() string { return a.description }
func (a *ActionT[In, Out]) Safe() bool          { return a.safe }
func (a *ActionT[In, Out]) Idempotent() bool    { return a.idempotent }

func (a *ActionT[In, Out]) InputSchema() (map[string]any, error) {
	var zero In
	doc, err := schemaGenerator().Generate(&zero)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfiguration, err)
	}
	return doc, nil
}

func (a *ActionT[In, Out]) OutputSchema() (map[string]any, error) {
	var zero Out
	doc, err := schemaGenerator().Generate(&zero)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfiguration, err)
	}
	return doc, nil
}

func (a *ActionT[In, Out]) Invoke(ctx *invocation.Context, raw json.RawMessage) (any, error) {
	var input In
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &input); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrValidationFailed, err)
		}
	}
	output, err := a.handler(ctx, input)
	if err != nil {
		if err == domain.ErrCancelled {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrInvocation, err)
	}
	return output, nil
}

