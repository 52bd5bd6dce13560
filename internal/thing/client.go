package thing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/invocation"
)

// Client is a direct, in-process client for a Server's mounted Things —
// the Go analogue of the original's client/in_server.py, which lets code
// running inside the same process call another Thing's affordances
// without the overhead (and serialization round-trip) of going through
// HTTP. Actions still pass through the Manager so invocation
// history, metrics, and logging behave identically to an HTTP-triggered
// call.
type Client struct {
	server *Server
}

// NewClient returns a Client bound to server.
func NewClient(server *Server) *Client {
	return &Client{server: server}
}

// GetProperty reads a property's current value by thing and property name,
// decoded into an untyped value (a Go caller that knows the concrete type
// should instead hold the typed *affordance.DataProperty[T]/FuncProperty[T]
// directly — this path is for generic, name-driven lookups).
func (c *Client) GetProperty(thingName, propertyName string) (any, error) {
	t, ok := c.server.Thing(thingName)
	if !ok {
		return nil, fmt.Errorf("%w: thing %q", domain.ErrNotFound, thingName)
	}
	p, ok := t.Property(propertyName)
	if !ok {
		return nil, fmt.Errorf("%w: property %q on thing %q", domain.ErrNotFound, propertyName, thingName)
	}
	raw, err := p.GetJSON()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnexpected, err)
	}
	return v, nil
}

// SetProperty writes a property's value, raw JSON in, validated and
// applied exactly as the HTTP PUT handler would.
func (c *Client) SetProperty(thingName, propertyName string, raw json.RawMessage) error {
	t, ok := c.server.Thing(thingName)
	if !ok {
		return fmt.Errorf("%w: thing %q", domain.ErrNotFound, thingName)
	}
	p, ok := t.Property(propertyName)
	if !ok {
		return fmt.Errorf("%w: property %q on thing %q", domain.ErrNotFound, propertyName, thingName)
	}
	_, err := p.SetJSON(raw)
	return err
}

// InvokeAndWait submits an action and blocks until it reaches a terminal
// status or ctx is done, returning the completed invocation record.
func (c *Client) InvokeAndWait(ctx context.Context, thingName, actionName string, raw json.RawMessage) (domain.Invocation, error) {
	t, ok := c.server.Thing(thingName)
	if !ok {
		return domain.Invocation{}, fmt.Errorf("%w: thing %q", domain.ErrNotFound, thingName)
	}
	action, ok := t.Action(actionName)
	if !ok {
		return domain.Invocation{}, fmt.Errorf("%w: action %q on thing %q", domain.ErrNotFound, actionName, thingName)
	}

	inv, err := c.server.Invocations.Submit(ctx, thingName, actionName, raw, func(invCtx *invocation.Context) (any, error) {
		return action.Invoke(invCtx, raw)
	})
	if err != nil {
		return domain.Invocation{}, err
	}

	return c.waitForTerminal(ctx, inv.ID)
}

func (c *Client) waitForTerminal(ctx context.Context, id uuid.UUID) (domain.Invocation, error) {
	const pollInterval = 20 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		inv, ok := c.server.Invocations.Get(id)
		if !ok {
			return domain.Invocation{}, fmt.Errorf("%w: invocation %s", domain.ErrNotFound, id)
		}
		if inv.Status.Terminal() {
			return inv, nil
		}

		select {
		case <-ctx.Done():
			return domain.Invocation{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
