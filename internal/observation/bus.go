// Package observation implements the observation bus: a per-Thing
// publish/subscribe fan-out of property-change, action-status, and event
// messages to WebSocket subscribers. The hub/subscriber-channel shape is
// grounded on wostzone-wost-go's ExposedThing event-emission methods
// (EmitEvent/EmitPropertyChange/EmitPropertiesChange), generalized from a
// single flat emitter into a per-Thing hub so each Thing's subscribers only
// see that Thing's traffic.
package observation

import (
	"sync"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/metrics"
)

// subscriberBuffer bounds how many unread messages a slow subscriber can
// accumulate before new publishes are dropped for it rather than blocking
// the publisher. A slow WebSocket client degrades to missed updates, never
// to a stalled server.
const subscriberBuffer = 64

// Subscriber receives ObservationMessages for the affordances it has
// requested. Name filtering (which properties/actions/events it cares
// about) is the caller's responsibility; the Hub fans every message on the
// Thing out to every Subscriber and the WS layer filters per connection,
// matching the original subprotocol's per-connection observe/unobserve
// commands.
type Subscriber struct {
	ch     chan domain.ObservationMessage
	closed bool
	mu     sync.Mutex
}

func newSubscriber() *Subscriber {
	return &Subscriber{ch: make(chan domain.ObservationMessage, subscriberBuffer)}
}

// C returns the channel to range over for incoming messages.
func (s *Subscriber) C() <-chan domain.ObservationMessage { return s.ch }

func (s *Subscriber) send(msg domain.ObservationMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// Subscriber too slow; drop rather than block the publisher.
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Hub is the observation bus for a single Thing.
type Hub struct {
	thing string

	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// NewHub creates a Hub for the named Thing.
func NewHub(thing string) *Hub {
	return &Hub{thing: thing, subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new Subscriber. The caller must call Unsubscribe
// when the connection using it closes — there is no weak-reference cleanup
// in Go, so this explicit removal is the chosen resolution of spec.md's
// weak-reference requirement (see DESIGN.md).
func (h *Hub) Subscribe() *Subscriber {
	s := newSubscriber()
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	metrics.SetObservationSubscribers(h.thing, count)
	return s
}

// Unsubscribe removes and closes a Subscriber's channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[s]
	delete(h.subscribers, s)
	count := len(h.subscribers)
	h.mu.Unlock()
	if ok {
		s.close()
	}
	metrics.SetObservationSubscribers(h.thing, count)
}

// Publish fans msg out to every current subscriber, non-blocking.
func (h *Hub) Publish(msg domain.ObservationMessage) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.send(msg)
	}
	metrics.Global().RecordObservationMessage(h.thing, string(msg.Kind))
}

// SubscriberCount returns the current number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Registry holds one Hub per Thing, created lazily on first use.
type Registry struct {
	mu   sync.Mutex
	hubs map[string]*Hub
}

// NewRegistry creates an empty Hub registry.
func NewRegistry() *Registry {
	return &Registry{hubs: make(map[string]*Hub)}
}

// Hub returns the Hub for a Thing, creating it if this is the first request.
func (r *Registry) Hub(thing string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[thing]
	if !ok {
		h = NewHub(thing)
		r.hubs[thing] = h
	}
	return h
}
