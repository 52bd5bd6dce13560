package observation

import (
	"testing"
	"time"

	"github.com/oriys/labthings/internal/domain"
)

func TestHubPublishFansOutToAllSubscribers(t *testing.T) {
	h := NewHub("counter")
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	msg := domain.ObservationMessage{Kind: domain.KindProperty, Name: "count", Time: time.Now(), Data: 1}
	h.Publish(msg)

	for _, sub := range []*Subscriber{a, b} {
		select {
		case got := <-sub.C():
			if got.Name != "count" {
				t.Fatalf("expected count, got %q", got.Name)
			}
		case <-time.After(time.Second):
			t.Fatal("expected to receive the published message")
		}
	}
}

func TestHubUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	h := NewHub("counter")
	s := h.Subscribe()
	h.Unsubscribe(s)

	if _, ok := <-s.C(); ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}

	if h.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", h.SubscriberCount())
	}
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub("counter")
	s := h.Subscribe()
	h.Unsubscribe(s)
	h.Unsubscribe(s) // must not panic on double-close
}

func TestHubPublishToSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	h := NewHub("counter")
	s := h.Subscribe()
	defer h.Unsubscribe(s)

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(domain.ObservationMessage{Kind: domain.KindProperty, Name: "count", Time: time.Now(), Data: i})
	}
	// Publish must return promptly even once the subscriber's buffer is full;
	// reaching this line without blocking is the assertion.
}

func TestRegistryReturnsSameHubForSameThing(t *testing.T) {
	r := NewRegistry()
	a := r.Hub("counter")
	b := r.Hub("counter")
	if a != b {
		t.Fatal("expected the same Hub instance for repeated lookups of the same thing")
	}
	other := r.Hub("sensor")
	if other == a {
		t.Fatal("expected a distinct Hub for a different thing name")
	}
}
