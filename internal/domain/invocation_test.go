package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStatusTerminal(t *testing.T) {
	cases := map[InvocationStatus]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusCancelled: true,
		StatusError:     true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("Terminal() for %s: got %v, want %v", status, got, want)
		}
	}
}

func TestInvocationHrefMatchesRegisteredRoute(t *testing.T) {
	inv := &Invocation{ID: uuid.New(), Thing: "counter", Action: "increment"}
	want := "/action_invocations/" + inv.ID.String()
	if got := inv.Href(); got != want {
		t.Fatalf("Href() = %q, want %q", got, want)
	}
}

func TestDurationMsRequiresBothTimestamps(t *testing.T) {
	inv := &Invocation{}
	if d := inv.DurationMs(); d != 0 {
		t.Fatalf("expected 0 duration with no timestamps, got %d", d)
	}
	start := time.Now()
	end := start.Add(250 * time.Millisecond)
	inv.TimeStarted = &start
	inv.TimeCompleted = &end
	if d := inv.DurationMs(); d != 250 {
		t.Fatalf("expected 250ms duration, got %d", d)
	}
}
