package thing

import (
	"testing"

	"github.com/oriys/labthings/internal/affordance"
)

func newTestThing(t *testing.T, name string) *Thing {
	t.Helper()
	th, err := New(Config{Name: name})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return th
}

func TestAddPropertyRejectsDuplicateName(t *testing.T) {
	th := newTestThing(t, "widget")
	p, err := affordance.NewDataProperty(affordance.DataPropertyConfig[int]{Name: "x"})
	if err != nil {
		t.Fatalf("NewDataProperty: %v", err)
	}
	if err := th.AddProperty(p); err != nil {
		t.Fatalf("first AddProperty: %v", err)
	}
	if err := th.AddProperty(p); err == nil {
		t.Fatal("expected duplicate property name to be rejected")
	}
}

func TestEmitUnknownEventFails(t *testing.T) {
	th := newTestThing(t, "widget")
	if err := th.Emit("nope", nil); err == nil {
		t.Fatal("expected emitting an unregistered event to fail")
	}
}

func TestEmitWithoutHubIsANoop(t *testing.T) {
	th := newTestThing(t, "widget")
	ev, err := affordance.NewEvent(affordance.EventConfig{Name: "tick"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if err := th.AddEvent(ev); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	if err := th.Emit("tick", 1); err != nil {
		t.Fatalf("Emit with no bound hub should not error, got %v", err)
	}
}

func TestPropertiesSnapshotIsACopy(t *testing.T) {
	th := newTestThing(t, "widget")
	p, _ := affordance.NewDataProperty(affordance.DataPropertyConfig[int]{Name: "x"})
	_ = th.AddProperty(p)

	snap := th.Properties()
	delete(snap, "x")
	if _, ok := th.Property("x"); !ok {
		t.Fatal("deleting from a snapshot must not affect the Thing's registry")
	}
}
