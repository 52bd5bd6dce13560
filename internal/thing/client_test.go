package thing

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/labthings/internal/affordance"
	"github.com/oriys/labthings/internal/invocation"
)

type clientTestThing struct {
	*Thing
	count *affordance.DataProperty[int]
}

func (c *clientTestThing) ThingBase() *Thing { return c.Thing }

func newClientTestThing(t *testing.T) *clientTestThing {
	t.Helper()
	base := newTestThing(t, "widget")
	th := &clientTestThing{Thing: base}
	p, err := affordance.NewDataProperty(affordance.DataPropertyConfig[int]{Name: "count"})
	if err != nil {
		t.Fatalf("NewDataProperty: %v", err)
	}
	th.count = p
	if err := th.AddProperty(p); err != nil {
		t.Fatalf("AddProperty: %v", err)
	}
	bump, err := affordance.NewAction(affordance.ActionConfig[struct{}, struct{}]{
		Name: "bump",
		Handler: func(_ *invocation.Context, _ struct{}) (struct{}, error) {
			p.SetInternal(p.Get() + 1)
			return struct{}{}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewAction: %v", err)
	}
	if err := th.AddAction(bump); err != nil {
		t.Fatalf("AddAction: %v", err)
	}
	return th
}

func TestClientGetAndSetProperty(t *testing.T) {
	s := NewServer(Config{SettingsDir: t.TempDir()})
	th := newClientTestThing(t)
	if err := s.Mount("widget", th); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := NewClient(s)
	if err := client.SetProperty("widget", "count", []byte("7")); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	v, err := client.GetProperty("widget", "count")
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if v.(float64) != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestClientInvokeAndWait(t *testing.T) {
	s := NewServer(Config{SettingsDir: t.TempDir()})
	th := newClientTestThing(t)
	if err := s.Mount("widget", th); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := NewClient(s)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	inv, err := client.InvokeAndWait(ctx, "widget", "bump", nil)
	if err != nil {
		t.Fatalf("InvokeAndWait: %v", err)
	}
	if !inv.Status.Terminal() {
		t.Fatalf("expected a terminal status, got %s", inv.Status)
	}
	if th.count.Get() != 1 {
		t.Fatalf("expected count 1 after bump, got %d", th.count.Get())
	}
}
