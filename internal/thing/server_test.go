package thing

import (
	"context"
	"testing"
)

type lifecycleThing struct {
	*Thing
	setupCalled    bool
	teardownCalled bool
}

func (l *lifecycleThing) ThingBase() *Thing { return l.Thing }
func (l *lifecycleThing) Setup(ctx context.Context) error {
	l.setupCalled = true
	return nil
}
func (l *lifecycleThing) Teardown(ctx context.Context) error {
	l.teardownCalled = true
	return nil
}

func TestServerMountRejectsDuplicateName(t *testing.T) {
	s := NewServer(Config{SettingsDir: t.TempDir()})
	a := &lifecycleThing{Thing: newTestThing(t, "a")}
	if err := s.Mount("a", a); err != nil {
		t.Fatalf("first Mount: %v", err)
	}
	if err := s.Mount("a", a); err == nil {
		t.Fatal("expected mounting a duplicate name to fail")
	}
}

func TestServerStartRunsSetupAndBindsHub(t *testing.T) {
	s := NewServer(Config{SettingsDir: t.TempDir()})
	a := &lifecycleThing{Thing: newTestThing(t, "a")}
	if err := s.Mount("a", a); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.setupCalled {
		t.Fatal("expected Setup to run during Start")
	}
	if a.Thing.Hub() == nil {
		t.Fatal("expected an observation hub to be bound during Start")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !a.teardownCalled {
		t.Fatal("expected Teardown to run during Stop")
	}
}

func TestThingLookupMissesReturnFalse(t *testing.T) {
	s := NewServer(Config{SettingsDir: t.TempDir()})
	if _, ok := s.Thing("nope"); ok {
		t.Fatal("expected lookup of an unmounted thing to miss")
	}
}
