package invocation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/labthings/internal/domain"
)

func waitTerminal(t *testing.T, m *Manager, inv domain.Invocation) domain.Invocation {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		got, ok := m.Get(inv.ID)
		if !ok {
			t.Fatal("invocation disappeared before reaching a terminal state")
		}
		if got.Status.Terminal() {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("invocation never reached a terminal state, last status %s", got.Status)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitCompletesSuccessfully(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	inv, err := m.Submit(context.Background(), "thing", "action", nil, func(ctx *Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if inv.Status != domain.StatusPending {
		t.Fatalf("expected initial status pending, got %s", inv.Status)
	}

	final := waitTerminal(t, m, inv)
	if final.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", final.Status, final.Error)
	}
	if final.Output != "ok" {
		t.Fatalf("expected output ok, got %v", final.Output)
	}
}

func TestSubmitRecordsHandlerError(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	inv, err := m.Submit(context.Background(), "thing", "action", nil, func(ctx *Context) (any, error) {
		return nil, domain.ErrInvocation
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitTerminal(t, m, inv)
	if final.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", final.Status)
	}
}

func TestSubmitRecoversHandlerPanic(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	inv, err := m.Submit(context.Background(), "thing", "action", nil, func(ctx *Context) (any, error) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitTerminal(t, m, inv)
	if final.Status != domain.StatusError {
		t.Fatalf("expected a recovered panic to surface as error status, got %s", final.Status)
	}
}

func TestCancelStopsACooperativeHandler(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	started := make(chan struct{})
	inv, err := m.Submit(context.Background(), "thing", "action", nil, func(ctx *Context) (any, error) {
		close(started)
		if err := ctx.CancellableSleep(5 * time.Second); err != nil {
			return nil, err
		}
		return "finished", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	if err := m.Cancel(inv.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	final := waitTerminal(t, m, inv)
	if final.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
}

func TestCancelOnUnknownIDReturnsNotFound(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	if err := m.Cancel(uuid.New()); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersByThingAndAction(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	a, _ := m.Submit(context.Background(), "a", "x", nil, func(ctx *Context) (any, error) { return nil, nil })
	waitTerminal(t, m, a)
	b, _ := m.Submit(context.Background(), "b", "y", nil, func(ctx *Context) (any, error) { return nil, nil })
	waitTerminal(t, m, b)

	onlyA := m.List("a", "")
	if len(onlyA) != 1 || onlyA[0].Thing != "a" {
		t.Fatalf("expected one invocation for thing a, got %v", onlyA)
	}

	all := m.List("", "")
	if len(all) != 2 {
		t.Fatalf("expected 2 invocations total, got %d", len(all))
	}
}
