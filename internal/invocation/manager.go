// Package invocation implements the action invocation manager: a
// mutex-guarded in-memory registry of Invocation records, a per-action
// worker goroutine per call, cooperative cancellation, and a TTL sweep that
// reclaims terminal invocations so the registry does not grow without
// bound. The registry shape and sweep loop are grounded on the teacher's
// jobtracker.Tracker; running each invocation on its own goroutine rather
// than a shared pool is grounded on the teacher's asyncqueue.WorkerPool
// per-job-goroutine model, simplified because an invocation's cost is
// dominated by the handler itself rather than by scheduling overhead.
package invocation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/logging"
	"github.com/oriys/labthings/internal/metrics"
	"github.com/oriys/labthings/internal/telemetry"
)

// Handler is the ready-to-run body of an action invocation. It receives the
// per-call Context and returns the action's output (which may be a
// domain.Blob) or an error. The Handlers built by the HTTP layer and by
// thing.Client decode the raw input inside the invocation, so input that
// does not decode ends the invocation with an error rather than being
// rejected before Submit.
type Handler func(*Context) (any, error)

// Entry bundles together everything the registry tracks for one invocation:
// its public record plus the bookkeeping the manager needs to cancel it.
type entry struct {
	mu     sync.Mutex
	record domain.Invocation
	cancel context.CancelFunc
}

// Manager owns the invocation registry for a server: submitting new
// invocations, looking them up, requesting cancellation, and sweeping
// terminal entries past their retention window.
type Manager struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	blobs   domain.Store
	urlFor  func(string) string
	publish func(thing string, msg domain.ObservationMessage)

	retention time.Duration // how long a terminal invocation stays queryable
	maxSize   int           // hard cap, 0 = unlimited

	closeOnce sync.Once
	stopSweep chan struct{}
}

// Config controls Manager behavior.
type Config struct {
	// Retention is how long a completed/cancelled/errored invocation
	// remains in the registry before the sweep loop reclaims it. Zero
	// selects a 1 hour default.
	Retention time.Duration
	// MaxSize caps the number of tracked invocations; 0 means unlimited.
	MaxSize int
	Blobs   domain.Store
	URLFor  func(string) string
	// Publish delivers an actionStatus ObservationMessage to the named
	// Thing's observation hub on every status transition (pending, running,
	// then the terminal status). Nil disables publishing, e.g. in tests that
	// do not exercise the observation bus.
	Publish func(thing string, msg domain.ObservationMessage)
}

// NewManager creates a Manager and starts its background sweep loop.
func NewManager(cfg Config) *Manager {
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	m := &Manager{
		entries:   make(map[uuid.UUID]*entry),
		blobs:     cfg.Blobs,
		urlFor:    cfg.URLFor,
		publish:   cfg.Publish,
		retention: retention,
		maxSize:   cfg.MaxSize,
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// publishStatus notifies the Thing's observation hub of an actionStatus
// transition, matching spec.md §4.4/§7's "on every transition, an event is
// published" — the original's descriptors/action.py sends one actionStatus
// notification per pending/running/completed-or-failed transition.
func (m *Manager) publishStatus(thing, action string, status domain.InvocationStatus) {
	if m.publish == nil {
		return
	}
	m.publish(thing, domain.ObservationMessage{
		Kind: domain.KindAction,
		Name: action,
		Time: time.Now(),
		Data: string(status),
	})
}

// Submit creates a new Invocation in Pending state, starts it running on
// its own goroutine, and returns the record as it stood at submission time
// (Status Pending). Callers poll Get or observe the Thing's observation bus
// for subsequent status changes.
//
// ctx is the caller's context (an HTTP request's, or an in-process Client
// caller's) used only to carry the active trace span across the worker
// goroutine boundary — context values do not cross a `go` statement
// implicitly, so the trace context is extracted here and re-injected in run.
// Submit does not otherwise observe ctx: cancelling it does not cancel the
// invocation, which is why the invocation's own cancel channel is independent.
func (m *Manager) Submit(ctx context.Context, thing, action string, input any, fn Handler) (domain.Invocation, error) {
	if m.maxSize > 0 {
		m.mu.RLock()
		full := len(m.entries) >= m.maxSize
		m.mu.RUnlock()
		if full {
			return domain.Invocation{}, domain.ErrConflictOrUnavailable
		}
	}

	id := uuid.New()
	rec := domain.Invocation{
		ID:            id,
		Thing:         thing,
		Action:        action,
		Status:        domain.StatusPending,
		TimeRequested: time.Now(),
		Input:         input,
	}

	e := &entry{record: rec}
	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()

	metrics.SetActiveInvocations(thing, action, m.activeCount(thing, action))
	m.publishStatus(thing, action, domain.StatusPending)

	tc := telemetry.ExtractTraceContext(ctx)

	goCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	go m.run(e, goCtx, tc, fn)

	return rec, nil
}

func (m *Manager) run(e *entry, goCtx context.Context, tc telemetry.TraceContext, fn Handler) {
	goCtx = telemetry.InjectTraceContext(goCtx, tc)

	e.mu.Lock()
	e.record.Status = domain.StatusRunning
	started := time.Now()
	e.record.TimeStarted = &started
	id, thing, action := e.record.ID, e.record.Thing, e.record.Action
	e.mu.Unlock()
	m.publishStatus(thing, action, domain.StatusRunning)

	base := logging.Op()
	invCtx := &Context{
		goCtx:  goCtx,
		id:     id,
		thing:  thing,
		action: action,
		blobs:  m.blobs,
		urlFor: m.urlFor,
	}
	invCtx.logger = newInvocationLogger(base, func(rec domain.LogRecord) {
		e.mu.Lock()
		e.record.Log = append(e.record.Log, rec)
		e.mu.Unlock()
	})

	tracedCtx, span := telemetry.StartSpan(goCtx, "invocation."+thing+"."+action,
		telemetry.AttrThingName.String(thing),
		telemetry.AttrActionName.String(action),
		telemetry.AttrInvocationID.String(id.String()),
	)
	invCtx.goCtx = tracedCtx
	defer span.End()

	output, err := m.runHandlerRecovered(invCtx, fn)

	e.mu.Lock()
	completed := time.Now()
	e.record.TimeCompleted = &completed
	switch {
	case err == nil:
		e.record.Status = domain.StatusCompleted
		e.record.Output = output
	case isCancelled(err):
		e.record.Status = domain.StatusCancelled
		e.record.Error = err.Error()
	default:
		e.record.Status = domain.StatusError
		e.record.Error = err.Error()
	}
	finalStatus := e.record.Status
	status := string(finalStatus)
	duration := e.record.DurationMs()
	e.mu.Unlock()
	m.publishStatus(thing, action, finalStatus)

	if err != nil {
		telemetry.SetSpanError(span, err)
	} else {
		telemetry.SetSpanOK(span)
	}
	span.SetAttributes(telemetry.AttrInvocationStat.String(status))

	metrics.Global().RecordInvocation(thing, action, status, duration)
	metrics.SetActiveInvocations(thing, action, m.activeCount(thing, action))
}

// runHandlerRecovered isolates a single invocation's handler panic from the
// rest of the server: a recovered panic becomes ErrUnexpected rather than
// taking down the process, matching spec.md's "Unexpected" internal
// exception category.
func (m *Manager) runHandlerRecovered(ctx *Context, fn Handler) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Error("invocation handler panicked", "thing", ctx.thing, "action", ctx.action, "panic", r)
			err = domain.ErrUnexpected
		}
	}()
	return fn(ctx)
}

func isCancelled(err error) bool {
	return err == domain.ErrCancelled
}

// Get returns a copy of the invocation record for id, or
// (domain.Invocation{}, false) if unknown (either never submitted, or
// already swept past its retention window).
func (m *Manager) Get(id uuid.UUID) (domain.Invocation, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return domain.Invocation{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, true
}

// List returns a copy of every tracked invocation, optionally filtered by
// thing and/or action (empty string matches any).
func (m *Manager) List(thing, action string) []domain.Invocation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Invocation, 0, len(m.entries))
	for _, e := range m.entries {
		e.mu.Lock()
		rec := e.record
		e.mu.Unlock()
		if thing != "" && rec.Thing != thing {
			continue
		}
		if action != "" && rec.Action != action {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Cancel requests cancellation of a running invocation. Cancellation is
// cooperative: the handler must itself observe ctx.Done()/RaiseIfCancelled.
// Returns domain.ErrNotFound if id is unknown, nil if cancellation was
// requested (even if the invocation has already finished — requesting
// cancellation of a terminal invocation is a no-op, not an error).
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	e.mu.Lock()
	cancel := e.cancel
	terminal := e.record.Status.Terminal()
	e.mu.Unlock()

	if terminal {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (m *Manager) activeCount(thing, action string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		e.mu.Lock()
		if e.record.Thing == thing && e.record.Action == action && !e.record.Status.Terminal() {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// sweepLoop periodically removes terminal invocations older than the
// retention window, mirroring jobtracker.Tracker's cleanupLoop.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.retention / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		e.mu.Lock()
		expired := e.record.Status.Terminal() && e.record.TimeCompleted != nil &&
			now.Sub(*e.record.TimeCompleted) > m.retention
		e.mu.Unlock()
		if expired {
			delete(m.entries, id)
		}
	}
}

// Close stops the background sweep loop. Safe to call multiple times.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopSweep)
	})
}
