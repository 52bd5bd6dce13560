package invocation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/labthings/internal/domain"
)

// Context is passed as the first argument to every action handler. It plays
// the role of the original's per-parameter dependency injection (cancel
// hook, invocation logger, invocation ID, blob context, direct-thing
// client) as a single explicit struct — the idiomatic Go analogue of
// scanning handler parameter annotations at registration time.
type Context struct {
	goCtx context.Context

	id     uuid.UUID
	thing  string
	action string

	logger *slog.Logger
	blobs  domain.Store
	urlFor func(path string) string

	// clients holds direct in-process Thing clients injected by name, the
	// Go rendition of "direct client for a specific Thing class" DI.
	clients map[string]any
}

// ID returns the invocation's identifier.
func (c *Context) ID() uuid.UUID { return c.id }

// Thing returns the name of the Thing this invocation targets.
func (c *Context) Thing() string { return c.thing }

// Action returns the name of the action being invoked.
func (c *Context) Action() string { return c.action }

// Log returns the structured logger that captures this invocation's
// per-call log records (appended to the invocation record's Log field).
func (c *Context) Log() *slog.Logger { return c.logger }

// Blobs returns the blob store an action handler uses to persist binary
// output (see domain.Store, internal/blob).
func (c *Context) Blobs() domain.Store { return c.blobs }

// URLFor resolves a server-relative path (e.g. a blob href) to an absolute
// URL using the server's configured base URL. Returns domain.ErrServerNotRunning
// if called before the server has a listening address.
func (c *Context) URLFor(path string) (string, error) {
	if c.urlFor == nil {
		return "", domain.ErrServerNotRunning
	}
	return c.urlFor(path), nil
}

// Client returns a previously registered direct Thing client by name, or
// (nil, false) if none was injected under that name.
func (c *Context) Client(name string) (any, bool) {
	v, ok := c.clients[name]
	return v, ok
}

// Done returns the cancellation channel backing this invocation's cancel
// event. An action handler that does long-running work should select on it
// alongside its own work, the same way the original expects handlers to
// call cancellable_sleep rather than a bare time.Sleep.
func (c *Context) Done() <-chan struct{} {
	return c.goCtx.Done()
}

// RaiseIfCancelled returns domain.ErrCancelled if the invocation's cancel
// event has fired, nil otherwise. Handlers call this between steps of a
// longer computation — cancellation in this runtime is always cooperative,
// never preemptive.
func (c *Context) RaiseIfCancelled() error {
	select {
	case <-c.goCtx.Done():
		return domain.ErrCancelled
	default:
		return nil
	}
}

// CancellableSleep blocks for d, or returns domain.ErrCancelled early if the
// invocation is cancelled first.
func (c *Context) CancellableSleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-c.goCtx.Done():
		return domain.ErrCancelled
	}
}

// GoContext returns the underlying context.Context, for handlers that need
// to pass cancellation through to a context-aware library call (an HTTP
// request to a driver, a database query, and so on).
func (c *Context) GoContext() context.Context {
	return c.goCtx
}

// logHandler is a slog.Handler that appends every record it handles to an
// invocation's retained log, in addition to passing it through to the
// operational logger. This is how per-invocation log retrieval
// (GET /action_invocations/{id} -> log field) is populated without a
// second logging call at every handler call site.
type logHandler struct {
	slog.Handler
	record func(domain.LogRecord)
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	rec := domain.LogRecord{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Fields:  fields,
	}
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		rec.TraceID = span.TraceID().String()
		rec.SpanID = span.SpanID().String()
	}
	h.record(rec)
	return h.Handler.Handle(ctx, r)
}

func newInvocationLogger(base *slog.Logger, record func(domain.LogRecord)) *slog.Logger {
	return slog.New(&logHandler{Handler: base.Handler(), record: record})
}
