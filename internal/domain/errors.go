// Package domain holds the core data types shared across the affordance
// runtime: invocation lifecycle, blobs, and the sentinel errors that the
// HTTP and WebSocket boundaries translate into status codes.
package domain

import "errors"

// Sentinel errors returned by the affordance runtime. Callers at the HTTP
// boundary match these with errors.Is (wrapped errors still match) to pick
// a status code; callers elsewhere should treat them as ordinary Go errors.
var (
	// ErrNotFound means the named Thing, property, action, setting, or blob
	// does not exist. Maps to HTTP 404.
	ErrNotFound = errors.New("labthings: not found")

	// ErrNotAllowed means the affordance exists but does not support the
	// requested operation (e.g. writing a read-only property). Maps to HTTP 405.
	ErrNotAllowed = errors.New("labthings: not allowed")

	// ErrValidationFailed means the request body failed schema or constraint
	// validation. Maps to HTTP 422.
	ErrValidationFailed = errors.New("labthings: validation failed")

	// ErrNotObservable means a client tried to subscribe to an affordance
	// that does not support observation. Maps to HTTP 403.
	ErrNotObservable = errors.New("labthings: not observable")

	// ErrConflictOrUnavailable means the operation cannot proceed right now
	// (e.g. the action's retention slot is full, or a dependent Thing is
	// unavailable). Maps to HTTP 503.
	ErrConflictOrUnavailable = errors.New("labthings: conflict or unavailable")

	// ErrCancelled means an invocation was cancelled cooperatively via its
	// cancel event. Surfaced as the invocation's terminal status, not as an
	// HTTP error by itself.
	ErrCancelled = errors.New("labthings: invocation cancelled")

	// ErrInvocation wraps a handler-returned error that is not one of the
	// above sentinels; it is the catch-all "the action itself failed" case.
	ErrInvocation = errors.New("labthings: invocation error")

	// ErrUnexpected marks an error the runtime did not anticipate — a panic
	// recovered in a worker goroutine, for instance. Always a bug signal.
	ErrUnexpected = errors.New("labthings: unexpected error")

	// ErrConfiguration is raised eagerly at Thing/Server construction time
	// for descriptor mistakes (duplicate names, bad slot types, schema
	// generation failures) rather than deferred to first use.
	ErrConfiguration = errors.New("labthings: configuration error")

	// ErrServerNotRunning means an operation that requires a running server
	// (url_for, blob URL resolution) was attempted before Start or after Stop.
	ErrServerNotRunning = errors.New("labthings: server not running")
)
