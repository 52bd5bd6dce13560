// Package httpserver implements the HTTP+WebSocket transport described by
// spec.md §6: one net/http.ServeMux (Go 1.22+ method+path patterns, the
// teacher's own routing style — no third-party router) dispatching to the
// invocation manager, property/setting descriptors, the observation bus,
// blob storage, and the Thing Description cache.
package httpserver

import (
	"net/http"
	"time"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/logging"
	"github.com/oriys/labthings/internal/metrics"
	"github.com/oriys/labthings/internal/tdoc"
	"github.com/oriys/labthings/internal/telemetry"
	"github.com/oriys/labthings/internal/thing"
)

// Server wires a thing.Server and the Thing Description cache into an
// http.Handler.
type Server struct {
	things  *thing.Server
	td      *tdoc.Cache
	mux     *http.ServeMux
	baseURL func(*http.Request) string
}

// New builds the routed http.Handler for things. baseURLFor computes the
// externally visible base URL for a request (honoring a reverse proxy's
// X-Forwarded-* headers if present); pass nil to default to
// request-scheme + request-host.
func New(things *thing.Server, td *tdoc.Cache, baseURLFor func(*http.Request) string) http.Handler {
	s := &Server{things: things, td: td, mux: http.NewServeMux(), baseURL: baseURLFor}
	if s.baseURL == nil {
		s.baseURL = defaultBaseURL
	}
	s.routes()
	return telemetry.HTTPMiddleware(loggingMiddleware(s.mux))
}

func defaultBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /", s.handleRoot)
	s.mux.HandleFunc("GET /thing_descriptions/", s.handleThingDescriptions)
	s.mux.HandleFunc("GET /things/", s.handleThingsList)
	s.mux.HandleFunc("GET /action_invocations", s.handleInvocationsList)
	s.mux.HandleFunc("GET /action_invocations/{id}", s.handleInvocationGet)
	s.mux.HandleFunc("DELETE /action_invocations/{id}", s.handleInvocationCancel)
	s.mux.HandleFunc("GET /action_invocations/{id}/output", s.handleInvocationOutput)
	s.mux.HandleFunc("GET /blob/{id}", s.handleBlob)
	s.mux.Handle("GET /metrics", metrics.PrometheusHandler())

	s.mux.HandleFunc("GET /{thing}/ws", s.handleWS)
	s.mux.HandleFunc("GET /{thing}", s.handleThingDescription)
	s.mux.HandleFunc("GET /{thing}/{name}", s.handleAffordanceGet)
	s.mux.HandleFunc("PUT /{thing}/{name}", s.handlePropertyPut)
	s.mux.HandleFunc("POST /{thing}/{name}", s.handleActionPost)
}

// loggingMiddleware logs each request's method, path, status, and duration
// at Info level through the operational logger.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Op().Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) thingOrNotFound(w http.ResponseWriter, name string) (*thing.Thing, bool) {
	t, ok := s.things.Thing(name)
	if !ok {
		writeError(w, domain.ErrNotFound)
		return nil, false
	}
	return t, true
}
