package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oriys/labthings/internal/domain"
)

// problemDetail is the JSON error body, matching spec.md §7's
// {status, type, title, detail} shape.
type problemDetail struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps a domain sentinel error to its HTTP status, the way the
// teacher's internal/api/dataplane handlers switch on errors.Is against a
// pool's sentinel errors to pick a response code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, domain.ErrNotAllowed):
		return http.StatusMethodNotAllowed, "NotAllowed"
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusUnprocessableEntity, "ValidationFailed"
	case errors.Is(err, domain.ErrNotObservable):
		return http.StatusForbidden, "NotObservable"
	case errors.Is(err, domain.ErrConflictOrUnavailable):
		return http.StatusServiceUnavailable, "ConflictOrUnavailable"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError, "Configuration"
	case errors.Is(err, domain.ErrServerNotRunning):
		return http.StatusServiceUnavailable, "ServerNotRunning"
	default:
		return http.StatusInternalServerError, "Unexpected"
	}
}

// writeError writes a problemDetail body with the status statusFor(err)
// derives.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeProblem(w, status, kind, err.Error())
}

func writeProblem(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problemDetail{
		Status: status,
		Type:   kind,
		Title:  http.StatusText(status),
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
