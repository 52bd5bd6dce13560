package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/invocation"
	"github.com/oriys/labthings/internal/logging"
	"github.com/oriys/labthings/internal/observation"
)

// handleRoot lists the mounted Things' names.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	names := s.things.Things()
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

// handleThingDescriptions returns a map of each Thing's path to its TD.
func (s *Server) handleThingDescriptions(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	out := make(map[string]json.RawMessage)
	for _, name := range s.things.Things() {
		t, ok := s.things.Thing(name)
		if !ok {
			continue
		}
		doc, err := s.td.Get(r.Context(), t, base)
		if err != nil {
			writeError(w, err)
			return
		}
		out["/"+name] = doc
	}
	writeJSON(w, http.StatusOK, out)
}

// handleThingsList returns a map of each Thing's name to its base URL.
func (s *Server) handleThingsList(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	out := make(map[string]string)
	for _, name := range s.things.Things() {
		out[name] = fmt.Sprintf("%s/%s", base, name)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleThingDescription serves one Thing's TD.
func (s *Server) handleThingDescription(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thingOrNotFound(w, r.PathValue("thing"))
	if !ok {
		return
	}
	doc, err := s.td.Get(r.Context(), t, s.baseURL(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// handleAffordanceGet dispatches GET {thing}/{name} to either a property
// read or an action's invocation list, whichever name resolves to.
func (s *Server) handleAffordanceGet(w http.ResponseWriter, r *http.Request) {
	thingName := r.PathValue("thing")
	name := r.PathValue("name")
	t, ok := s.thingOrNotFound(w, thingName)
	if !ok {
		return
	}

	if p, ok := t.Property(name); ok {
		raw, err := p.GetJSON()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		return
	}

	if _, ok := t.Action(name); ok {
		list := s.things.Invocations.List(thingName, name)
		writeJSON(w, http.StatusOK, toInvocationViews(list, s.baseURL(r)))
		return
	}

	if sett, ok := t.Setting(name); ok {
		raw, err := sett.GetJSON()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		return
	}

	writeError(w, domain.ErrNotFound)
}

// handlePropertyPut validates and applies a property write, publishing the
// change to the observation bus on success.
func (s *Server) handlePropertyPut(w http.ResponseWriter, r *http.Request) {
	thingName := r.PathValue("thing")
	name := r.PathValue("name")
	t, ok := s.thingOrNotFound(w, thingName)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %s", domain.ErrValidationFailed, err))
		return
	}

	if p, ok := t.Property(name); ok {
		applied, err := p.SetJSON(body)
		if err != nil {
			writeError(w, err)
			return
		}
		t.PublishPropertyChange(name, applied)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(applied)
		return
	}

	if sett, ok := t.Setting(name); ok {
		if err := sett.LoadJSON(body); err != nil {
			writeError(w, err)
			return
		}
		if store := s.things.Settings; store != nil {
			if err := store.Save(thingName, t.Settings()); err != nil {
				logging.Op().Warn("settings save failed", "thing", thingName, "setting", name, "err", err)
			}
		}
		raw, err := sett.GetJSON()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(raw)
		return
	}

	writeError(w, domain.ErrNotFound)
}

// handleActionPost submits a new invocation, returning its Pending record
// with 201. The body is decoded into the action's input type inside the
// invocation, not before submission: a body that does not decode still gets
// 201, and the invocation then ends with status error.
func (s *Server) handleActionPost(w http.ResponseWriter, r *http.Request) {
	thingName := r.PathValue("thing")
	name := r.PathValue("name")
	t, ok := s.thingOrNotFound(w, thingName)
	if !ok {
		return
	}
	action, ok := t.Action(name)
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %s", domain.ErrValidationFailed, err))
		return
	}

	inv, err := s.things.Invocations.Submit(r.Context(), thingName, name, body, func(invCtx *invocation.Context) (any, error) {
		return action.Invoke(invCtx, body)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInvocationView(inv, s.baseURL(r)))
}

// handleInvocationsList lists every tracked invocation across Things.
func (s *Server) handleInvocationsList(w http.ResponseWriter, r *http.Request) {
	list := s.things.Invocations.List("", "")
	writeJSON(w, http.StatusOK, toInvocationViews(list, s.baseURL(r)))
}

// handleInvocationGet polls one invocation by ID.
func (s *Server) handleInvocationGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.ErrNotFound)
		return
	}
	inv, ok := s.things.Invocations.Get(id)
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toInvocationView(inv, s.baseURL(r)))
}

// handleInvocationCancel requests cooperative cancellation of a running
// invocation.
func (s *Server) handleInvocationCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.ErrNotFound)
		return
	}
	inv, ok := s.things.Invocations.Get(id)
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	if inv.Status != domain.StatusPending && inv.Status != domain.StatusRunning {
		writeError(w, domain.ErrConflictOrUnavailable)
		return
	}
	if err := s.things.Invocations.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInvocationOutput returns an invocation's raw output payload.
func (s *Server) handleInvocationOutput(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.ErrNotFound)
		return
	}
	inv, ok := s.things.Invocations.Get(id)
	if !ok {
		writeError(w, domain.ErrNotFound)
		return
	}
	if inv.Status != domain.StatusCompleted || inv.Output == nil {
		writeError(w, domain.ErrConflictOrUnavailable)
		return
	}

	if blob, ok := inv.Output.(domain.Blob); ok {
		writeJSON(w, http.StatusOK, blob)
		return
	}
	writeJSON(w, http.StatusOK, inv.Output)
}

// handleBlob streams a stored blob's content back by ID.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	if s.blobs() == nil {
		writeError(w, domain.ErrNotFound)
		return
	}
	reader, blob, err := s.blobs().Open(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	if blob.ContentType != "" {
		w.Header().Set("Content-Type", blob.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (s *Server) blobs() domain.Store {
	return s.things.Blobs
}

// handleWS upgrades the connection and bridges it to the Thing's
// observation hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	thingName := r.PathValue("thing")
	t, ok := s.thingOrNotFound(w, thingName)
	if !ok {
		return
	}
	hub := t.Hub()
	if hub == nil {
		writeError(w, domain.ErrNotFound)
		return
	}

	resolve := func(kind domain.AffordanceKind, name string) (observable bool, exists bool) {
		switch kind {
		case domain.KindProperty:
			p, ok := t.Property(name)
			if !ok {
				return false, false
			}
			return p.Observable(), true
		case domain.KindAction:
			_, ok := t.Action(name)
			return ok, ok
		case domain.KindEvent:
			_, ok := t.Event(name)
			return ok, ok
		default:
			return false, false
		}
	}

	observation.Handler(hub, resolve)(w, r)
}
