package observation

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriys/labthings/internal/domain"
)

func TestParseMessageTypeRecognizesAllCommands(t *testing.T) {
	cases := map[string]struct {
		kind      domain.AffordanceKind
		subscribe bool
	}{
		"observeproperty":   {domain.KindProperty, true},
		"unobserveproperty": {domain.KindProperty, false},
		"observeaction":     {domain.KindAction, true},
		"unobserveaction":   {domain.KindAction, false},
		"subscribeevent":    {domain.KindEvent, true},
		"unsubscribeevent":  {domain.KindEvent, false},
	}
	for mt, want := range cases {
		kind, subscribe, ok := parseMessageType(mt)
		if !ok || kind != want.kind || subscribe != want.subscribe {
			t.Errorf("parseMessageType(%q) = %v, %v, %v; want %v, %v, true", mt, kind, subscribe, ok, want.kind, want.subscribe)
		}
	}
	if _, _, ok := parseMessageType("bogus"); ok {
		t.Error("expected bogus messageType to be rejected")
	}
}

func TestWantedSetAddRemoveHas(t *testing.T) {
	w := newWantedSet()
	if w.has(domain.KindProperty, "count") {
		t.Fatal("expected nothing wanted initially")
	}
	w.add(domain.KindProperty, "count")
	if !w.has(domain.KindProperty, "count") {
		t.Fatal("expected count to be wanted after add")
	}
	w.remove(domain.KindProperty, "count")
	if w.has(domain.KindProperty, "count") {
		t.Fatal("expected count to no longer be wanted after remove")
	}
}

func TestHandlerForwardsObservedPropertyUpdates(t *testing.T) {
	hub := NewHub("counter")
	resolve := func(kind domain.AffordanceKind, name string) (bool, bool) {
		return kind == domain.KindProperty && name == "count", true
	}

	srv := httptest.NewServer(Handler(hub, resolve))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(clientCommand{MessageType: "observeproperty", Data: struct {
		Name string `json:"name"`
	}{Name: "count"}}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	// Give the server a moment to process the subscribe command before
	// publishing, since there is no ack message in this subprotocol.
	time.Sleep(50 * time.Millisecond)

	hub.Publish(domain.ObservationMessage{Kind: domain.KindProperty, Name: "count", Time: time.Now(), Data: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got serverMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.MessageType != "propertyStatus" {
		t.Fatalf("expected propertyStatus, got %q", got.MessageType)
	}
	data, ok := got.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected Data to be an object, got %T", got.Data)
	}
	if v, ok := data["count"]; !ok || v != float64(3) {
		t.Fatalf(`expected Data to be {"count": 3}, got %v`, data)
	}
}

func TestDataForBuildsDocumentedPerKindShapes(t *testing.T) {
	prop := dataFor(domain.ObservationMessage{Kind: domain.KindProperty, Name: "count", Data: 3})
	if m, ok := prop.(map[string]any); !ok || m["count"] != 3 {
		t.Fatalf(`propertyStatus: expected {"count": 3}, got %v`, prop)
	}

	action := dataFor(domain.ObservationMessage{Kind: domain.KindAction, Name: "increment", Data: "running"})
	m, ok := action.(map[string]any)
	if !ok || m["action name"] != "increment" || m["status"] != "running" {
		t.Fatalf(`actionStatus: expected {"action name": "increment", "status": "running"}, got %v`, action)
	}

	event := dataFor(domain.ObservationMessage{Kind: domain.KindEvent, Name: "overload", Data: 42})
	if m, ok := event.(map[string]any); !ok || m["overload"] != 42 {
		t.Fatalf(`event: expected {"overload": 42}, got %v`, event)
	}
}
