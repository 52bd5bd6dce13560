package observation

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The affordance runtime has no cross-origin browser client story of
	// its own (see spec.md Non-goals: GUI clients, auth) — origin checking
	// is left to a reverse proxy in front of the server, matching the
	// "security scheme fixed at none" scope boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
)

// clientCommand is the inbound subprotocol message shape: a client sends
// {"messageType":"observeproperty","data":{"name":"..."}} or
// {"messageType":"observeaction", ...} to start receiving updates, and the
// "unobserve*" counterpart to stop.
type clientCommand struct {
	MessageType string `json:"messageType"`
	Data        struct {
		Name string `json:"name"`
	} `json:"data"`
}

// serverMessage is the outbound subprotocol message shape.
type serverMessage struct {
	MessageType string `json:"messageType"`
	Data        any    `json:"data"`
}

// ResolveAffordance reports whether name is a valid, observable affordance
// of the given kind on the Thing backing this connection — the Handler
// calls it to turn an "observeproperty"/"observeaction" command into either
// a subscription or an error message. The error message (messageType
// "error") carries only a text such as "not found: <name>" or
// "not observable: <name>"; it has no status code.
type ResolveAffordance func(kind domain.AffordanceKind, name string) (observable bool, exists bool)

// Handler upgrades an HTTP request to a WebSocket connection and bridges it
// to a Thing's observation Hub, implementing the subprotocol spec.md §6
// describes: per-connection observe/unobserve commands gate which
// affordances' messages are forwarded to this client.
func Handler(hub *Hub, resolve ResolveAffordance) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Op().Warn("observation: websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		sub := hub.Subscribe()
		defer hub.Unsubscribe(sub)

		wanted := newWantedSet()

		done := make(chan struct{})
		go writePump(conn, sub, wanted, done)
		readPump(conn, wanted, resolve)
		close(done)
	}
}

// wantedSet tracks which (kind, name) affordances this connection currently
// wants forwarded, guarded by its own mutex since it is written from
// readPump and read from writePump concurrently.
type wantedSet struct {
	mu   sync.RWMutex
	keys map[string]bool
}

func newWantedSet() *wantedSet {
	return &wantedSet{keys: make(map[string]bool)}
}

func key(kind domain.AffordanceKind, name string) string {
	return string(kind) + ":" + name
}

func (w *wantedSet) add(kind domain.AffordanceKind, name string) {
	w.mu.Lock()
	w.keys[key(kind, name)] = true
	w.mu.Unlock()
}

func (w *wantedSet) remove(kind domain.AffordanceKind, name string) {
	w.mu.Lock()
	delete(w.keys, key(kind, name))
	w.mu.Unlock()
}

func (w *wantedSet) has(kind domain.AffordanceKind, name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.keys[key(kind, name)]
}

func readPump(conn *websocket.Conn, wanted *wantedSet, resolve ResolveAffordance) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			writeError(conn, "invalid message")
			continue
		}

		kind, subscribe, ok := parseMessageType(cmd.MessageType)
		if !ok {
			writeError(conn, "unknown messageType "+cmd.MessageType)
			continue
		}

		if !subscribe {
			wanted.remove(kind, cmd.Data.Name)
			continue
		}

		observable, exists := resolve(kind, cmd.Data.Name)
		if !exists {
			writeError(conn, "not found: "+cmd.Data.Name)
			continue
		}
		if !observable {
			writeError(conn, "not observable: "+cmd.Data.Name)
			continue
		}
		wanted.add(kind, cmd.Data.Name)
	}
}

func parseMessageType(mt string) (kind domain.AffordanceKind, subscribe bool, ok bool) {
	switch mt {
	case "observeproperty":
		return domain.KindProperty, true, true
	case "unobserveproperty":
		return domain.KindProperty, false, true
	case "observeaction":
		return domain.KindAction, true, true
	case "unobserveaction":
		return domain.KindAction, false, true
	case "subscribeevent":
		return domain.KindEvent, true, true
	case "unsubscribeevent":
		return domain.KindEvent, false, true
	default:
		return "", false, false
	}
}

func writePump(conn *websocket.Conn, sub *Subscriber, wanted *wantedSet, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !wanted.has(msg.Kind, msg.Name) {
				continue
			}
			out := serverMessage{
				MessageType: messageTypeFor(msg.Kind),
				Data:        dataFor(msg),
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func messageTypeFor(kind domain.AffordanceKind) string {
	switch kind {
	case domain.KindProperty:
		return "propertyStatus"
	case domain.KindAction:
		return "actionStatus"
	default:
		return "event"
	}
}

// dataFor builds the per-kind Data shape the subprotocol documents:
// propertyStatus carries {<property name>: value}, actionStatus carries
// {"action name": name, "status": status}, and an event carries
// {<event name>: payload}.
func dataFor(msg domain.ObservationMessage) any {
	switch msg.Kind {
	case domain.KindAction:
		return map[string]any{"action name": msg.Name, "status": msg.Data}
	default:
		return map[string]any{msg.Name: msg.Data}
	}
}

func writeError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(serverMessage{MessageType: "error", Data: map[string]string{"message": message}})
}
