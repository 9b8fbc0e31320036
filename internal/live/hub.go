// Package live streams session events to websocket subscribers.
package live

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MJE43/stake-wheel-go/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const writeTimeout = 3 * time.Second

// Hub fans session events out to the websocket connections subscribed to
// that session. It implements session.EventSink.
type Hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[string]map[*websocket.Conn]*subscriber
}

// subscriber serializes writes to one connection so events keep their order
// and none overtakes the hello message.
type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (sub *subscriber) write(ctx context.Context, data []byte) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return sub.conn.Write(ctx, websocket.MessageText, data)
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:     log.Named("live"),
		clients: make(map[string]map[*websocket.Conn]*subscriber),
	}
}

func (h *Hub) add(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[sessionID]
	if !ok {
		subs = make(map[*websocket.Conn]*subscriber)
		h.clients[sessionID] = subs
	}
	subs[sub.conn] = sub
}

func (h *Hub) Remove(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.clients[sessionID]
	delete(subs, conn)
	if len(subs) == 0 {
		delete(h.clients, sessionID)
	}
}

// Subscribers returns the number of connections for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

func (h *Hub) snapshot(sessionID string) []*subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*subscriber, 0, len(h.clients[sessionID]))
	for _, sub := range h.clients[sessionID] {
		subs = append(subs, sub)
	}
	return subs
}

// Broadcast writes message to every connection of a session and drops the
// ones that fail. Writes happen outside the hub lock.
func (h *Hub) Broadcast(sessionID string, message []byte) {
	for _, sub := range h.snapshot(sessionID) {
		if err := sub.write(context.Background(), message); err != nil {
			h.log.Debug("dropping subscriber", zap.String("session_id", sessionID), zap.Error(err))
			_ = sub.conn.Close(websocket.StatusNormalClosure, "")
			h.Remove(sessionID, sub.conn)
		}
	}
}

// Publish sends the event to its session's subscribers. A session.closed
// event also disconnects them.
func (h *Hub) Publish(e session.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	h.Broadcast(e.SessionID, data)

	if e.Type == session.EventSessionClosed {
		h.mu.Lock()
		conns := h.clients[e.SessionID]
		delete(h.clients, e.SessionID)
		h.mu.Unlock()
		for conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
		}
	}
}

// Serve upgrades the request and subscribes the connection to sessionID
// until the client goes away. When hello is non-nil its result is the first
// message; it is evaluated after subscribing, so events published meanwhile
// follow it instead of being lost. Each text frame the client sends is passed
// to onMessage when it is non-nil.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, hello func() any, onMessage func([]byte)) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := &subscriber{conn: conn}
	sub.mu.Lock()
	h.add(sessionID, sub)
	defer h.Remove(sessionID, conn)
	h.log.Debug("subscriber connected", zap.String("session_id", sessionID))

	err = h.greet(r.Context(), conn, hello)
	sub.mu.Unlock()
	if err != nil {
		return err
	}

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			return nil
		}
		if typ == websocket.MessageText && onMessage != nil {
			onMessage(data)
		}
	}
}

// greet writes the hello message. The caller holds the subscriber lock.
func (h *Hub) greet(ctx context.Context, conn *websocket.Conn, hello func() any) error {
	if hello == nil {
		return nil
	}
	data, err := json.Marshal(hello())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
