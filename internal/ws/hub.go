// Package ws maintains the WebSocket channel to the foreground app.
// Outbound events are delivered over it when an instance is
// connected; otherwise the engine defers them to the durable outbox,
// which is drained here on the next connect.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/wakekeeper/wakekeeper/internal/alarm"
	"github.com/wakekeeper/wakekeeper/internal/domain"
	"github.com/wakekeeper/wakekeeper/internal/pkg/metrics"
)

const writeTimeout = 5 * time.Second

// Hub tracks the single active foreground connection. A newer
// connection replaces the previous one.
type Hub struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

var _ alarm.Publisher = (*Hub)(nil)

// Publish delivers an event to the connected foreground instance.
// Returns false when no instance is connected or the write fails, in
// which case the caller defers the event.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) bool {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	if conn == nil {
		return false
	}
	if err := h.write(ctx, conn, ev); err != nil {
		slog.Warn("event delivery failed, deferring", "kind", ev.Kind, "error", err)
		return false
	}
	return true
}

// Connected reports whether a foreground instance is attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// Handler returns the HTTP handler that upgrades a foreground
// connection, drains the deferred outbox to it and holds it open
// until the peer disconnects.
func (h *Hub) Handler(engine *alarm.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", "error", err)
			return
		}

		h.attach(conn)
		slog.Info("foreground connected", "remote_addr", r.RemoteAddr)

		engine.DrainOutbox(r.Context(), func(ev domain.Event) error {
			return h.write(r.Context(), conn, ev)
		})

		// The channel is outbound only; inbound messages arrive over
		// the HTTP API. Reading detects the disconnect.
		readCtx := conn.CloseRead(context.Background())
		<-readCtx.Done()

		h.detach(conn)
		slog.Info("foreground disconnected")
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

func (h *Hub) attach(conn *websocket.Conn) {
	h.mu.Lock()
	prev := h.conn
	h.conn = conn
	h.mu.Unlock()

	metrics.WSConnected.Set(1)
	if prev != nil {
		_ = prev.Close(websocket.StatusPolicyViolation, "replaced by newer connection")
	}
}

func (h *Hub) detach(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
		metrics.WSConnected.Set(0)
	}
	h.mu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
}
