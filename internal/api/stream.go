package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const streamWriteTimeout = 10 * time.Second

// StreamManager tracks the open snapshot streams so they can be closed on
// shutdown.
type StreamManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewStreamManager creates a new stream manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		active: make(map[string]*websocket.Conn),
	}
}

// Register adds a stream connection.
func (m *StreamManager) Register(streamID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[streamID] = conn
	slog.Info("Data stream registered", "stream_id", streamID, "active", len(m.active))
}

// Unregister removes a stream connection.
func (m *StreamManager) Unregister(streamID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.active[streamID]; ok && current == conn {
		delete(m.active, streamID)
		slog.Info("Data stream unregistered", "stream_id", streamID, "active", len(m.active))
	}
}

// Count returns the number of open streams.
func (m *StreamManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll closes every open stream.
func (m *StreamManager) CloseAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, conn := range m.active {
		_ = conn.Close(websocket.StatusGoingAway, reason)
		slog.Info("Data stream closed", "stream_id", id, "reason", reason)
	}
	m.active = make(map[string]*websocket.Conn)
}

// ServeStream upgrades to a WebSocket and pushes a snapshot of the aggregate
// record after every change, starting with the current one. Messages from
// the client are ignored.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	streamID := uuid.NewString()
	h.streams.Register(streamID, ws)
	defer h.streams.Unregister(streamID, ws)

	ctx := ws.CloseRead(r.Context())
	snapshots, unsubscribe := h.data.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Data stream closed by client", "stream_id", streamID)
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := writeSnapshot(ctx, ws, snap); err != nil {
				if websocket.CloseStatus(err) == -1 {
					slog.Warn("Data stream write failed", "error", err, "stream_id", streamID)
				}
				return
			}
		}
	}
}

// originHosts converts CORS origins into the host patterns the WebSocket
// origin check matches against. Same-host requests are always accepted.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			hosts = append(hosts, "*")
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			hosts = append(hosts, origin)
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

func writeSnapshot(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
