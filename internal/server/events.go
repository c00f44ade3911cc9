// ABOUTME: WebSocket stream of storage events for the persisted keys
// ABOUTME: One write pump per connection, with ping keepalive and a read pump for close detection

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/spinwheel/internal/history"
	"github.com/2389/spinwheel/internal/notify"
	"github.com/2389/spinwheel/internal/settings"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsReadTimeout    = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 1024
)

// streamedKeys are the storage keys forwarded to websocket clients.
var streamedKeys = map[string]bool{
	settings.StorageKey: true,
	history.StorageKey:  true,
}

// handleEvents handles GET /api/events, upgrading to a websocket that
// receives every StorageEvent for the persisted keys as a JSON text message.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, subID := s.bus.Subscribe(ctx, notify.AllKeys, "")
	log := s.logger.With("sub_id", subID, "remote_addr", r.RemoteAddr)
	log.Debug("websocket client connected")

	go readPump(conn, cancel)
	writePump(ctx, conn, events, log.Warn)

	_ = conn.Close()
	log.Debug("websocket client disconnected")
}

// readPump discards client messages and cancels once the connection fails.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

// writePump forwards events until ctx ends or events closes.
func writePump(ctx context.Context, conn *websocket.Conn, events <-chan notify.StorageEvent, warn func(string, ...any)) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if !streamedKeys[ev.Key] {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				warn("failed to encode storage event", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				warn("failed to write to websocket", "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
