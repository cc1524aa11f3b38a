package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/shotengai/internal/adapters/nats"
	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/ports"
	"github.com/samirrijal/shotengai/internal/pkg/metrics"
)

const (
	wsPingInterval = 30 * time.Second
	localsCanWrite = "can_write"
)

// wsConn serializes writes to a websocket connection; gofiber/websocket
// connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.write(websocket.TextMessage, data)
}

func (w *wsConn) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(messageType, data)
}

// keepAlive pings the client until done is closed or a write fails.
func (w *wsConn) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// WebSocketUpgrade refuses plain HTTP requests on websocket routes and
// records whether the caller's token may write.
func WebSocketUpgrade(auth ports.Authorizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(localsCanWrite, auth != nil && auth.CanWrite(bearerToken(c)))
		return c.Next()
	}
}

// changeMessage is pushed to change-feed clients.
type changeMessage struct {
	Type      string    `json:"type"`
	Event     string    `json:"event"`
	FeatureID string    `json:"feature_id"`
	At        time.Time `json:"at"`
}

// ChangeFeedHandler relays feature change events from NATS to connected
// clients. Clients only receive notifications; they refetch on their own.
func ChangeFeedHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("change feed client connected", "remote", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		ws := &wsConn{conn: c}

		if nc == nil {
			_ = ws.writeJSON(fiber.Map{"type": "error", "error": "change feed unavailable"})
			return
		}

		sub, err := nc.Subscribe(natsadapter.SubjectPrefix+">", func(msg *nats.Msg) {
			var evt domain.FeatureEvent
			if err := json.Unmarshal(msg.Data, &evt); err != nil {
				slog.Warn("dropping malformed feature event", "subject", msg.Subject, "error", err)
				return
			}
			_ = ws.writeJSON(changeMessage{
				Type:      "change",
				Event:     string(evt.Type),
				FeatureID: evt.FeatureID,
				At:        evt.At,
			})
		})
		if err != nil {
			slog.Error("change feed subscribe failed", "error", err)
			return
		}
		defer func() { _ = sub.Unsubscribe() }()

		done := make(chan struct{})
		defer close(done)
		go ws.keepAlive(done)

		// Drain client frames until the connection closes.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		slog.Info("change feed client disconnected", "remote", remoteAddr)
	}
}
