package overlay

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// Overlays are loaded by OBS browser sources from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsClient) Close() error { return c.conn.Close() }

// Handler upgrades the request to a websocket and keeps the client registered
// until the connection closes. Inbound messages are read and discarded.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("overlay upgrade failed", slog.String("component", "overlay"), slog.Any("err", err))
			return
		}
		// Clear any deadline left by the HTTP server; clients idle for hours.
		_ = conn.SetReadDeadline(time.Time{})
		c := &wsClient{conn: conn}
		h.Register(c)
		defer func() {
			h.Unregister(c)
			_ = c.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Error("overlay websocket error", slog.String("component", "overlay"), slog.Any("err", err))
				}
				return
			}
		}
	}
}
