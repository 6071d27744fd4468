package overlay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/howlingfantods/hairyrug/telemetry"
)

// Client is one connected display.
type Client interface {
	Send(payload []byte) error
	Close() error
}

// Broadcaster is what timers and the now-playing poller publish to.
type Broadcaster interface {
	Broadcast(m Message)
}

// Hub tracks connected clients and broadcasts messages to all of them.
// A client whose send fails is dropped and closed.
type Hub struct {
	mu      sync.Mutex
	clients map[Client]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[Client]struct{})}
}

// Register adds c to the set.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	telemetry.SetOverlayClients(n)
	slog.Info("overlay connected", slog.String("component", "overlay"), slog.Int("clients", n))
}

// Unregister removes c; removing an unknown client is a no-op.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		telemetry.SetOverlayClients(n)
		slog.Info("overlay disconnected", slog.String("component", "overlay"), slog.Int("clients", n))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends m to every client. Sends happen outside the lock so a slow
// client cannot block Register/Unregister.
func (h *Hub) Broadcast(m Message) {
	payload, err := json.Marshal(m)
	if err != nil {
		slog.Error("overlay message encode failed", slog.String("component", "overlay"), slog.Any("err", err))
		return
	}
	h.mu.Lock()
	targets := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		slog.Info("no overlay clients connected for broadcast", slog.String("component", "overlay"), slog.String("command", m.Command()))
		return
	}
	telemetry.IncVec(telemetry.OverlayBroadcasts, m.Command())

	var dead []Client
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			slog.Error("error sending to overlay client", slog.String("component", "overlay"), slog.Any("err", err))
			telemetry.Inc(telemetry.OverlaySendErrors)
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Unregister(c)
		_ = c.Close()
	}
	slog.Info("broadcast overlay message", slog.String("component", "overlay"), slog.String("command", m.Command()), slog.Int("clients", h.Count()))
}
