package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/danielpatrickdp/signalenv/internal/signals"
)

// #region hub
// Hub fans samples out to connected websocket clients. Slow clients drop
// samples rather than stall the feed.
type Hub struct {
	mu      sync.Mutex
	next    int
	clients map[int]chan signals.Sample
	buffer  int
	logger  *slog.Logger
}

// NewHub creates a hub with a per-client buffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[int]chan signals.Sample), buffer: buffer, logger: logger}
}

// Register adds a client. The returned func removes it and closes its channel.
func (h *Hub) Register() (<-chan signals.Sample, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan signals.Sample, h.buffer)
	h.clients[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Name implements feed.Named.
func (h *Hub) Name() string { return "websocket" }

// Publish implements feed.Sink.
func (h *Hub) Publish(_ context.Context, s signals.Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- s:
		default:
			h.logger.Debug("websocket client lagging", "client", id, "step", s.Step)
		}
	}
	return nil
}

// #endregion hub
