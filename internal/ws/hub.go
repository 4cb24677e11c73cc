package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"aeroguardian/internal/logging"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

// Hub fans published reports and mode changes out to connected clients
type Hub struct {
	clients map[*client]bool
	mu      sync.RWMutex

	dropped atomic.Uint64
	log     zerolog.Logger
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		log:     logging.Component("ws"),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Str("remote", c.remote).Int("total", n).Msg("client registered")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
		h.log.Info().Str("remote", c.remote).Msg("client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped for slow clients
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Broadcast queues message for every client. A client whose queue is full
// misses this message.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.enqueue(message) {
			h.dropped.Add(1)
		}
	}
}

// BroadcastJSON marshals v once and broadcasts it
func (h *Hub) BroadcastJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast")
		return
	}
	h.Broadcast(data)
}

// OnReport implements pipeline.ReportHandler
func (h *Hub) OnReport(event *pipeline.Event) {
	if event == nil || event.Report == nil || h.ClientCount() == 0 {
		return
	}
	msg, err := NewReportMessage(event, true)
	if err != nil {
		h.log.Error().Err(err).Str("event", event.ID).Msg("encode report")
		return
	}
	h.BroadcastJSON(msg)
}

// OnModeChange broadcasts the new mode; its signature matches mode.ChangeListener
func (h *Hub) OnModeChange(_, to mode.Mode) {
	h.BroadcastJSON(NewModeMessage(to))
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]bool)
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// Ensure Hub implements pipeline.ReportHandler
var _ pipeline.ReportHandler = (*Hub)(nil)
