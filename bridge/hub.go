// Package bridge exposes the orchestrator over a local WebSocket: events
// are pushed to every connected client and commands come back as JSON.
package bridge

import (
	"encoding/json"
	"sync"

	"mcpdesk/config"
	"mcpdesk/model"
)

// sendQueueSize bounds each client's outbound queue.
const sendQueueSize = 256

// Hub fans events out to the connected clients. A client whose queue is
// full misses events instead of slowing everyone else down.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast is a model.EventSink.
func (h *Hub) Broadcast(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		config.DebugLog.Printf("[Bridge] cannot encode %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.offer(data) {
			config.DebugLog.WithField("client", c.id).Warnf("[Bridge] send queue full, dropped %s event", ev.Type)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}
