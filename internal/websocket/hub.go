package websocket

import (
	"context"
	"sync"

	"session-service/pkg/logger"
)

// Hub tracks the open dashboard connections per session. Registration and
// removal are serialized through Run.
type Hub struct {
	clients    map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client

	log  *logger.Logger
	mu   sync.RWMutex
	done chan struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		log:        log,
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		}
	}
}

// Add hands a new client to Run. It reports false once the hub has stopped.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.SessionID] == nil {
		h.clients[client.SessionID] = make(map[*Client]bool)
	}
	h.clients[client.SessionID][client] = true
	h.mu.Unlock()

	h.log.Info("dashboard connected", "session_id", client.SessionID, "owner_id", client.OwnerID, "connections", h.Count(client.SessionID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.SessionID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.SessionID)
	}
	h.mu.Unlock()
	client.close()

	if dropped := client.sub.Dropped(); dropped > 0 {
		h.log.Warn("dashboard lagged behind", "session_id", client.SessionID, "dropped", dropped)
	}
	h.log.Info("dashboard disconnected", "session_id", client.SessionID, "owner_id", client.OwnerID, "connections", h.Count(client.SessionID))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, clients := range h.clients {
		for client := range clients {
			client.close()
		}
		delete(h.clients, sessionID)
	}
}

func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}
