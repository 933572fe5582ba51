package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Hub keeps track of connected clients and which user each belongs to
type Hub struct {
	// Registered clients grouped by user id
	users map[string]map[*Client]struct{}

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to users map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		users:      make(map[string]map[*Client]struct{}),
	}
}

// Run processes registrations until ctx is done, then drops every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.users[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.users[client.UserID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			log.Printf("🔌 Client %s connected for user %s", client.ID, client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.users[client.UserID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
					if len(set) == 0 {
						delete(h.users, client.UserID)
					}
					log.Printf("📴 Client %s disconnected", client.ID)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for user, set := range h.users {
				for c := range set {
					close(c.send)
				}
				delete(h.users, user)
			}
			h.mu.Unlock()
			return
		}
	}
}

// IsOnline reports whether the user has at least one open connection
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// SendToUser pushes a message to every connection of the user and reports
// whether at least one accepted it
func (h *Hub) SendToUser(userID string, message interface{}) bool {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := false
	for c := range h.users[userID] {
		select {
		case c.send <- payload:
			delivered = true
		default:
			// Buffer full or client dead
		}
	}
	return delivered
}

// Broadcast pushes a message to every connected client and returns how many accepted it
func (h *Hub) Broadcast(message interface{}) int {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.users {
		for c := range set {
			select {
			case c.send <- payload:
				n++
			default:
			}
		}
	}
	return n
}
