package ws

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Hub indexes live connections by the rooms they watch.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]mapset.Set[*client] // roomID -> watchers
	clients mapset.Set[*client]
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]mapset.Set[*client]),
		clients: mapset.NewThreadUnsafeSet[*client](),
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients.Add(c)
}

func (h *Hub) join(c *client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomID]
	if !ok {
		rs = mapset.NewThreadUnsafeSet[*client]()
		h.rooms[roomID] = rs
	}
	rs.Add(c)
}

func (h *Hub) leave(c *client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, roomID)
}

func (h *Hub) leaveLocked(c *client, roomID string) {
	if rs, ok := h.rooms[roomID]; ok {
		rs.Remove(c)
		if rs.Cardinality() == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients.Remove(c)
	for roomID := range h.rooms {
		h.leaveLocked(c, roomID)
	}
}

// ActiveRooms lists rooms with at least one watcher.
func (h *Hub) ActiveRooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	return out
}

// Watchers returns how many connections watch roomID.
func (h *Hub) Watchers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rs, ok := h.rooms[roomID]; ok {
		return rs.Cardinality()
	}
	return 0
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients.Cardinality()
}

// CloseAll sends a going-away close to every connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := h.clients.ToSlice()
	h.mu.RUnlock()

	for _, c := range clients {
		c.shutdown()
	}
}
