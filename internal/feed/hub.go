// Package feed pushes generation events to WebSocket subscribers of a family.
package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Event is one change broadcast to a family's subscribers.
type Event struct {
	Type     string         `json:"type"`
	Entity   string         `json:"entity"`
	Action   string         `json:"action"`
	FamilyID int64          `json:"family_id"`
	ID       int64          `json:"id,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// NewEvent creates an Event with Type derived from entity and action.
func NewEvent(familyID int64, entity, action string, id int64, extra map[string]any) Event {
	return Event{
		Type:     fmt.Sprintf("%s_%s", entity, action),
		Entity:   entity,
		Action:   action,
		FamilyID: familyID,
		ID:       id,
		Extra:    extra,
	}
}

// Hub tracks subscribers per family.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.familyID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.familyID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.familyID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.familyID)
	}
}

// Broadcast sends ev to every subscriber of ev.FamilyID. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[ev.FamilyID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropped event for slow client", "family_id", ev.FamilyID, "type", ev.Type)
		}
	}
}

// ClientCount returns the number of subscribers of familyID.
func (h *Hub) ClientCount(familyID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[familyID])
}
