package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Client is one connected observer.  Lane scopes the client to a single
// lane; an empty Lane receives everything.
type Client struct {
	ID   string
	Lane string
	Send chan []byte
}

// Hub is the in-process fan-out to connected observers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     zerolog.Logger
}

// NewHub returns an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), log: log.With().Str("component", "hub").Logger()}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes the client and closes its Send channel.  Calling it
// twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.Send)
}

// Subscribe moves a client to another lane ("" for all lanes).
func (h *Hub) Subscribe(c *Client, lane string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Lane = lane
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(_ context.Context, ev Event) {
	ev.LaneID = ""
	h.Deliver(ev)
}

func (h *Hub) BroadcastToLane(_ context.Context, ev Event, laneID string) {
	ev.LaneID = laneID
	h.Deliver(ev)
}

// Deliver sends ev to every matching client without blocking.  A client
// whose buffer is full misses the event.
func (h *Hub) Deliver(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(ev.Type)).Msg("marshal event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !match(c.Lane, ev.LaneID) {
			continue
		}
		select {
		case c.Send <- payload:
		default:
			h.log.Warn().Str("client_id", c.ID).Str("type", string(ev.Type)).Msg("drop event for slow client")
		}
	}
}

func match(clientLane, eventLane string) bool {
	return clientLane == "" || eventLane == "" || clientLane == eventLane
}

// SubscribeMessage is sent by a client to change its lane scope.
type SubscribeMessage struct {
	Action string `json:"action"`
	LaneID string `json:"laneId"`
}

// ParseSubscribe decodes a subscribe/unsubscribe message.
func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
