package ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type frame struct {
	channel string
	exclude *Client
	payload []byte
}

// Hub tracks connected clients per channel and fans frames out to them.
type Hub struct {
	allowed    map[string]bool
	channels   map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan frame
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(channels []string, logger *slog.Logger) *Hub {
	allowed := make(map[string]bool, len(channels))
	for _, c := range channels {
		allowed[c] = true
	}
	return &Hub{
		allowed:    allowed,
		channels:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, 256),
		logger:     logger.With("component", "ws"),
	}
}

// Allowed reports whether name is a registered channel.
func (h *Hub) Allowed(name string) bool {
	return h.allowed[name]
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case f := <-h.broadcast:
			h.fanout(f)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[client.channel] == nil {
		h.channels[client.channel] = make(map[*Client]bool)
	}

	// Keep client ids unique within a channel so frames can be
	// attributed unambiguously.
	ids := make(map[string]bool, len(h.channels[client.channel]))
	for c := range h.channels[client.channel] {
		ids[c.id] = true
	}
	if ids[client.id] {
		base := client.id
		for n := 1; ids[client.id]; n++ {
			client.id = fmt.Sprintf("%s_%d", base, n)
		}
	}

	h.channels[client.channel][client] = true
	h.logger.Info("client connected", "channel", client.channel, "client_id", client.id)

	welcome, err := json.Marshal(Envelope{
		Type:      FrameConnection,
		Message:   "connected",
		Channel:   client.channel,
		ClientID:  client.id,
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		client.enqueue(welcome, h.logger)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.channels[client.channel]
	if clients == nil {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.channels, client.channel)
	}
	close(client.send)
	h.logger.Info("client disconnected", "channel", client.channel, "client_id", client.id)
}

func (h *Hub) fanout(f frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.channels[f.channel] {
		if client == f.exclude {
			continue
		}
		client.enqueue(f.payload, h.logger)
	}
}

// Broadcast queues payload for every client on channel, except exclude
// when non-nil.
func (h *Hub) Broadcast(channel string, exclude *Client, payload []byte) {
	select {
	case h.broadcast <- frame{channel: channel, exclude: exclude, payload: payload}:
	default:
		h.logger.Warn("broadcast queue full, dropping frame", "channel", channel)
	}
}

// BroadcastToAll queues payload for every connected client across all
// channels.
func (h *Hub) BroadcastToAll(payload []byte) {
	h.mu.RLock()
	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	h.mu.RUnlock()

	for _, name := range names {
		h.Broadcast(name, nil, payload)
	}
}

// Stats returns a snapshot of channel occupancy.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Channels: make(map[string]int, len(h.channels))}
	for name, clients := range h.channels {
		s.Channels[name] = len(clients)
		s.TotalConnections += len(clients)
	}
	s.TotalChannels = len(s.Channels)
	return s
}
