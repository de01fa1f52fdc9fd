package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/metrics"
)

// Callback receives every broadcast for a streamer. Payloads arrive already
// serialized; callbacks must not retain the slice past the call.
type Callback func(event string, payload []byte)

// Hub is the process-wide client registry, keyed by streamer id. It is
// created once at startup and passed explicitly to transport handlers and
// ingestion adapters; entries live exactly as long as their connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	subs    map[uuid.UUID]map[int64]Callback
	nextSub atomic.Int64

	maxClientsPerStreamer int
}

func NewHub(maxClientsPerStreamer int) *Hub {
	return &Hub{
		clients:               make(map[uuid.UUID]map[*Client]struct{}),
		subs:                  make(map[uuid.UUID]map[int64]Callback),
		maxClientsPerStreamer: maxClientsPerStreamer,
	}
}

// Register adds a live SSE client to the streamer's broadcast set. Returns
// an error when the per-streamer cap is reached.
func (h *Hub) Register(streamerID uuid.UUID, c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[streamerID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[streamerID] = set
	}
	if h.maxClientsPerStreamer > 0 && len(set) >= h.maxClientsPerStreamer {
		return fmt.Errorf("max clients per streamer (%d) reached", h.maxClientsPerStreamer)
	}
	set[c] = struct{}{}
	metrics.SSEConnectedClients.Inc()
	return nil
}

// Unregister removes a client. Safe to call more than once; the connection
// close path must always land here so no stale handle leaks.
func (h *Hub) Unregister(streamerID uuid.UUID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[streamerID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, streamerID)
	}
	c.Close()
	metrics.SSEConnectedClients.Dec()
}

// Subscribe registers an in-process callback for a streamer's broadcasts and
// returns the matching unsubscribe function.
func (h *Hub) Subscribe(streamerID uuid.UUID, fn Callback) func() {
	id := h.nextSub.Add(1)
	h.mu.Lock()
	m := h.subs[streamerID]
	if m == nil {
		m = make(map[int64]Callback)
		h.subs[streamerID] = m
	}
	m[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		m := h.subs[streamerID]
		delete(m, id)
		if len(m) == 0 {
			delete(h.subs, streamerID)
		}
	}
}

// Broadcast serializes payload once and delivers the named event to every
// registered client and subscriber for the streamer. A full or broken client
// is evicted; its failure never blocks delivery to the others.
func (h *Hub) Broadcast(streamerID uuid.UUID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("broadcast marshal failed", "event", event, "error", err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[streamerID]))
	for c := range h.clients[streamerID] {
		targets = append(targets, c)
	}
	callbacks := make([]Callback, 0, len(h.subs[streamerID]))
	for _, fn := range h.subs[streamerID] {
		callbacks = append(callbacks, fn)
	}
	h.mu.RUnlock()

	var evicted []*Client
	for _, c := range targets {
		if !c.offer(event, data) {
			evicted = append(evicted, c)
		}
	}
	for _, c := range evicted {
		slog.Warn("evicting slow client", "streamer_id", streamerID.String())
		metrics.SSEClientsEvicted.Inc()
		h.Unregister(streamerID, c)
	}

	for _, fn := range callbacks {
		h.invoke(fn, event, data)
	}
}

// ClientCount returns the number of connected clients for a streamer.
func (h *Hub) ClientCount(streamerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[streamerID])
}

// CloseAll disconnects every client. Used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for streamerID, set := range h.clients {
		for c := range set {
			c.Close()
			metrics.SSEConnectedClients.Dec()
		}
		delete(h.clients, streamerID)
	}
}

func (h *Hub) invoke(fn Callback, event string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("subscriber callback panicked", "event", event, "panic", r)
		}
	}()
	fn(event, data)
}
