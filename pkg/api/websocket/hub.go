package websocket

import (
	"encoding/json"
	"sync"

	"github.com/0xmhha/chainprobe/pkg/search"
	"go.uber.org/zap"
)

const (
	// DefaultMaxClients is the maximum number of concurrent WebSocket clients
	DefaultMaxClients = 1000

	broadcastBuffer = 256
)

// Hub tracks connected clients and fans search events out to their subscribers.
// It implements search.Publisher.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	unregister chan *Client
	broadcast  chan *Event

	// done signals the Run goroutine to exit
	done     chan struct{}
	stopOnce sync.Once

	maxClients int
	logger     *zap.Logger
}

var _ search.Publisher = (*Hub)(nil)

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, broadcastBuffer),
		done:       make(chan struct{}),
		maxClients: DefaultMaxClients,
		logger:     logger.With(zap.String("component", "websocket")),
	}
}

// Run runs the hub event loop until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// add registers a client; it fails when the hub is stopped or full
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return false
	default:
	}
	if len(h.clients) >= h.maxClients {
		h.logger.Warn("max clients reached, rejecting connection",
			zap.Int("max_clients", h.maxClients))
		return false
	}
	h.clients[client] = true
	h.logger.Debug("client registered", zap.Int("total_clients", len(h.clients)))
	return true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client unregistered", zap.Int("total_clients", total))
}

// broadcastEvent sends an event to every client subscribed to its search
func (h *Hub) broadcastEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	frame, err := json.Marshal(Message{Type: "event", Payload: data})
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.clients {
		if !client.IsSubscribed(event.ID) {
			continue
		}
		select {
		case client.send <- frame:
			sent++
		default:
			h.logger.Warn("client buffer full, closing connection")
			close(client.send)
			delete(h.clients, client)
		}
	}

	h.logger.Debug("event broadcasted",
		zap.String("type", string(event.Type)),
		zap.String("search_id", event.ID),
		zap.Int("recipients", sent))
}

func (h *Hub) enqueue(event *Event) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("search_id", event.ID))
	}
}

// PublishProgress broadcasts the narrowed window of a running search
func (h *Hub) PublishProgress(p search.Progress) {
	h.enqueue(&Event{Type: EventProgress, ID: p.ID, Data: p})
}

// PublishDone broadcasts the final record of a search
func (h *Hub) PublishDone(rec *search.Record) {
	h.enqueue(&Event{Type: EventDone, ID: rec.ID, Data: rec})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop stops the hub and closes all client connections
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.logger.Info("hub stopped")
	})
}
