package websocket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/0xmhha/chainprobe/internal/constants"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one WebSocket connection and its search subscriptions
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// subscriptions holds search ids, or AllSearches
	subscriptions map[string]bool
	mu            sync.RWMutex

	logger *zap.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, constants.DefaultClientBufferSize),
		subscriptions: make(map[string]bool),
		logger:        logger,
	}
}

// IsSubscribed reports whether the client wants events of the given search
func (c *Client) IsSubscribed(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[AllSearches] || c.subscriptions[id]
}

// Subscribe adds a search id, or AllSearches
func (c *Client) Subscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[id] = true
}

// Unsubscribe removes a search id
func (c *Client) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, id)
}

// ReadPump reads client frames until the connection fails
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.DefaultMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.DefaultPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.DefaultPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes queued frames and keep-alive pings to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(constants.DefaultPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.DefaultWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.DefaultWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		var req SubscribeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || strings.TrimSpace(req.ID) == "" {
			c.sendError("invalid subscribe request")
			return
		}
		c.Subscribe(req.ID)
		c.sendSuccess("subscribed to " + req.ID)
		c.logger.Debug("client subscribed", zap.String("search_id", req.ID))

	case "unsubscribe":
		var req UnsubscribeRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || strings.TrimSpace(req.ID) == "" {
			c.sendError("invalid unsubscribe request")
			return
		}
		c.Unsubscribe(req.ID)
		c.sendSuccess("unsubscribed from " + req.ID)

	case "ping":
		c.sendMessage(Message{Type: "pong"})

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// sendMessage queues a frame; a full buffer drops it
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message")
	}
}

func (c *Client) sendError(errMsg string) {
	payload, _ := json.Marshal(ErrorMessage{Error: errMsg})
	c.sendMessage(Message{Type: "error", Payload: payload})
}

func (c *Client) sendSuccess(message string) {
	payload, _ := json.Marshal(SuccessMessage{Message: message})
	c.sendMessage(Message{Type: "success", Payload: payload})
}
