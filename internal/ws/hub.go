// Package ws streams log events to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/pkg/logging"
)

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     logging.Logger
	mutex      sync.RWMutex
}

// Client is one WebSocket connection. With no type filter set it receives
// every event.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger

	mu    sync.Mutex
	types []string
}

// SubscriptionMessage narrows or widens the event types a client receives.
type SubscriptionMessage struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Types  []string `json:"types"`  // log, new-content, post-success, status
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
	sendBuffer     = 256
)

func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop. It disconnects every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mutex.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mutex.Unlock()
		metrics.HubConnections.Set(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.HubConnections.Set(float64(count))
			h.logger.WithField("client_count", count).Info("Log viewer connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.HubConnections.Set(float64(count))
			h.logger.WithField("client_count", count).Info("Log viewer disconnected")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) broadcastMessage(message []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &head); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if !client.wants(head.Type) {
			continue
		}
		select {
		case client.send <- message:
			metrics.HubMessages.WithLabelValues("sent").Inc()
		default:
			// slow consumer
			metrics.HubMessages.WithLabelValues("dropped").Inc()
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Broadcast queues a JSON event for every interested client. It never
// blocks; events are dropped when the hub is saturated or stopped.
func (h *Hub) Broadcast(message []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- message:
	default:
		metrics.HubMessages.WithLabelValues("dropped").Inc()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: h.logger,
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) wants(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.types) == 0 || slices.Contains(c.types, eventType)
}

// readPump pumps subscription messages from the connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket connection error")
			}
			return
		}

		var sub SubscriptionMessage
		if err := json.Unmarshal(message, &sub); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}
		c.handleSubscription(sub)
	}
}

// writePump pumps messages from the hub to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one event per frame; viewers parse each frame as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleSubscription(msg SubscriptionMessage) {
	c.mu.Lock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Types {
			if !slices.Contains(c.types, t) {
				c.types = append(c.types, t)
			}
		}
	case "unsubscribe":
		c.types = slices.DeleteFunc(c.types, func(t string) bool {
			return slices.Contains(msg.Types, t)
		})
	default:
		c.mu.Unlock()
		return
	}
	types := slices.Clone(c.types)
	c.mu.Unlock()

	c.logger.WithFields(logging.Fields{
		"action": msg.Action,
		"types":  types,
	}).Debug("Log viewer subscription changed")
}
