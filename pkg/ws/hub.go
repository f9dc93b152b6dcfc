package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hjemla/easeewatch/internal/models"
)

// WebSocket message types.
const (
	MsgTypeInit      = "init"      // latest cached states, sent on connect
	MsgTypeTelemetry = "telemetry" // one message per successful poll
	MsgTypeError     = "error"
)

// Message is the envelope for every websocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Snapshot is the init payload for a newly connected client.
type Snapshot struct {
	Chargers  []models.ChargerState `json:"chargers"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages websocket subscribers and fans out telemetry to them.
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// snapshot provider for the init message
	getSnapshot func() *Snapshot
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetSnapshotProvider sets the callback producing the init payload.
func (h *Hub) SetSnapshotProvider(provider func() *Snapshot) {
	h.getSnapshot = provider
}

// Run processes register/unregister/broadcast events until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("WebSocket client connected", zap.Int("total_clients", h.ClientCount()))

			h.sendSnapshot(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket client disconnected", zap.Int("total_clients", h.ClientCount()))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer, drop the connection
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// sendSnapshot sends the latest cached states to a newly connected client.
func (h *Hub) sendSnapshot(client *Client) {
	if h.getSnapshot == nil {
		return
	}

	snapshot := h.getSnapshot()
	if snapshot == nil {
		return
	}

	data, err := json.Marshal(Message{Type: MsgTypeInit, Data: snapshot})
	if err != nil {
		h.logger.Error("Failed to marshal snapshot", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("Failed to send snapshot, client buffer full")
	}
}

// BroadcastTelemetry fans out one poll's charger states to all clients.
func (h *Hub) BroadcastTelemetry(states []models.ChargerState) {
	data, err := json.Marshal(Message{Type: MsgTypeTelemetry, Data: states})
	if err != nil {
		h.logger.Error("Failed to marshal telemetry message", zap.Error(err))
		return
	}

	h.broadcast <- data
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a client around an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// Unregister removes the client from the hub.
func (c *Client) Unregister() {
	c.hub.unregister <- c
}

// ReadPump drains client messages to keep the connection alive. Client
// messages are not interpreted.
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump sends queued messages to the client.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
