// Package notify provides a WebSocket hub that streams sync lifecycle events
// to local UI clients (desktop only; mobile consumes the bus over FFI).
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kimhsiao/setforge/backend/internal/logging"
	syncpkg "github.com/kimhsiao/setforge/backend/internal/sync"
	"github.com/kimhsiao/setforge/backend/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only allow connections from the local UI shell
		return r.Host == "localhost" || r.Host == "localhost:8090"
	},
}

// Envelope wraps all WebSocket messages.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// WebSocket event types exposed to the UI.
const (
	EventSyncStarted    = "sync.started"
	EventSyncItemSynced = "sync.item_synced"
	EventSyncCompleted  = "sync.completed"
)

// busEventNames maps engine bus events onto the UI naming scheme.
var busEventNames = map[syncpkg.EventType]string{
	syncpkg.EventSyncStart:    EventSyncStarted,
	syncpkg.EventItemSynced:   EventSyncItemSynced,
	syncpkg.EventSyncComplete: EventSyncCompleted,
}

// Client represents one WebSocket client connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub maintains active client connections and broadcasts messages.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	hub := &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	go hub.run()
	return hub
}

// BindBus subscribes the hub to engine lifecycle events and returns the
// unsubscribe function.
func (h *Hub) BindBus(bus *syncpkg.Bus) func() {
	return bus.Subscribe(func(event syncpkg.Event) {
		name, ok := busEventNames[event.Type]
		if !ok {
			return
		}
		h.Broadcast(name, event.Data)
	})
}

// run manages client connections and broadcasts.
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("Notify client connected", map[string]interface{}{
				"client_id": client.id,
				"total":     total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer is full, drop the connection
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an enveloped message to all connected clients.
func (h *Hub) Broadcast(messageType string, data map[string]interface{}) {
	envelope := Envelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	message, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal notify envelope", err,
			map[string]interface{}{"type": messageType})
		return
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn("Notify broadcast buffer full, dropping message",
			map[string]interface{}{"type": messageType})
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket client connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed", err)
		return
	}

	client := &Client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump forwards broadcast messages to the connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readPump drains (and discards) client frames so pings and closes are
// handled; the stream is one-way.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
