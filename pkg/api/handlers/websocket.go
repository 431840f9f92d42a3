package handlers

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/unraidmate/console/pkg/api/middleware"
)

const authReadTimeout = 5 * time.Second

// Event types pushed to the UI
const (
	EventSessionChanged = "session_changed"
	EventClientRebuilt  = "client_rebuilt"
	EventServerStatus   = "server_status"
)

// Message represents a WebSocket message
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Client represents a WebSocket client
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active WebSocket connections and fans events out to all
// of them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	done       chan struct{}
	closeOnce  sync.Once
	jwtSecret  string
}

// NewHub creates a new Hub
func NewHub(jwtSecret string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		jwtSecret:  jwtSecret,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[ws] client connected: %s", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[ws] client disconnected: %s", client.id)

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			return
		}
	}
}

// Close shuts down the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// BroadcastAll queues msg for every connected client
func (h *Hub) BroadcastAll(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] failed to marshal message: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		log.Printf("[ws] broadcast queue full, dropping %s", msg.Type)
	}
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection authenticates a new connection with its first message
// and then streams events to it. Tokens stay out of URLs.
func (h *Hub) HandleConnection(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(authReadTimeout))

	var authMsg struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" || authMsg.Token == "" {
		log.Printf("[ws] rejected connection: missing auth message")
		conn.WriteJSON(Message{Type: "error", Data: map[string]string{"message": "authentication required"}})
		conn.Close()
		return
	}
	if _, err := middleware.ValidateJWT(authMsg.Token, h.jwtSecret); err != nil {
		log.Printf("[ws] rejected connection: invalid token: %v", err)
		conn.WriteJSON(Message{Type: "error", Data: map[string]string{"message": "invalid token"}})
		conn.Close()
		return
	}

	conn.WriteJSON(Message{Type: "authenticated", Data: map[string]string{"status": "connected"}})
	conn.SetReadDeadline(time.Time{})

	client := &Client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Writer
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[ws] write error: %v", err)
				return
			}
		}
	}()

	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case client.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}
