// Package hub fans out status events and preview frames to websocket
// clients using a single goroutine that owns the client set.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/websocket/v2"
)

// Message is one websocket frame queued for every client.
// Type is websocket.TextMessage or websocket.BinaryMessage.
type Message struct {
	Type int
	Data []byte
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for client count (read-only access from outside)
	mu sync.RWMutex

	running atomic.Bool
	done    chan struct{}
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// On return every client's send channel is closed.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Info("client disconnected", "clients", h.ClientCount())

		case message := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			// Slow clients are dropped rather than stalling the others.
			for _, client := range slow {
				h.remove(client)
				h.logger.Warn("dropped slow client")
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Type: websocket.TextMessage, Data: data})
	return nil
}

// BroadcastBinary sends a viewfinder JPEG or overlay PNG
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Message{Type: websocket.BinaryMessage, Data: data})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed when Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
