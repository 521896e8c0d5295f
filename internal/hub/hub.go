// Package hub fans run events and log entries out to WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/protocol"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

const sendBuffer = 256

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	mu   sync.Mutex

	sendMu sync.Mutex
	closed bool
}

// Hub manages all WebSocket connections. Every connection receives every
// broadcast.
type Hub struct {
	connections map[string]*Connection

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan []byte
	done       chan struct{}

	greeting func() ([]byte, error)
	logger   zerolog.Logger

	mu sync.RWMutex
}

// NewHub creates a new Hub. greeting, when set, produces the first message of
// every connection; it runs on the hub goroutine so no broadcast can slip
// between it and the connection's registration.
func NewHub(greeting func() ([]byte, error), logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		greeting:    greeting,
		logger:      logger,
	}
}

// Run starts the hub's main loop. When ctx ends every connection's send
// channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, conn := range h.connections {
			conn.closeSend()
			delete(h.connections, id)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			if h.greeting != nil {
				if data, err := h.greeting(); err != nil {
					h.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to build greeting")
				} else {
					conn.trySend(data)
				}
			}
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug().Str("conn_id", conn.ID).Msg("connection registered")

		case conn := <-h.unregister:
			h.remove(conn)

		case data := <-h.broadcast:
			h.mu.RLock()
			var slow []*Connection
			for _, conn := range h.connections {
				if !conn.trySend(data) {
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.logger.Warn().Str("conn_id", conn.ID).Msg("connection buffer full, closing")
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; ok {
		delete(h.connections, conn.ID)
		conn.closeSend()
		h.logger.Debug().Str("conn_id", conn.ID).Msg("connection unregistered")
	}
}

// NewConnection wraps a WebSocket; it is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, sendBuffer),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast sends data to all connections.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// BroadcastJSON sends a JSON message to all connections.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// SendJSONToConnection sends a JSON message to one connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !conn.trySend(data) {
		return ErrBufferFull
	}
	return nil
}

// PublishRun broadcasts a run event. It has the signature of a tracker observer.
func (h *Hub) PublishRun(ev domain.RunEvent) {
	msg := protocol.RunMessage{
		BaseMessage: protocol.NewBase(protocol.TypeRun, ""),
		Event:       ev.Type,
		Run:         ev.Run,
	}
	if err := h.BroadcastJSON(msg); err != nil {
		h.logger.Error().Err(err).Msg("failed to broadcast run event")
	}
}

// PublishLog broadcasts a new log entry. It has the signature of a log sink observer.
func (h *Hub) PublishLog(entry domain.LogEntry) {
	msg := protocol.LogMessage{
		BaseMessage: protocol.NewBase(protocol.TypeLog, ""),
		Entry:       entry,
	}
	if err := h.BroadcastJSON(msg); err != nil {
		h.logger.Error().Err(err).Msg("failed to broadcast log entry")
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the connection was already removed.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
