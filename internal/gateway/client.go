package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/parley/internal/logging"
)

// writeTimeout bounds a single frame write so one stalled UI cannot hold up
// a broadcast.
const writeTimeout = 10 * time.Second

// Client is one authenticated UI connection.
type Client struct {
	ConnID      string
	Info        ClientInfo
	AuthMethod  string
	ConnectedAt time.Time

	conn *websocket.Conn
	log  *logging.Logger

	mu     sync.Mutex // serializes writes
	closed bool
}

// NewClient wraps a connection that passed the handshake.
func NewClient(conn *websocket.Conn, info ClientInfo, authMethod string, log *logging.Logger) *Client {
	connID := uuid.NewString()
	return &Client{
		ConnID:      connID,
		Info:        info,
		AuthMethod:  authMethod,
		ConnectedAt: time.Now(),
		conn:        conn,
		log:         log.With("connId", connID),
	}
}

// Send encodes and writes one frame.
func (c *Client) Send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", frame.Type, err)
	}
	return c.write(data)
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Respond answers request reqID with payload.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError answers request reqID with an error.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame blocks for the next frame. A frame that is not valid JSON is
// an error and ends the connection.
func (c *Client) ReadFrame() (Frame, error) {
	var f Frame
	err := c.conn.ReadJSON(&f)
	return f, err
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ClientRegistry tracks the connected UIs that receive session events.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	n := len(r.clients)
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Str("mode", c.Info.Mode).Int("connected", n).Msg("client connected")
}

// Remove unregisters a client. Removing an unknown id is a no-op.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	_, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("connId", connID).Msg("client disconnected")
	}
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CountByMode returns connected clients per ClientInfo.Mode.
func (r *ClientRegistry) CountByMode() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, c := range r.clients {
		counts[c.Info.Mode]++
	}
	return counts
}

// Broadcast writes frame to every client and returns how many received it.
// The frame is encoded once. A client whose write fails is closed and
// dropped; its read loop then ends on its own.
func (r *ClientRegistry) Broadcast(frame Frame) int {
	data, err := json.Marshal(frame)
	if err != nil {
		r.log.Error().Err(err).Str("event", frame.Event).Msg("encoding broadcast")
		return 0
	}

	var failed []*Client
	delivered := 0
	r.mu.RLock()
	for _, c := range r.clients {
		if err := c.write(data); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Msg("broadcast send failed, dropping client")
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	r.mu.RUnlock()

	for _, c := range failed {
		c.Close()
		r.Remove(c.ConnID)
	}
	return delivered
}

// CloseAll closes and removes every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
