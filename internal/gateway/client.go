package gateway

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/crewdesk/internal/logging"
)

// ErrClientClosed is returned when sending to a closed connection.
var ErrClientClosed = errors.New("client connection closed")

const writeTimeout = 10 * time.Second

// Client is an authenticated WebSocket connection.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Auth        AuthResult
	ConnectedAt time.Time

	socket *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewClient wraps an authenticated socket.
func NewClient(conn *websocket.Conn, info ClientInfo, auth AuthResult) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Auth:        auth,
		ConnectedAt: time.Now(),
		socket:      conn,
	}
}

// Send writes one frame. Safe for concurrent use.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.socket.WriteJSON(f)
}

// SendEvent writes an event frame.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
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
func (c *Client) RespondError(reqID string, e ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, e))
}

// ReadFrame blocks for the next frame.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the socket once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.socket.Close()
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client), log: log}
}

// Add registers c.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove drops the client with connID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	delete(r.clients, connID)
	r.mu.Unlock()
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Get looks up a client.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// List returns the connected clients ordered by connect time.
func (r *ClientRegistry) List() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Broadcast sends an event to every client. Send failures are logged.
func (r *ClientRegistry) Broadcast(event string, payload any, seq int64) {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding broadcast")
		return
	}
	for _, c := range r.List() {
		if err := c.Send(f); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("broadcast send failed")
		}
	}
}

// CloseAll closes and forgets every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()
	for _, c := range clients {
		_ = c.Close()
	}
}
