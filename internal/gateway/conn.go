package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/roster/internal/logging"
)

// Conn represents an authenticated WebSocket connection on the server side.
// It owns the directory subscriptions opened through it; closing the
// connection releases them.
type Conn struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	subs   map[string]context.CancelFunc
	log    *logging.Logger
}

// NewConn creates a Conn for a newly authenticated WebSocket connection.
func NewConn(socket *websocket.Conn, info ClientInfo, authResult AuthResult, log *logging.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ConnID:      uuid.New().String(),
		Info:        info,
		Socket:      socket,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		subs:        make(map[string]context.CancelFunc),
		log:         log,
	}
}

// Send sends a frame to the client. Thread-safe.
func (c *Conn) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.Socket.WriteJSON(frame)
}

// SendEvent sends a named event with payload.
func (c *Conn) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond sends a success response for the given request ID.
func (c *Conn) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Conn) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Conn) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// openSubscription registers a subscription under id, or a fresh id when id
// is empty. It returns the context that scopes the subscription, or false
// when id is already in use or the connection is closed.
func (c *Conn) openSubscription(id string) (string, context.Context, bool) {
	if id == "" {
		id = uuid.NewString()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", nil, false
	}
	if _, dup := c.subs[id]; dup {
		return "", nil, false
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.subs[id] = cancel
	return id, ctx, true
}

// cancelSubscription releases a subscription. It reports whether id was
// live.
func (c *Conn) cancelSubscription(id string) bool {
	c.mu.Lock()
	cancel, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Subscriptions returns the number of live subscriptions.
func (c *Conn) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close cancels every subscription and closes the WebSocket connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subs = make(map[string]context.CancelFunc)
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.Socket == nil {
		return nil
	}
	return c.Socket.Close()
}

// ConnRegistry tracks the authenticated connections of a server.
type ConnRegistry struct {
	log *logging.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewConnRegistry(log *logging.Logger) *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]*Conn), log: log}
}

func (r *ConnRegistry) Add(c *Conn) {
	r.mu.Lock()
	r.conns[c.ConnID] = c
	n := len(r.conns)
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Int("clients", n).Msg("client connected")
}

// Remove forgets c. The caller closes it.
func (r *ConnRegistry) Remove(c *Conn) {
	r.mu.Lock()
	delete(r.conns, c.ConnID)
	n := len(r.conns)
	r.mu.Unlock()
	r.log.Info().
		Str("connId", c.ConnID).
		Dur("connected", time.Since(c.ConnectedAt)).
		Int("clients", n).
		Msg("client disconnected")
}

func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Subscriptions sums the live subscriptions of every connection.
func (r *ConnRegistry) Subscriptions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.conns {
		n += c.Subscriptions()
	}
	return n
}

// CloseAll closes and forgets every connection.
func (r *ConnRegistry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
