package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/roster/internal/logging"
	"github.com/soyeahso/roster/internal/remote"
	"github.com/soyeahso/roster/internal/version"
)

// ErrUnauthorized is returned by Dial when the server rejects the
// credentials.
var ErrUnauthorized = errors.New("gateway rejected credentials")

// RPCError is an error response from the server.
type RPCError struct {
	Method  string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Code, e.Message)
}

// DialOptions configures a Client.
type DialOptions struct {
	URL      string
	Token    string
	Password string
	// ClientID identifies the client in server logs. Defaults to "roster".
	ClientID    string
	DisplayName string
	// HandshakeTimeout bounds the connect exchange. Defaults to 10s.
	HandshakeTimeout time.Duration
	Header           http.Header
}

// subscription routes snapshot events for one subscription id.
type subscription struct {
	deliver func(payload json.RawMessage) error
	close   func()
}

// Client is a remote.Directory served by a roster gateway over WebSocket.
// Calls are correlated with responses by request id; snapshot events are
// routed to subscription channels by subscription id.
type Client struct {
	socket *websocket.Conn
	hello  HelloOK
	log    *logging.Logger

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Frame
	subs    map[string]subscription
	closed  bool
	err     error
	done    chan struct{}
}

var _ remote.Directory = (*Client)(nil)

// Dial connects to a gateway and completes the connect handshake.
func Dial(ctx context.Context, opts DialOptions, log *logging.Logger) (*Client, error) {
	if opts.ClientID == "" {
		opts.ClientID = "roster"
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = handshakeTimeout
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = opts.HandshakeTimeout
	socket, _, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", opts.URL, err)
	}
	socket.SetReadLimit(maxPayload)

	hello, err := connect(socket, opts)
	if err != nil {
		socket.Close()
		return nil, err
	}

	c := &Client{
		socket:  socket,
		hello:   hello,
		log:     log.Sub("gateway-client"),
		pending: make(map[string]chan Frame),
		subs:    make(map[string]subscription),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	c.log.Info().
		Str("url", opts.URL).
		Str("connId", hello.Server.ConnID).
		Str("serverVersion", hello.Server.Version).
		Msg("connected to gateway")
	return c, nil
}

// connect runs the client side of the handshake: wait for the challenge,
// send connect, read hello-ok.
func connect(socket *websocket.Conn, opts DialOptions) (HelloOK, error) {
	socket.SetReadDeadline(time.Now().Add(opts.HandshakeTimeout))
	defer socket.SetReadDeadline(time.Time{})

	var challenge Frame
	if err := socket.ReadJSON(&challenge); err != nil {
		return HelloOK{}, fmt.Errorf("reading challenge: %w", err)
	}
	if challenge.Type != FrameTypeEvent || challenge.Event != EventConnectChallenge {
		return HelloOK{}, fmt.Errorf("expected %s, got type=%s event=%s", EventConnectChallenge, challenge.Type, challenge.Event)
	}

	reqID := uuid.NewString()
	req, err := NewRequest(reqID, MethodConnect, ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client: ClientInfo{
			ID:          opts.ClientID,
			DisplayName: opts.DisplayName,
			Version:     version.Version,
			Platform:    "go",
			Mode:        "cli",
		},
		Auth: &ConnectAuth{Token: opts.Token, Password: opts.Password},
	})
	if err != nil {
		return HelloOK{}, err
	}
	if err := socket.WriteJSON(req); err != nil {
		return HelloOK{}, fmt.Errorf("sending connect: %w", err)
	}

	var res Frame
	if err := socket.ReadJSON(&res); err != nil {
		return HelloOK{}, fmt.Errorf("reading hello: %w", err)
	}
	if res.Type != FrameTypeResponse || res.ID != reqID {
		return HelloOK{}, fmt.Errorf("unexpected frame during handshake: type=%s id=%s", res.Type, res.ID)
	}
	if res.OK == nil || !*res.OK {
		if res.Error != nil && res.Error.Code == CodeUnauthorized {
			return HelloOK{}, fmt.Errorf("%w: %s", ErrUnauthorized, res.Error.Message)
		}
		return HelloOK{}, responseError(MethodConnect, res)
	}

	var hello HelloOK
	if err := json.Unmarshal(res.Payload, &hello); err != nil {
		return HelloOK{}, fmt.Errorf("parsing hello: %w", err)
	}
	return hello, nil
}

func responseError(method string, f Frame) error {
	if f.Error == nil {
		return &RPCError{Method: method, Code: CodeInternal, Message: "request failed"}
	}
	return &RPCError{Method: method, Code: f.Error.Code, Message: f.Error.Message}
}

// Hello returns the server's handshake response.
func (c *Client) Hello() HelloOK { return c.hello }

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is up or after a
// local Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection and closes every subscription channel.
func (c *Client) Close() error {
	c.wmu.Lock()
	c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = cause
	subs := c.subs
	c.subs = make(map[string]subscription)
	c.mu.Unlock()

	close(c.done)
	c.socket.Close()
	for _, s := range subs {
		s.close()
	}
}

func (c *Client) readLoop() {
	for {
		_, msg, err := c.socket.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info().Msg("gateway closed the connection")
				} else {
					c.log.Warn().Err(err).Msg("gateway connection lost")
				}
			}
			c.shutdown(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.log.Warn().Err(err).Msg("ignoring malformed frame")
			continue
		}

		switch f.Type {
		case FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case FrameTypeEvent:
			c.route(f)
		}
	}
}

func (c *Client) route(f Frame) {
	var head struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := json.Unmarshal(f.Payload, &head); err != nil || head.SubscriptionID == "" {
		c.log.Debug().Str("event", f.Event).Msg("ignoring event without subscription")
		return
	}

	c.mu.Lock()
	s, ok := c.subs[head.SubscriptionID]
	if ok && f.Event == EventSubscriptionClosed {
		delete(c.subs, head.SubscriptionID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if f.Event == EventSubscriptionClosed {
		c.log.Warn().Str("sub", head.SubscriptionID).Msg("subscription ended by gateway")
		s.close()
		return
	}
	if err := s.deliver(f.Payload); err != nil {
		c.log.Warn().Err(err).Str("event", f.Event).Msg("bad snapshot payload")
	}
}

// call sends a request and waits for its response. out may be nil.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := uuid.NewString()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.wmu.Lock()
	err = c.socket.WriteJSON(req)
	c.wmu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.OK == nil || !*res.OK {
			return responseError(method, res)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.Payload, out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Health returns the server's detailed health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var h HealthResponse
	err := c.call(ctx, MethodHealth, struct{}{}, &h)
	return h, err
}

func (c *Client) GetDoc(ctx context.Context, collection, id string) (remote.Document, bool, error) {
	var res DocResult
	if err := c.call(ctx, MethodDocGet, DocParams{Collection: collection, ID: id}, &res); err != nil {
		return remote.Document{}, false, err
	}
	return res.Doc, res.Exists, nil
}

func (c *Client) SetDoc(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	return c.call(ctx, MethodDocSet, SetDocParams{
		Collection: collection,
		ID:         id,
		Fields:     fields,
		Merge:      merge,
	}, nil)
}

func (c *Client) BatchWrite(ctx context.Context, collection string, writes []remote.Write) error {
	if len(writes) == 0 {
		return nil
	}
	return c.call(ctx, MethodDocBatch, BatchParams{Collection: collection, Writes: writes}, nil)
}

func (c *Client) SubscribeDoc(ctx context.Context, collection, id string) (<-chan remote.DocSnapshot, error) {
	f := remote.NewFeed[remote.DocSnapshot]()
	sub := subscription{
		deliver: func(payload json.RawMessage) error {
			var ev DocSnapshotEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return err
			}
			f.Offer(remote.DocSnapshot{Doc: ev.Doc, Exists: ev.Exists})
			return nil
		},
		close: f.Close,
	}
	params := SubscribeParams{Collection: collection, ID: id}
	if err := c.subscribe(ctx, MethodDocSubscribe, params, sub); err != nil {
		return nil, err
	}
	return f.C(), nil
}

func (c *Client) SubscribeCollection(ctx context.Context, collection string) (<-chan remote.CollectionSnapshot, error) {
	f := remote.NewFeed[remote.CollectionSnapshot]()
	sub := subscription{
		deliver: func(payload json.RawMessage) error {
			var ev CollectionSnapshotEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				return err
			}
			f.Offer(remote.CollectionSnapshot{Docs: ev.Docs})
			return nil
		},
		close: f.Close,
	}
	params := SubscribeParams{Collection: collection}
	if err := c.subscribe(ctx, MethodCollectionSubscribe, params, sub); err != nil {
		return nil, err
	}
	return f.C(), nil
}

// subscribe registers sub under a fresh id before asking the server for
// it, so snapshot events that race the response are not lost. The
// subscription is released when ctx is done.
func (c *Client) subscribe(ctx context.Context, method string, params SubscribeParams, sub subscription) error {
	params.SubscriptionID = uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.subs[params.SubscriptionID] = sub
	c.mu.Unlock()

	if err := c.call(ctx, method, params, nil); err != nil {
		c.drop(params.SubscriptionID)
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
			return
		}
		if !c.drop(params.SubscriptionID) {
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.call(cctx, MethodSubscriptionCancel, CancelParams{SubscriptionID: params.SubscriptionID}, nil); err != nil {
			c.log.Debug().Err(err).Str("sub", params.SubscriptionID).Msg("subscription cancel failed")
		}
	}()
	return nil
}

// drop removes and closes a subscription. It reports whether it was live.
func (c *Client) drop(id string) bool {
	c.mu.Lock()
	s, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		s.close()
	}
	return ok
}
