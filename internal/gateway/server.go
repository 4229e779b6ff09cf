package gateway

import (
	"cmp"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/roster/internal/clock"
	"github.com/soyeahso/roster/internal/config"
	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/logging"
	"github.com/soyeahso/roster/internal/remote"
	"github.com/soyeahso/roster/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

const (
	maxPayload       = 4 * 1024 * 1024
	handshakeTimeout = 10 * time.Second
)

// Server is the roster gateway: it serves a remote.Directory to clients
// over WebSocket RPC.
type Server struct {
	cfg      config.Config
	dir      remote.Directory
	creds    Credentials
	log      *logging.Logger
	conns    *ConnRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	mu        sync.RWMutex
	configRaw map[string]any

	// Hook manager (optional, nil if not configured)
	hooks *hooks.Manager

	startedAt  time.Time
	httpServer *http.Server
	listenAddr atomic.Pointer[string]
	upgrader   websocket.Upgrader
	lockout    *lockout
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConfigRaw sets the raw config map for RPC access.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) {
		s.configRaw = raw
	}
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a gateway server for dir.
func New(cfg config.Config, dir remote.Directory, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		dir:       dir,
		creds:     CredentialsFrom(cfg.Gateway.Auth),
		log:       log.Sub("gateway"),
		conns:     NewConnRegistry(log.Sub("clients")),
		handlers:  make(map[string]RequestHandler),
		version:   version.Version,
		configRaw: make(map[string]any),
		lockout:   newLockout(clock.Real()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     websocketOrigin(cfg.Gateway.ControlUI.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	return s
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// Events returns the event names the server may send.
func (s *Server) Events() []string {
	return []string{EventConnectChallenge, EventDocSnapshot, EventCollectionSnapshot, EventSubscriptionClosed}
}

// Handler returns the HTTP handler with routes and middleware installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return httpStack(mux, s.log, s.cfg.Gateway.ControlUI.AllowedOrigins)
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int { return s.conns.Count() }

// Subscriptions returns the number of live subscriptions held by clients.
func (s *Server) Subscriptions() int { return s.conns.Subscriptions() }

// resolveBindAddr maps the bind mode to a listen address. Unknown modes
// fall back to loopback.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cmp.Or(cfg.CustomBindHost, "0.0.0.0")
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// Start serves HTTP and WebSocket clients until ctx is cancelled. Cancelling
// closes every client connection and shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()
	bound := ln.Addr().String()
	s.listenAddr.Store(&bound)

	s.log.Info().
		Str("addr", bound).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.creds.Mode).
		Int("methods", len(s.handlers)).
		Bool("tls", s.cfg.Gateway.TLS.Enabled).
		Msg("gateway server ready")
	s.hooks.Emit(ctx, hooks.EventServerStart, map[string]any{"addr": bound})

	go s.shutdownOn(ctx, bound)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// listen opens the configured address, wrapped in TLS when enabled.
func (s *Server) listen() (net.Listener, error) {
	gw := s.cfg.Gateway
	addr := resolveBindAddr(gw)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if !gw.TLS.Enabled {
		if gw.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled, credentials will be transmitted in cleartext")
		}
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(gw.TLS.CertPath, gw.TLS.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

func (s *Server) shutdownOn(ctx context.Context, bound string) {
	<-ctx.Done()
	s.log.Info().Msg("shutting down gateway server")
	s.hooks.Emit(context.Background(), hooks.EventServerStop, map[string]any{"addr": bound})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.conns.CloseAll()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("gateway shutdown incomplete")
	}
}

// Addr returns the bound listen address, or empty string if not started.
func (s *Server) Addr() string {
	if a := s.listenAddr.Load(); a != nil {
		return *a
	}
	return ""
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.lockout.blocked(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed handshakes, refusing connection")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn.SetReadLimit(maxPayload)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	// Run handshake with timeout
	c, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake failed")
		s.lockout.fail(r.RemoteAddr)
		conn.Close()
		return
	}

	s.conns.Add(c)
	defer func() {
		s.conns.Remove(c)
		c.Close()
	}()

	s.readLoop(c)
}

// handshake authenticates a fresh socket: the server sends a challenge, the
// client answers with a connect request, and the server replies hello-ok.
func (s *Server) handshake(conn *websocket.Conn) (*Conn, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	if err := s.sendChallenge(conn); err != nil {
		return nil, err
	}
	frame, params, err := readConnect(conn)
	if err != nil {
		return nil, err
	}

	result := s.creds.Check(params.Auth)
	if !result.OK {
		sendErrorAndClose(conn, frame.ID, CodeUnauthorized, result.Reason)
		return nil, fmt.Errorf("auth failed: %s", result.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	c := NewConn(conn, params.Client, result, s.log.Sub("ws"))

	resp, err := NewResponse(frame.ID, s.hello(c.ConnID))
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", c.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", result.Method).
		Msg("client authenticated")
	return c, nil
}

func (s *Server) sendChallenge(conn *websocket.Conn) error {
	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return fmt.Errorf("sending challenge: %w", err)
	}
	return nil
}

// readConnect reads the client's connect request and checks that its
// protocol range includes ProtocolVersion. Protocol errors are reported to
// the client before the socket is closed.
func readConnect(conn *websocket.Conn) (Frame, ConnectParams, error) {
	var frame Frame
	var params ConnectParams

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return frame, params, fmt.Errorf("reading connect: %w", err)
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		return frame, params, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != MethodConnect {
		sendErrorAndClose(conn, frame.ID, CodeProtocol, "expected connect request")
		return frame, params, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return frame, params, fmt.Errorf("parsing connect params: %w", err)
	}

	tooNew := params.MaxProtocol != 0 && params.MaxProtocol < ProtocolVersion
	if tooNew || params.MinProtocol > ProtocolVersion {
		sendErrorAndClose(conn, frame.ID, CodeProtocol,
			fmt.Sprintf("protocol %d not in client range %d-%d", ProtocolVersion, params.MinProtocol, params.MaxProtocol))
		return frame, params, fmt.Errorf("protocol mismatch: client %d-%d", params.MinProtocol, params.MaxProtocol)
	}
	return frame, params, nil
}

func (s *Server) hello(connID string) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  connID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  s.Events(),
		},
		Policy: ServerPolicy{
			MaxPayload:     maxPayload,
			TickIntervalMs: 30000,
		},
	}
}

// readLoop processes incoming frames from an authenticated client. Requests
// are handled in arrival order, so a client's writes reach the directory in
// the order it sent them.
func (s *Server) readLoop(c *Conn) {
	for {
		frame, err := c.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", c.ConnID).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", c.ConnID).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		s.dispatch(c, frame)
	}
}

// dispatch routes a request frame to the appropriate handler.
func (s *Server) dispatch(c *Conn, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		c.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	handler(&RequestContext{
		Conn:   c,
		Frame:  frame,
		Server: s,
	})
}

// sendErrorAndClose sends an error response and closes the connection.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	errFrame := NewErrorResponse(reqID, ErrorShape{
		Code:    code,
		Message: message,
	})
	conn.WriteJSON(errFrame)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
