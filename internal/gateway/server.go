// Package gateway exposes the tool selector and the call notifier to
// front-ends over WebSocket, using request/response/event frames.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/soyeahso/crewdesk/internal/call"
	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/menu"
	"github.com/soyeahso/crewdesk/internal/settings"
	"github.com/soyeahso/crewdesk/internal/store"
	"github.com/soyeahso/crewdesk/internal/tools"
	"github.com/soyeahso/crewdesk/internal/version"
)

const (
	maxPayload       = 4 * 1024 * 1024
	handshakeTimeout = 10 * time.Second
)

// Server is the crewdesk HTTP and WebSocket gateway.
type Server struct {
	cfg      config.GatewayConfig
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	hooks    *hooks.Manager
	selector *menu.Selector
	settings *settings.Store
	callLog  *store.CallLog
	gatherer prometheus.Gatherer
	calls    atomic.Pointer[callDeps]

	limiter  *authLimiter
	upgrader websocket.Upgrader

	mu        sync.Mutex
	startedAt time.Time
	addr      string
}

type callDeps struct {
	notifier *call.Notifier
	hub      *call.Hub
}

// Option configures a Server.
type Option func(*Server)

// WithHooks emits gateway lifecycle events and forwards settings reloads to
// clients.
func WithHooks(hm *hooks.Manager) Option {
	return func(s *Server) { s.hooks = hm }
}

// WithSelector serves the tool menu and profile RPCs from sel.
func WithSelector(sel *menu.Selector) Option {
	return func(s *Server) { s.selector = sel }
}

// WithSettings serves config.get and config.set against st.
func WithSettings(st *settings.Store) Option {
	return func(s *Server) { s.settings = st }
}

// WithCallLog serves calls.recent from l.
func WithCallLog(l *store.CallLog) Option {
	return func(s *Server) { s.callLog = l }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a gateway. Call AttachCalls before Start to enable the call
// RPCs; the notifier itself needs the server as its window manager.
func New(cfg config.GatewayConfig, log *logging.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		auth:     ResolveAuth(cfg.Auth),
		log:      log.Sub("gateway"),
		clients:  NewClientRegistry(log.Sub("clients")),
		handlers: make(map[string]RequestHandler),
		version:  version.Version,
		limiter:  newAuthLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks != nil {
		s.hooks.On(hooks.EventSettingsReloaded, "gateway", func(context.Context, hooks.Payload) error {
			s.broadcast(EventSettingsReloaded, map[string]any{})
			return nil
		})
	}
	s.registerRPCHandlers()
	return s
}

// AttachCalls enables the call RPCs.
func (s *Server) AttachCalls(n *call.Notifier, hub *call.Hub) {
	s.calls.Store(&callDeps{notifier: n, hub: hub})
}

// WatchTools broadcasts every working-set change as tools.changed.
func (s *Server) WatchTools(ws *tools.WorkingSet) {
	ws.OnChange(func(c tools.Change) {
		s.broadcast(EventToolsChanged, c)
	})
}

// Handle registers an RPC method.
func (s *Server) Handle(method string, h RequestHandler) {
	s.handlers[method] = h
}

// Methods returns the registered RPC methods, sorted.
func (s *Server) Methods() []string {
	out := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Clients returns the connected client registry.
func (s *Server) Clients() *ClientRegistry { return s.clients }

func (s *Server) broadcast(event string, payload any) {
	s.clients.Broadcast(event, payload, s.eventSeq.Add(1))
}

func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// Handler returns the HTTP routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := resolveBindAddr(s.cfg)
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", bind, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.cfg.Bind != "" && s.cfg.Bind != "loopback" {
		s.log.Warn().Str("bind", s.cfg.Bind).Msg("gateway reachable beyond loopback without TLS")
	}
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("auth", s.auth.Mode).
		Int("methods", len(s.handlers)).
		Msg("gateway listening")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	done := make(chan struct{})
	defer close(done)
	go s.limiter.sweepEvery(time.Minute, done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		s.log.Info().Msg("shutting down gateway")
		s.hooks.Emit(context.WithoutCancel(ctx), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listen address once Start has bound it.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed handshakes")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.limiter.recordFailure(r.RemoteAddr)
		_ = conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		_ = client.Close()
	}()
	s.readLoop(r.Context(), client)
}

// handshake sends a challenge, reads the connect request, authorizes it and
// answers with hello.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		rejectAndClose(conn, frame.ID, CodeProtocol, "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%q method=%q", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		rejectAndClose(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if (params.MaxProtocol != 0 && params.MaxProtocol < ProtocolVersion) || params.MinProtocol > ProtocolVersion {
		rejectAndClose(conn, frame.ID, CodeProtocol, "unsupported protocol version")
		return nil, fmt.Errorf("protocol range %d-%d excludes %d", params.MinProtocol, params.MaxProtocol, ProtocolVersion)
	}

	auth := Authorize(s.auth, params.Auth)
	if !auth.OK {
		rejectAndClose(conn, frame.ID, CodeUnauthorized, auth.Reason)
		return nil, fmt.Errorf("auth failed: %s", auth.Reason)
	}
	_ = conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, auth)
	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: s.version, Commit: version.Commit, ConnID: client.ConnID},
		Features: Features{Methods: s.Methods(), Events: Events},
		Policy:   ServerPolicy{MaxPayload: maxPayload},
	}
	if err := client.Respond(frame.ID, hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", auth.Method).
		Msg("client authenticated")
	return client, nil
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(ctx, client, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	h, ok := s.handlers[frame.Method]
	if !ok {
		_ = client.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}
	h(&RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s})
}

func rejectAndClose(conn *websocket.Conn, reqID, code, message string) {
	_ = conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
