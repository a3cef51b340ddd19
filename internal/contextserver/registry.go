package contextserver

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/tools"
)

// StartFunc launches one server and completes its handshake.
type StartFunc func(ctx context.Context, cfg config.ContextServerConfig, log *logging.Logger) (Conn, error)

// Registry owns the running context servers and mirrors their tools into
// the working set.
type Registry struct {
	ws    *tools.WorkingSet
	hooks *hooks.Manager
	log   *logging.Logger
	start StartFunc

	mu      sync.Mutex
	order   []string // start order; closed in reverse
	servers map[string]*entry
}

type entry struct {
	cfg  config.ContextServerConfig
	conn Conn
}

// Option configures a Registry.
type Option func(*Registry)

// WithStartFunc replaces the process launcher.
func WithStartFunc(fn StartFunc) Option {
	return func(r *Registry) { r.start = fn }
}

// WithHooks emits tools_changed on hm whenever a server's tools are
// registered or removed.
func WithHooks(hm *hooks.Manager) Option {
	return func(r *Registry) { r.hooks = hm }
}

// NewRegistry creates a registry writing into ws.
func NewRegistry(ws *tools.WorkingSet, log *logging.Logger, opts ...Option) *Registry {
	r := &Registry{
		ws:      ws,
		log:     log.Sub("context-servers"),
		start:   StartProcess,
		servers: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartAll starts every configured server in order. A server that fails to
// start is logged and skipped.
func (r *Registry) StartAll(ctx context.Context, cfgs []config.ContextServerConfig) {
	for _, cfg := range cfgs {
		if err := r.Start(ctx, cfg); err != nil {
			r.log.Error().Err(err).Str("id", cfg.ID).Msg("context server failed to start")
		}
	}
}

// Start launches one server and registers its tools under ContextServer(id).
func (r *Registry) Start(ctx context.Context, cfg config.ContextServerConfig) error {
	r.mu.Lock()
	_, exists := r.servers[cfg.ID]
	r.mu.Unlock()
	if exists {
		return fmt.Errorf("context server already running: %s", cfg.ID)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := r.log.Sub(cfg.ID)
	conn, err := r.start(startCtx, cfg, log)
	if err != nil {
		return fmt.Errorf("start %s: %w", cfg.ID, err)
	}
	remote, err := conn.ListTools(startCtx)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("list tools of %s: %w", cfg.ID, err)
	}

	r.mu.Lock()
	if _, raced := r.servers[cfg.ID]; raced {
		r.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("context server already running: %s", cfg.ID)
	}
	r.servers[cfg.ID] = &entry{cfg: cfg, conn: conn}
	r.order = append(r.order, cfg.ID)
	r.mu.Unlock()

	src := tools.ContextServer(cfg.ID)
	descs := make([]tools.Tool, 0, len(remote))
	for _, t := range remote {
		descs = append(descs, tools.Descriptor{ToolName: t.Name, Desc: t.Description, From: src})
	}
	r.ws.Register(descs...)

	log.Info().Int("tools", len(descs)).Msg("context server tools registered")
	r.hooks.Emit(ctx, hooks.EventToolsChanged, map[string]any{
		"source": src.String(),
		"tools":  len(descs),
	})
	return nil
}

// Stop closes one server and removes its tools.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.servers[id]
	if ok {
		delete(r.servers, id)
		r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("context server not running: %s", id)
	}
	return r.stop(ctx, e)
}

func (r *Registry) stop(ctx context.Context, e *entry) error {
	src := tools.ContextServer(e.cfg.ID)
	r.ws.Unregister(src)
	r.hooks.Emit(ctx, hooks.EventToolsChanged, map[string]any{
		"source": src.String(),
		"tools":  0,
	})
	r.log.Info().Str("id", e.cfg.ID).Msg("closing context server")
	if err := e.conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", e.cfg.ID, err)
	}
	return nil
}

// CloseAll stops every server in reverse start order.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	order := slices.Clone(r.order)
	entries := make([]*entry, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		entries = append(entries, r.servers[order[i]])
	}
	r.servers = make(map[string]*entry)
	r.order = nil
	r.mu.Unlock()

	for _, e := range entries {
		if err := r.stop(ctx, e); err != nil {
			r.log.Error().Err(err).Str("id", e.cfg.ID).Msg("context server close error")
		}
	}
}

// Sync brings the running servers in line with cfgs: servers no longer
// configured, or whose configuration changed, are stopped; new ones are
// started.
func (r *Registry) Sync(ctx context.Context, cfgs []config.ContextServerConfig) {
	want := make(map[string]config.ContextServerConfig, len(cfgs))
	for _, c := range cfgs {
		want[c.ID] = c
	}

	r.mu.Lock()
	var stale []string
	for _, id := range r.order {
		c, ok := want[id]
		if !ok || !sameConfig(c, r.servers[id].cfg) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for i := len(stale) - 1; i >= 0; i-- {
		if err := r.Stop(ctx, stale[i]); err != nil {
			r.log.Error().Err(err).Str("id", stale[i]).Msg("context server close error")
		}
	}

	var missing []config.ContextServerConfig
	r.mu.Lock()
	for _, c := range cfgs {
		if _, running := r.servers[c.ID]; !running {
			missing = append(missing, c)
		}
	}
	r.mu.Unlock()
	r.StartAll(ctx, missing)
}

// Status describes one running server.
type Status struct {
	ID      string     `json:"id"`
	Command string     `json:"command"`
	Server  ServerInfo `json:"server"`
}

// List returns the running servers in start order.
func (r *Registry) List() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.order))
	for _, id := range r.order {
		e := r.servers[id]
		out = append(out, Status{ID: id, Command: e.cfg.Command, Server: e.conn.Info()})
	}
	return out
}

func sameConfig(a, b config.ContextServerConfig) bool {
	if a.Command != b.Command || a.Timeout != b.Timeout || !slices.Equal(a.Args, b.Args) || len(a.Env) != len(b.Env) {
		return false
	}
	for k, v := range a.Env {
		if bv, ok := b.Env[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
