// Package hooks fans crewdesk lifecycle events out to interested subsystems
// (persistence, the gateway, metrics) without coupling them to each other.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/crewdesk/internal/logging"
)

// Event names.
const (
	EventSettingsReloaded = "settings_reloaded"
	EventToolsChanged     = "tools_changed"
	EventProfileActivated = "profile_activated"
	EventCallIncoming     = "call_incoming"
	EventCallAccepted     = "call_accepted"
	EventCallDeclined     = "call_declined"
	EventCallJoinFailed   = "call_join_failed"
	EventCallSuperseded   = "call_superseded"
	EventCallClosed       = "call_closed"
	EventJoinProject      = "join_project"
	EventGatewayStart     = "gateway_start"
	EventGatewayStop      = "gateway_stop"
)

// CallEvents lists the events that describe a call's lifecycle.
var CallEvents = []string{
	EventCallIncoming,
	EventCallAccepted,
	EventCallDeclined,
	EventCallJoinFailed,
	EventCallSuperseded,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles a hook event. A returned error is logged and otherwise
// ignored; it never stops later handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager keeps hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnEach registers the same handler for several events.
func (m *Manager) OnEach(events []string, name string, handler Handler) {
	for _, e := range events {
		m.On(e, name, handler)
	}
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	return handlers
}

// Emit calls every handler for event synchronously, in registration order.
// A nil Manager drops the event.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	payload := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		if err := h.handler(ctx, payload); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", event).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

// EmitAsync calls every handler for event on its own goroutine and returns
// immediately.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	payload := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		go func(h namedHandler) {
			if err := h.handler(ctx, payload); err != nil {
				m.log.Warn().
					Err(err).
					Str("event", event).
					Str("handler", h.name).
					Msg("async hook handler error")
			}
		}(h)
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}
