package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Hub is an in-process UserStore and CallService. It holds at most one
// pending call and one active call.
type Hub struct {
	mu      sync.Mutex
	pending *IncomingCall
	active  *IncomingCall
	stream  chan *IncomingCall
	closed  bool
}

// NewHub creates a hub whose stream buffers up to size values. When the
// buffer is full the oldest value is dropped; only the latest matters.
func NewHub(size int) *Hub {
	if size < 1 {
		size = 1
	}
	return &Hub{stream: make(chan *IncomingCall, size)}
}

// IncomingCalls implements UserStore.
func (h *Hub) IncomingCalls() <-chan *IncomingCall { return h.stream }

// Ring places a call from caller, replacing any pending one.
func (h *Hub) Ring(caller Caller, projectID *uint64) (*IncomingCall, error) {
	call := &IncomingCall{
		ID:               uuid.NewString(),
		Caller:           caller,
		InitialProjectID: projectID,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("ring: hub closed")
	}
	h.pending = call
	h.publishLocked(call)
	return call, nil
}

// Cancel withdraws the pending call, if any.
func (h *Hub) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return
	}
	h.pending = nil
	h.publishLocked(nil)
}

// Pending returns the call waiting for an answer, or nil.
func (h *Hub) Pending() *IncomingCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// Active returns the joined call, or nil.
func (h *Hub) Active() *IncomingCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// DeclineCall implements UserStore.
func (h *Hub) DeclineCall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return ErrNoIncomingCall
	}
	h.pending = nil
	h.publishLocked(nil)
	return nil
}

// Join implements CallService. It fails when call is no longer pending.
func (h *Hub) Join(ctx context.Context, call *IncomingCall) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || h.pending.ID != call.ID {
		return fmt.Errorf("join %s: %w", call.ID, ErrNoIncomingCall)
	}
	h.active = call
	h.pending = nil
	h.publishLocked(nil)
	return nil
}

// Leave ends the active call.
func (h *Hub) Leave() {
	h.mu.Lock()
	h.active = nil
	h.mu.Unlock()
}

// Close ends the stream.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.stream)
}

func (h *Hub) publishLocked(call *IncomingCall) {
	if h.closed {
		return
	}
	for {
		select {
		case h.stream <- call:
			return
		default:
		}
		select {
		case <-h.stream:
		default:
		}
	}
}
