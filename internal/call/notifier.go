package call

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/metrics"
)

// DefaultJoinTimeout bounds a background join.
const DefaultJoinTimeout = 30 * time.Second

// Deps are the collaborators a Notifier drives.
type Deps struct {
	Users     UserStore
	Calls     CallService
	Workspace Workspace
	Windows   WindowManager
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHooks emits call lifecycle events on hm.
func WithHooks(hm *hooks.Manager) Option {
	return func(n *Notifier) { n.hooks = hm }
}

// WithMetrics records call outcomes and join latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithJoinTimeout bounds how long an accepted call may take to join.
func WithJoinTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.joinTimeout = d
		}
	}
}

// Notifier keeps at most one notification window open, for the most recent
// incoming call.
type Notifier struct {
	deps        Deps
	hooks       *hooks.Manager
	metrics     *metrics.Metrics
	log         *logging.Logger
	joinTimeout time.Duration

	mu      sync.Mutex
	current *Notification

	// background joins and project dispatches
	pending sync.WaitGroup
}

// NewNotifier creates a notifier over deps.
func NewNotifier(deps Deps, log *logging.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		deps:        deps,
		log:         log.Sub("calls"),
		joinTimeout: DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run consumes the incoming call stream until ctx is cancelled or the stream
// closes. Each value closes the open window; a non-nil value opens a new one.
func (n *Notifier) Run(ctx context.Context) error {
	stream := n.deps.Users.IncomingCalls()
	n.log.Info().Msg("call notifier started")
	for {
		select {
		case <-ctx.Done():
			n.closeCurrent(ctx, nil)
			return ctx.Err()
		case call, ok := <-stream:
			if !ok {
				n.closeCurrent(ctx, nil)
				return nil
			}
			n.handle(ctx, call)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, call *IncomingCall) {
	n.closeCurrent(ctx, call)
	if call == nil {
		return
	}

	win, err := n.deps.Windows.Open(ctx, call)
	if err != nil {
		n.log.Error().Err(err).Str("call", call.ID).Msg("failed to open call window")
		return
	}
	note := &Notification{call: call, window: win, notifier: n, state: StateRinging}

	n.mu.Lock()
	n.current = note
	n.mu.Unlock()

	n.log.Info().
		Str("call", call.ID).
		Str("caller", call.Caller.Login).
		Msg("incoming call")
	n.hooks.Emit(ctx, hooks.EventCallIncoming, callData(call))
	n.metrics.CallOutcome("incoming")
}

// closeCurrent closes the open window, if any. next is the call replacing it.
func (n *Notifier) closeCurrent(ctx context.Context, next *IncomingCall) {
	n.mu.Lock()
	note := n.current
	n.current = nil
	n.mu.Unlock()
	if note == nil {
		return
	}

	if !note.supersede() {
		return
	}
	if next != nil {
		data := callData(note.call)
		data["next"] = next.ID
		n.hooks.Emit(ctx, hooks.EventCallSuperseded, data)
		n.metrics.CallOutcome("superseded")
	}
	n.closed(ctx, note)
}

// Current returns the ringing notification, or nil.
func (n *Notifier) Current() *Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Respond answers the ringing call with the given id.
func (n *Notifier) Respond(ctx context.Context, callID string, accept bool) error {
	note := n.Current()
	if note == nil || note.call.ID != callID {
		return ErrNoIncomingCall
	}
	if !note.Respond(ctx, accept) {
		return ErrNoIncomingCall
	}
	return nil
}

// Wait blocks until background joins and project dispatches finish.
func (n *Notifier) Wait() {
	n.pending.Wait()
}

func (n *Notifier) release(note *Notification) {
	n.mu.Lock()
	if n.current == note {
		n.current = nil
	}
	n.mu.Unlock()
}

func (n *Notifier) closed(ctx context.Context, note *Notification) {
	n.hooks.Emit(ctx, hooks.EventCallClosed, callData(note.call))
}

func callData(call *IncomingCall) map[string]any {
	data := map[string]any{
		"id":          call.ID,
		"callerId":    call.Caller.ID,
		"callerLogin": call.Caller.Login,
	}
	if call.InitialProjectID != nil {
		data["projectId"] = *call.InitialProjectID
	}
	return data
}
