package call

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/crewdesk/internal/hooks"
)

// Notification is the window shown for one incoming call. It accepts a
// single answer; later answers are ignored.
type Notification struct {
	call     *IncomingCall
	window   Window
	notifier *Notifier

	mu        sync.Mutex
	state     State
	closeOnce sync.Once
}

// Call returns the call this notification is for.
func (n *Notification) Call() *IncomingCall { return n.call }

// State returns the current lifecycle stage.
func (n *Notification) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Notification) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Respond answers the call. Accepting starts the join in the background;
// declining tells the user store synchronously. Either way the window closes
// before Respond returns. It reports false if the call was already answered
// or replaced.
func (n *Notification) Respond(ctx context.Context, accept bool) bool {
	n.mu.Lock()
	if n.state != StateRinging {
		state := n.state
		n.mu.Unlock()
		n.notifier.log.Debug().Str("call", n.call.ID).Stringer("state", state).Msg("ignoring repeated answer")
		return false
	}
	if accept {
		n.state = StateAccepting
	} else {
		n.state = StateDeclined
	}
	n.mu.Unlock()

	no := n.notifier
	if accept {
		no.accept(ctx, n)
	} else {
		no.decline(ctx, n)
	}

	n.closeWindow()
	if !accept {
		n.setState(StateClosed)
	}
	no.release(n)
	no.closed(ctx, n)
	return true
}

// supersede closes a still ringing notification. It reports whether it did.
func (n *Notification) supersede() bool {
	n.mu.Lock()
	if n.state != StateRinging {
		n.mu.Unlock()
		return false
	}
	n.state = StateClosed
	n.mu.Unlock()
	n.closeWindow()
	return true
}

func (n *Notification) closeWindow() {
	n.closeOnce.Do(n.window.Close)
}

func (n *Notifier) accept(ctx context.Context, note *Notification) {
	call := note.call
	n.log.Info().Str("call", call.ID).Str("caller", call.Caller.Login).Msg("call accepted")
	n.hooks.Emit(ctx, hooks.EventCallAccepted, callData(call))

	// The join outlives the request that accepted it, and the window.
	joinCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.joinTimeout)
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		defer cancel()

		start := time.Now()
		err := n.deps.Calls.Join(joinCtx, call)
		n.metrics.ObserveJoin(time.Since(start))
		note.setState(StateClosed)

		if err != nil {
			n.log.Error().Err(err).Str("call", call.ID).Msg("failed to join call")
			data := callData(call)
			data["error"] = err.Error()
			n.hooks.Emit(joinCtx, hooks.EventCallJoinFailed, data)
			n.metrics.CallOutcome("join_failed")
			return
		}
		n.metrics.CallOutcome("accepted")

		if call.InitialProjectID != nil {
			n.joinProject(context.WithoutCancel(joinCtx), *call.InitialProjectID, call.Caller.ID)
		}
	}()
}

// joinProject dispatches the project join and does not wait for it.
func (n *Notifier) joinProject(ctx context.Context, projectID, followUserID uint64) {
	n.hooks.Emit(ctx, hooks.EventJoinProject, map[string]any{
		"projectId":    projectID,
		"followUserId": followUserID,
	})
	if n.deps.Workspace == nil {
		return
	}
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		if err := n.deps.Workspace.JoinProject(ctx, projectID, followUserID); err != nil {
			n.log.Debug().Err(err).Uint64("project", projectID).Msg("join project dispatch failed")
		}
	}()
}

func (n *Notifier) decline(ctx context.Context, note *Notification) {
	call := note.call
	if err := n.deps.Users.DeclineCall(); err != nil {
		n.log.Warn().Err(err).Str("call", call.ID).Msg("failed to decline call")
	} else {
		n.log.Info().Str("call", call.ID).Str("caller", call.Caller.Login).Msg("call declined")
	}
	n.hooks.Emit(ctx, hooks.EventCallDeclined, callData(call))
	n.metrics.CallOutcome("declined")
}
