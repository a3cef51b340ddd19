// Package call shows incoming collaboration calls and turns the user's
// answer into a join or a decline.
package call

import (
	"context"
	"errors"
)

// ErrNoIncomingCall is returned when an answer refers to a call that is no
// longer ringing.
var ErrNoIncomingCall = errors.New("no incoming call")

// Caller identifies the user placing a call.
type Caller struct {
	ID     uint64 `json:"id"`
	Login  string `json:"login"`
	Avatar string `json:"avatar,omitempty"`
}

// IncomingCall is an invitation waiting for an answer.
type IncomingCall struct {
	ID               string  `json:"id"`
	Caller           Caller  `json:"caller"`
	InitialProjectID *uint64 `json:"initialProjectId,omitempty"`
}

// State is the lifecycle stage of a notification.
type State int

const (
	StateIdle State = iota
	StateRinging
	StateAccepting
	StateDeclined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateAccepting:
		return "accepting"
	case StateDeclined:
		return "declined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// UserStore delivers incoming calls and declines the pending one.
// A nil value on the stream means there is no longer an incoming call.
type UserStore interface {
	IncomingCalls() <-chan *IncomingCall
	DeclineCall() error
}

// CallService joins an accepted call.
type CallService interface {
	Join(ctx context.Context, call *IncomingCall) error
}

// Workspace opens a shared project once a call is joined.
type Workspace interface {
	JoinProject(ctx context.Context, projectID, followUserID uint64) error
}

// WorkspaceFunc adapts a function to Workspace.
type WorkspaceFunc func(ctx context.Context, projectID, followUserID uint64) error

func (f WorkspaceFunc) JoinProject(ctx context.Context, projectID, followUserID uint64) error {
	return f(ctx, projectID, followUserID)
}

// Window is an open notification window.
type Window interface {
	Close()
}

// WindowManager opens notification windows.
type WindowManager interface {
	Open(ctx context.Context, call *IncomingCall) (Window, error)
}
