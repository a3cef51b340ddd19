package gateway

import (
	"context"
	"sync"

	"github.com/soyeahso/crewdesk/internal/call"
)

// callWindow is an incoming-call notification shown by every connected
// front-end. Closing it tells them to dismiss it.
type callWindow struct {
	server *Server
	call   *call.IncomingCall
	once   sync.Once
}

// Open announces c to the connected clients as call.incoming.
func (s *Server) Open(_ context.Context, c *call.IncomingCall) (call.Window, error) {
	s.log.Debug().Str("call", c.ID).Int("clients", s.clients.Count()).Msg("showing incoming call")
	s.broadcast(EventCallIncoming, c)
	return &callWindow{server: s, call: c}, nil
}

func (w *callWindow) Close() {
	w.once.Do(func() {
		w.server.broadcast(EventCallClosed, map[string]any{"id": w.call.ID})
	})
}

// JoinProject asks the front-ends to open projectID and follow followUserID.
func (s *Server) JoinProject(_ context.Context, projectID, followUserID uint64) error {
	s.broadcast(EventJoinProject, map[string]any{
		"projectId":    projectID,
		"followUserId": followUserID,
	})
	return nil
}

var (
	_ call.WindowManager = (*Server)(nil)
	_ call.Workspace     = (*Server)(nil)
)
