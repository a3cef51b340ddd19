package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/soyeahso/crewdesk/internal/call"
	"github.com/soyeahso/crewdesk/internal/config"
	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/menu"
	"github.com/soyeahso/crewdesk/internal/metrics"
	"github.com/soyeahso/crewdesk/internal/profile"
	"github.com/soyeahso/crewdesk/internal/settings"
	"github.com/soyeahso/crewdesk/internal/store"
	"github.com/soyeahso/crewdesk/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-123"

const testConfig = `assistant:
  profiles:
    minimal:
      name: Minimal
      tools:
        read-file: true
logging:
  level: info
`

type harness struct {
	srv      *Server
	ts       *httptest.Server
	ws       *tools.WorkingSet
	hub      *call.Hub
	notifier *call.Notifier
	settings *settings.Store
	cfgPath  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.Nop()
	hm := hooks.NewManager(log)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))
	st, err := settings.Open(cfgPath, hm, log)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	ws := tools.NewWorkingSet()
	ws.Register(tools.NativeTools()...)
	sel := menu.NewSelector(profile.NewResolver(st, log), ws, log, menu.WithHooks(hm), menu.WithMetrics(m))

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	callLog := store.NewCallLog(db)
	callLog.Subscribe(hm)

	srv := New(config.GatewayConfig{Auth: config.GatewayAuth{Mode: "token", Token: testToken}}, log,
		WithHooks(hm), WithSelector(sel), WithSettings(st), WithCallLog(callLog), WithGatherer(reg))
	srv.WatchTools(ws)

	hub := call.NewHub(4)
	n := call.NewNotifier(call.Deps{Users: hub, Calls: hub, Workspace: srv, Windows: srv}, log,
		call.WithHooks(hm), call.WithMetrics(m))
	srv.AttachCalls(n, hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		n.Wait()
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{srv: srv, ts: ts, ws: ws, hub: hub, notifier: n, settings: st, cfgPath: cfgPath}
}

// wsClient drives one WebSocket connection. Events read while waiting for a
// response are kept for later waitEvent calls.
type wsClient struct {
	t      *testing.T
	conn   *websocket.Conn
	next   int
	events []Frame
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialRaw(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, FrameTypeEvent, challenge.Type)
	require.Equal(t, EventChallenge, challenge.Event)
	return conn
}

func connectFrame(t *testing.T, auth *ConnectAuth) Frame {
	t.Helper()
	f, err := NewRequest("connect-1", "connect", ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client:      ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"},
		Auth:        auth,
	})
	require.NoError(t, err)
	return f
}

func dial(t *testing.T, ts *httptest.Server) (*wsClient, HelloOK) {
	t.Helper()
	conn := dialRaw(t, ts)
	require.NoError(t, conn.WriteJSON(connectFrame(t, &ConnectAuth{Token: testToken})))

	var res Frame
	require.NoError(t, conn.ReadJSON(&res))
	require.Equal(t, "connect-1", res.ID)
	require.NotNil(t, res.OK)
	require.True(t, *res.OK, "handshake rejected: %+v", res.Error)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(res.Payload, &hello))
	return &wsClient{t: t, conn: conn}, hello
}

func (c *wsClient) read() Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f Frame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

// call sends a request and returns its response frame.
func (c *wsClient) call(method string, params any) Frame {
	c.t.Helper()
	c.next++
	id := fmt.Sprintf("req-%d", c.next)
	req, err := NewRequest(id, method, params)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(req))
	for {
		f := c.read()
		if f.Type == FrameTypeEvent {
			c.events = append(c.events, f)
			continue
		}
		if f.ID == id {
			return f
		}
	}
}

// ok calls method, requires success and decodes the payload into out.
func (c *wsClient) ok(method string, params, out any) {
	c.t.Helper()
	f := c.call(method, params)
	require.NotNil(c.t, f.OK)
	require.True(c.t, *f.OK, "%s failed: %+v", method, f.Error)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(f.Payload, out))
	}
}

// fail calls method and returns the error code.
func (c *wsClient) fail(method string, params any) string {
	c.t.Helper()
	f := c.call(method, params)
	require.NotNil(c.t, f.OK)
	require.False(c.t, *f.OK, "%s unexpectedly succeeded", method)
	require.NotNil(c.t, f.Error)
	return f.Error.Code
}

func (c *wsClient) waitEvent(name string) Frame {
	c.t.Helper()
	for i, f := range c.events {
		if f.Event == name {
			c.events = append(c.events[:i], c.events[i+1:]...)
			return f
		}
	}
	for {
		f := c.read()
		if f.Type != FrameTypeEvent {
			continue
		}
		if f.Event == name {
			return f
		}
		c.events = append(c.events, f)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version, "public health hides details")
}

func TestNotFoundEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "crewdesk_tools_enabled")
}

func TestMetricsEndpointAbsentWithoutGatherer(t *testing.T) {
	srv := New(config.GatewayConfig{}, logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandshakeSuccess(t *testing.T) {
	h := newHarness(t)
	_, hello := dial(t, h.ts)

	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "tools.menu")
	assert.Contains(t, hello.Features.Methods, "calls.respond")
	assert.IsNonDecreasing(t, hello.Features.Methods)
	assert.Equal(t, Events, hello.Features.Events)
	assert.Equal(t, maxPayload, hello.Policy.MaxPayload)

	assert.Eventually(t, func() bool { return h.srv.Clients().Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandshakeRejections(t *testing.T) {
	tests := []struct {
		name  string
		frame func(t *testing.T) Frame
		code  string
	}{
		{
			name:  "wrong token",
			frame: func(t *testing.T) Frame { return connectFrame(t, &ConnectAuth{Token: "nope"}) },
			code:  CodeUnauthorized,
		},
		{
			name:  "no credentials",
			frame: func(t *testing.T) Frame { return connectFrame(t, nil) },
			code:  CodeUnauthorized,
		},
		{
			name: "not a connect request",
			frame: func(t *testing.T) Frame {
				f, err := NewRequest("x", "tools.menu", nil)
				require.NoError(t, err)
				return f
			},
			code: CodeProtocol,
		},
		{
			name: "unsupported protocol",
			frame: func(t *testing.T) Frame {
				f, err := NewRequest("x", "connect", ConnectParams{
					MinProtocol: ProtocolVersion + 1,
					MaxProtocol: ProtocolVersion + 2,
					Auth:        &ConnectAuth{Token: testToken},
				})
				require.NoError(t, err)
				return f
			},
			code: CodeProtocol,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			conn := dialRaw(t, h.ts)
			require.NoError(t, conn.WriteJSON(tt.frame(t)))

			var res Frame
			require.NoError(t, conn.ReadJSON(&res))
			require.NotNil(t, res.OK)
			assert.False(t, *res.OK)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.Equal(t, 0, h.srv.Clients().Count())
		})
	}
}

func TestHandshakeRateLimited(t *testing.T) {
	h := newHarness(t)
	for range authRateMaxFails {
		h.srv.limiter.recordFailure("127.0.0.1:1")
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(h.ts), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRPCHealthAndUnknownMethod(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	var health HealthResponse
	c.ok("health", nil, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)
	assert.Equal(t, 1, health.Clients)

	assert.Equal(t, CodeMethodNotFound, c.fail("chat.send", nil))
}

func findToggle(t *testing.T, m menu.Menu, section, label string) menu.Item {
	t.Helper()
	for _, it := range m.Section(section) {
		if it.Kind == menu.KindToggle && it.Label == label {
			return it
		}
	}
	t.Fatalf("no toggle %q under %q", label, section)
	return menu.Item{}
}

func TestToolsMenuAndInvoke(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	var m menu.Menu
	c.ok("tools.menu", nil, &m)
	assert.Equal(t, []string{menu.ProfilesHeader, menu.NativeHeader}, m.Headers())
	item := findToggle(t, m, menu.NativeHeader, "read-file")
	assert.True(t, item.Checked)
	require.NotNil(t, item.Action)

	var after menu.Menu
	c.ok("tools.invoke", map[string]any{"action": item.Action}, &after)
	assert.False(t, findToggle(t, after, menu.NativeHeader, "read-file").Checked)
	assert.False(t, h.ws.IsEnabled(tools.Native(), "read-file"))

	ev := c.waitEvent(EventToolsChanged)
	var change tools.Change
	require.NoError(t, json.Unmarshal(ev.Payload, &change))
	assert.Equal(t, tools.ChangeDisabled, change.Kind)
	assert.Equal(t, []string{"read-file"}, change.Names)
	assert.Greater(t, ev.Seq, int64(0))

	assert.Equal(t, CodeInvalidParams, c.fail("tools.invoke", map[string]any{}))
	assert.Equal(t, CodeInvalidParams, c.fail("tools.invoke", map[string]any{"action": map[string]any{"kind": "explode"}}))
}

func TestProfilesListAndActivate(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	var list profilesPayload
	c.ok("profiles.list", nil, &list)
	var ids []string
	for _, p := range list.Profiles {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"minimal", profile.ReadOnlyID, profile.CodeWriterID}, ids)

	var m menu.Menu
	c.ok("profiles.activate", map[string]any{"id": "minimal"}, &m)
	assert.True(t, h.ws.IsEnabled(tools.Native(), "read-file"))
	assert.False(t, h.ws.IsEnabled(tools.Native(), "bash"))
	assert.False(t, findToggle(t, m, menu.NativeHeader, "bash").Checked)

	assert.Equal(t, CodeNotFound, c.fail("profiles.activate", map[string]any{"id": "ghost"}))
	assert.Equal(t, CodeInvalidParams, c.fail("profiles.activate", map[string]any{}))
}

func ringCall(t *testing.T, c *wsClient, login string, project *uint64) call.IncomingCall {
	t.Helper()
	var ringing call.IncomingCall
	c.ok("calls.ring", map[string]any{
		"caller":    call.Caller{ID: 42, Login: login},
		"projectId": project,
	}, &ringing)
	require.NotEmpty(t, ringing.ID)

	ev := c.waitEvent(EventCallIncoming)
	var shown call.IncomingCall
	require.NoError(t, json.Unmarshal(ev.Payload, &shown))
	require.Equal(t, ringing.ID, shown.ID)
	return shown
}

func TestCallAcceptFlow(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	project := uint64(7)
	incoming := ringCall(t, c, "ada", &project)
	assert.Equal(t, "ada", incoming.Caller.Login)

	var cur currentCall
	c.ok("calls.current", nil, &cur)
	assert.Equal(t, "ringing", cur.State)
	require.NotNil(t, cur.Call)
	assert.Equal(t, incoming.ID, cur.Call.ID)

	c.ok("calls.respond", map[string]any{"id": incoming.ID, "accept": true}, nil)

	closed := c.waitEvent(EventCallClosed)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q}`, incoming.ID), string(closed.Payload))

	join := c.waitEvent(EventJoinProject)
	assert.JSONEq(t, `{"projectId":7,"followUserId":42}`, string(join.Payload))

	require.Eventually(t, func() bool {
		active := h.hub.Active()
		return active != nil && active.ID == incoming.ID
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, CodeNotFound, c.fail("calls.respond", map[string]any{"id": incoming.ID, "accept": true}))

	var recent struct {
		Calls []store.CallRecord `json:"calls"`
	}
	c.ok("calls.recent", map[string]any{"limit": 10}, &recent)
	var events []string
	for _, r := range recent.Calls {
		assert.Equal(t, incoming.ID, r.CallID)
		events = append(events, r.Event)
	}
	assert.Equal(t, []string{hooks.EventCallAccepted, hooks.EventCallIncoming}, events)
}

func TestCallDeclineFlow(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	incoming := ringCall(t, c, "grace", nil)
	c.ok("calls.respond", map[string]any{"id": incoming.ID, "accept": false}, nil)
	c.waitEvent(EventCallClosed)

	assert.Nil(t, h.hub.Pending())
	assert.Nil(t, h.notifier.Current())

	var cur currentCall
	c.ok("calls.current", nil, &cur)
	assert.Equal(t, "idle", cur.State)
	assert.Nil(t, cur.Call)

	assert.Equal(t, CodeNotFound, c.fail("calls.respond", map[string]any{"id": incoming.ID}))
	assert.Equal(t, CodeInvalidParams, c.fail("calls.respond", map[string]any{}))
	assert.Equal(t, CodeInvalidParams, c.fail("calls.ring", map[string]any{"caller": map[string]any{"id": 1}}))
}

func TestNewCallReplacesWindow(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	first := ringCall(t, c, "ada", nil)
	second := ringCall(t, c, "grace", nil)

	closed := c.waitEvent(EventCallClosed)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q}`, first.ID), string(closed.Payload))
	assert.Equal(t, CodeNotFound, c.fail("calls.respond", map[string]any{"id": first.ID, "accept": true}))

	var cur currentCall
	c.ok("calls.current", nil, &cur)
	require.NotNil(t, cur.Call)
	assert.Equal(t, second.ID, cur.Call.ID)
}

func TestServicesUnavailable(t *testing.T) {
	srv := New(config.GatewayConfig{Auth: config.GatewayAuth{Token: testToken}}, logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	c, _ := dial(t, ts)

	for _, method := range []string{
		"profiles.list", "profiles.activate", "tools.menu", "tools.invoke",
		"calls.ring", "calls.respond", "calls.current", "calls.recent",
		"config.get", "config.set",
	} {
		assert.Equal(t, CodeUnavailable, c.fail(method, map[string]any{}), method)
	}
}

func TestConfigGetSet(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	c.ok("config.set", map[string]any{"key": "logging.level", "value": "debug"}, nil)
	assert.Equal(t, "debug", h.settings.Current().Logging.Level)
	c.waitEvent(EventSettingsReloaded)

	var got struct {
		Value any  `json:"value"`
		Found bool `json:"found"`
	}
	c.ok("config.get", map[string]any{"key": "logging.level"}, &got)
	assert.True(t, got.Found)
	assert.Equal(t, "debug", got.Value)

	c.ok("config.get", map[string]any{"key": "store.path"}, &got)
	assert.False(t, got.Found)

	assert.Equal(t, CodeInvalidParams, c.fail("config.set", map[string]any{"key": "logging.level", "value": "loud"}))
	assert.Equal(t, "debug", h.settings.Current().Logging.Level)
	raw, err := config.LoadRaw(h.cfgPath)
	require.NoError(t, err)
	v, _ := config.GetValueAtPath(raw, []string{"logging", "level"})
	assert.Equal(t, "debug", v, "rejected value is rolled back")

	assert.Equal(t, CodeUnauthorized, c.fail("config.set", map[string]any{"key": "gateway.auth.token", "value": "x"}))
	assert.Equal(t, CodeUnauthorized, c.fail("config.get", map[string]any{"key": "gateway.auth.token"}))
	assert.Equal(t, CodeInvalidParams, c.fail("config.get", map[string]any{"key": ""}))
}

func TestWindowCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c, _ := dial(t, h.ts)

	w, err := h.srv.Open(context.Background(), &call.IncomingCall{ID: "c1", Caller: call.Caller{ID: 1, Login: "ada"}})
	require.NoError(t, err)
	c.waitEvent(EventCallIncoming)

	w.Close()
	w.Close()
	c.waitEvent(EventCallClosed)

	var health HealthResponse
	c.ok("health", nil, &health)
	for _, f := range c.events {
		assert.NotEqual(t, EventCallClosed, f.Event, "closed announced once")
	}
}

func TestServerStart(t *testing.T) {
	srv := New(config.GatewayConfig{Bind: "loopback", Port: 0}, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
