package call

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/soyeahso/crewdesk/internal/hooks"
	"github.com/soyeahso/crewdesk/internal/logging"
	"github.com/soyeahso/crewdesk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindows struct {
	mu     sync.Mutex
	open   map[string]bool
	opened []string
	err    error
}

type fakeWindow struct {
	wm *fakeWindows
	id string
}

func (w *fakeWindow) Close() {
	w.wm.mu.Lock()
	defer w.wm.mu.Unlock()
	delete(w.wm.open, w.id)
}

func (f *fakeWindows) Open(_ context.Context, call *IncomingCall) (Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.open == nil {
		f.open = make(map[string]bool)
	}
	f.open[call.ID] = true
	f.opened = append(f.opened, call.ID)
	return &fakeWindow{wm: f, id: call.ID}, nil
}

func (f *fakeWindows) openIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.open))
	for id := range f.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeUsers struct {
	stream   chan *IncomingCall
	declines atomic.Int32
	err      error
}

func (f *fakeUsers) IncomingCalls() <-chan *IncomingCall { return f.stream }

func (f *fakeUsers) DeclineCall() error {
	f.declines.Add(1)
	return f.err
}

type fakeCalls struct {
	release chan struct{}
	err     error
	joined  atomic.Int32
}

func (f *fakeCalls) Join(ctx context.Context, _ *IncomingCall) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.joined.Add(1)
	return f.err
}

type projectJoin struct{ project, follow uint64 }

type fakeWorkspace struct {
	mu    sync.Mutex
	joins []projectJoin
}

func (f *fakeWorkspace) JoinProject(_ context.Context, projectID, followUserID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, projectJoin{projectID, followUserID})
	return nil
}

func (f *fakeWorkspace) all() []projectJoin {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]projectJoin(nil), f.joins...)
}

type harness struct {
	users     *fakeUsers
	calls     *fakeCalls
	workspace *fakeWorkspace
	windows   *fakeWindows
	hooks     *hooks.Manager
	metrics   *metrics.Metrics
	notifier  *Notifier

	mu     sync.Mutex
	events []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:     &fakeUsers{stream: make(chan *IncomingCall)},
		calls:     &fakeCalls{},
		workspace: &fakeWorkspace{},
		windows:   &fakeWindows{},
		hooks:     hooks.NewManager(logging.Nop()),
	}
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	h.metrics = m

	h.hooks.OnEach(append(hooks.CallEvents, hooks.EventCallClosed, hooks.EventJoinProject), "recorder",
		func(_ context.Context, p hooks.Payload) error {
			h.mu.Lock()
			h.events = append(h.events, p.Event)
			h.mu.Unlock()
			return nil
		})

	h.notifier = NewNotifier(Deps{
		Users:     h.users,
		Calls:     h.calls,
		Workspace: h.workspace,
		Windows:   h.windows,
	}, logging.Nop(), WithHooks(h.hooks), WithMetrics(m), WithJoinTimeout(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.notifier.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// ring sends call and waits until the notifier has picked it up.
func (h *harness) ring(t *testing.T, call *IncomingCall) {
	t.Helper()
	h.users.stream <- call
	require.Eventually(t, func() bool {
		cur := h.notifier.Current()
		return cur != nil && cur.Call().ID == call.ID
	}, time.Second, 5*time.Millisecond)
}

func (h *harness) seen(event string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == event {
			return true
		}
	}
	return false
}

func project(id uint64) *uint64 { return &id }

func callFrom(id string, callerID uint64, projectID *uint64) *IncomingCall {
	return &IncomingCall{ID: id, Caller: Caller{ID: callerID, Login: id}, InitialProjectID: projectID}
}

func TestNewCallReplacesWindow(t *testing.T) {
	h := newHarness(t)
	u := callFrom("U", 1, project(7))
	v := callFrom("V", 2, nil)

	h.ring(t, u)
	assert.Equal(t, []string{"U"}, h.windows.openIDs())

	h.ring(t, v)
	assert.Equal(t, []string{"V"}, h.windows.openIDs())
	assert.True(t, h.seen(hooks.EventCallSuperseded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metricsCalls(h.metrics, "superseded")))
}

func TestNilCallClosesWindow(t *testing.T) {
	h := newHarness(t)
	h.ring(t, callFrom("U", 1, nil))

	h.users.stream <- nil
	h.users.stream <- nil
	assert.Nil(t, h.notifier.Current())
	assert.Empty(t, h.windows.openIDs())
	assert.False(t, h.seen(hooks.EventCallSuperseded))
	assert.True(t, h.seen(hooks.EventCallClosed))
}

func TestAcceptClosesWindowBeforeJoinCompletes(t *testing.T) {
	h := newHarness(t)
	h.calls.release = make(chan struct{})
	u := callFrom("U", 42, project(7))
	h.ring(t, u)

	note := h.notifier.Current()
	require.True(t, note.Respond(context.Background(), true))

	assert.Empty(t, h.windows.openIDs(), "window closes without waiting for the join")
	assert.Equal(t, StateAccepting, note.State())
	assert.Nil(t, h.notifier.Current())
	assert.Empty(t, h.workspace.all())

	close(h.calls.release)
	h.notifier.Wait()

	assert.Equal(t, []projectJoin{{project: 7, follow: 42}}, h.workspace.all())
	assert.Equal(t, StateClosed, note.State())
	assert.True(t, h.seen(hooks.EventJoinProject))
	assert.Equal(t, 1.0, testutil.ToFloat64(metricsCalls(h.metrics, "accepted")))
}

func TestAcceptWithoutProjectSkipsJoinProject(t *testing.T) {
	h := newHarness(t)
	h.ring(t, callFrom("U", 1, nil))

	require.True(t, h.notifier.Current().Respond(context.Background(), true))
	h.notifier.Wait()

	assert.Equal(t, int32(1), h.calls.joined.Load())
	assert.Empty(t, h.workspace.all())
	assert.False(t, h.seen(hooks.EventJoinProject))
}

func TestJoinFailureIsLoggedNotRetried(t *testing.T) {
	h := newHarness(t)
	h.calls.err = errors.New("room is gone")
	h.ring(t, callFrom("U", 1, project(7)))

	require.True(t, h.notifier.Current().Respond(context.Background(), true))
	h.notifier.Wait()

	assert.Equal(t, int32(1), h.calls.joined.Load())
	assert.Empty(t, h.workspace.all())
	assert.True(t, h.seen(hooks.EventCallJoinFailed))
	assert.Empty(t, h.windows.openIDs())
}

func TestDeclineSwallowsError(t *testing.T) {
	h := newHarness(t)
	h.users.err = errors.New("network down")
	h.ring(t, callFrom("U", 1, project(7)))

	note := h.notifier.Current()
	require.True(t, note.Respond(context.Background(), false))

	assert.Equal(t, int32(1), h.users.declines.Load())
	assert.Empty(t, h.windows.openIDs())
	assert.Equal(t, StateClosed, note.State())
	assert.Zero(t, h.calls.joined.Load())
	assert.True(t, h.seen(hooks.EventCallDeclined))
}

func TestRespondIsOneShot(t *testing.T) {
	h := newHarness(t)
	h.ring(t, callFrom("U", 1, nil))

	note := h.notifier.Current()
	require.True(t, note.Respond(context.Background(), false))
	assert.False(t, note.Respond(context.Background(), true))
	assert.False(t, note.Respond(context.Background(), false))

	h.notifier.Wait()
	assert.Equal(t, int32(1), h.users.declines.Load())
	assert.Zero(t, h.calls.joined.Load())
}

func TestSupersededAcceptKeepsJoining(t *testing.T) {
	h := newHarness(t)
	h.calls.release = make(chan struct{})
	h.ring(t, callFrom("U", 1, project(7)))
	require.True(t, h.notifier.Current().Respond(context.Background(), true))

	h.ring(t, callFrom("V", 2, nil))
	assert.Equal(t, []string{"V"}, h.windows.openIDs())

	close(h.calls.release)
	h.notifier.Wait()
	assert.Equal(t, []projectJoin{{project: 7, follow: 1}}, h.workspace.all())
}

func TestNotifierRespondByID(t *testing.T) {
	h := newHarness(t)
	h.ring(t, callFrom("U", 1, nil))

	assert.ErrorIs(t, h.notifier.Respond(context.Background(), "nope", true), ErrNoIncomingCall)
	require.NoError(t, h.notifier.Respond(context.Background(), "U", false))
	assert.ErrorIs(t, h.notifier.Respond(context.Background(), "U", false), ErrNoIncomingCall)
}

func TestWindowOpenFailure(t *testing.T) {
	h := newHarness(t)
	h.windows.mu.Lock()
	h.windows.err = errors.New("no display")
	h.windows.mu.Unlock()

	h.users.stream <- callFrom("U", 1, nil)
	// A following nil can only be received once the first value was handled.
	h.users.stream <- nil
	assert.Nil(t, h.notifier.Current())
	assert.False(t, h.seen(hooks.EventCallIncoming))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "ringing", StateRinging.String())
	assert.Equal(t, "accepting", StateAccepting.String())
	assert.Equal(t, "declined", StateDeclined.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func metricsCalls(m *metrics.Metrics, outcome string) prometheus.Collector {
	return m.CallsCounter(outcome)
}
