package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jailfriend/go-call-infra/internal/signaling"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openResult struct {
	conn *fakeConn
	err  error
}

// fakeTransport hands out scripted connections in order.
type fakeTransport struct {
	mu     sync.Mutex
	script []openResult
	calls  int
}

func (t *fakeTransport) Open(ctx context.Context, sessionID string, peerEndpoints []string) (signaling.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if len(t.script) == 0 {
		return nil, errors.New("dial refused")
	}

	r := t.script[0]
	t.script = t.script[1:]
	if r.err != nil {
		return nil, r.err
	}

	r.conn.events <- signaling.Event{Kind: signaling.EventOpen}
	return r.conn, nil
}

func (t *fakeTransport) openCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type fakeConn struct {
	events    chan signaling.Event
	closeOnce sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan signaling.Event, 16)}
}

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Events() <-chan signaling.Event { return c.events }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

func testConfig() ControllerConfig {
	return ControllerConfig{
		Backoff:          Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond, Factor: 2.0, MaxAttempts: 3},
		LivenessInterval: 50 * time.Millisecond,
		LivenessTimeout:  time.Minute,
		AudioBuffer:      16,
	}
}

func newTestController(t *testing.T, transport signaling.Transport, cfg ControllerConfig) *Controller {
	t.Helper()
	sess := Session{
		SessionID: "call-test",
		CallerID:  "alice",
		CalleeID:  "bob",
		CreatedAt: time.Now(),
	}
	return NewController(transport, cfg, sess, []string{"ep-alice", "ep-bob"})
}

// waitFor reads state events until the target state shows up, returning
// every event seen on the way (target included).
func waitFor(t *testing.T, events <-chan StateEvent, target State) []StateEvent {
	t.Helper()

	var seen []StateEvent
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed before reaching %s (saw %v)", target, seen)
			}
			seen = append(seen, ev)
			if ev.To == target {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s (saw %v)", target, seen)
		}
	}
}

func TestControllerConnectAndHangup(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{script: []openResult{{conn: conn}}}
	ctl := newTestController(t, transport, testConfig())

	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	go ctl.Run(context.Background())

	seen := waitFor(t, events, StateConnected)
	require.Len(t, seen, 2)
	assert.Equal(t, StateIdle, seen[0].From)
	assert.Equal(t, StateConnecting, seen[0].To)
	assert.Equal(t, StateConnecting, seen[1].From)

	// media frames flow through while connected
	conn.events <- signaling.Event{Kind: signaling.EventMessage, Payload: []byte("frame-1")}
	select {
	case frame := <-ctl.Audio():
		assert.Equal(t, []byte("frame-1"), frame)
	case <-time.After(time.Second):
		t.Fatal("audio frame not forwarded")
	}

	ctl.Hangup("caller left")
	seen = waitFor(t, events, StateClosed)
	assert.Equal(t, StateConnected, seen[len(seen)-1].From)

	select {
	case <-ctl.Done():
	case <-time.After(time.Second):
		t.Fatal("controller did not finish")
	}

	// audio stops atomically with the session closing
	_, open := <-ctl.Audio()
	assert.False(t, open)
	assert.Equal(t, StateClosed, ctl.Snapshot().State)
}

func TestControllerReconnectsOnUncleanClose(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	transport := &fakeTransport{script: []openResult{{conn: conn1}, {conn: conn2}}}
	ctl := newTestController(t, transport, testConfig())

	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	go ctl.Run(context.Background())
	waitFor(t, events, StateConnected)

	conn1.events <- signaling.Event{Kind: signaling.EventClose, Close: &signaling.CloseInfo{Code: 1006, Reason: "network lost", Clean: false}}

	seen := waitFor(t, events, StateReconnecting)
	assert.Equal(t, 1, seen[len(seen)-1].Attempts)

	seen = waitFor(t, events, StateConnected)
	assert.Equal(t, StateReconnecting, seen[len(seen)-1].From)
	// attempt counter resets on every successful reconnection
	assert.Equal(t, 0, ctl.Snapshot().Reconnection.Attempts)

	ctl.Hangup("done")
	waitFor(t, events, StateClosed)
	<-ctl.Done()
}

func TestControllerCleanCloseEndsSession(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{script: []openResult{{conn: conn}}}
	ctl := newTestController(t, transport, testConfig())

	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	go ctl.Run(context.Background())
	waitFor(t, events, StateConnected)

	conn.events <- signaling.Event{Kind: signaling.EventClose, Close: &signaling.CloseInfo{Code: 1000, Reason: "bye", Clean: true}}

	seen := waitFor(t, events, StateClosed)
	for _, ev := range seen {
		assert.NotEqual(t, StateReconnecting, ev.To, "clean close must not trigger reconnection")
	}
	<-ctl.Done()
	assert.Equal(t, 1, transport.openCalls())
}

func TestControllerExhaustsRetryBudget(t *testing.T) {
	// every dial fails; max attempts = 3
	transport := &fakeTransport{}
	ctl := newTestController(t, transport, testConfig())

	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	go ctl.Run(context.Background())

	seen := waitFor(t, events, StateClosed)
	<-ctl.Done()

	var reconnects []StateEvent
	for _, ev := range seen {
		if ev.To == StateReconnecting {
			reconnects = append(reconnects, ev)
		}
	}

	require.Len(t, reconnects, 3, "controller must never exceed the attempt budget")
	for i, ev := range reconnects {
		assert.Equal(t, i+1, ev.Attempts, "attempt counter must strictly increase")
	}

	assert.Contains(t, seen[len(seen)-1].Reason, "retry budget exhausted")
	// initial dial + one per reconnecting entry, nothing after Closed
	assert.Equal(t, 4, transport.openCalls())
}

func TestManualReconnectSkipsBackoffWithoutDoubleCounting(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	transport := &fakeTransport{script: []openResult{{conn: conn1}, {conn: conn2}}}

	cfg := testConfig()
	// long enough that only a manual trigger can explain a fast reconnect
	cfg.Backoff = Backoff{Base: 5 * time.Second, Max: 5 * time.Second, Factor: 2.0, MaxAttempts: 3}
	ctl := newTestController(t, transport, cfg)

	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	go ctl.Run(context.Background())
	waitFor(t, events, StateConnected)

	conn1.events <- signaling.Event{Kind: signaling.EventClose, Close: &signaling.CloseInfo{Code: 1006, Clean: false}}
	waitFor(t, events, StateReconnecting)

	start := time.Now()
	// two requests back to back: the second coalesces into the first
	ctl.RequestReconnect(ReconnectRequest{Manual: true})
	ctl.RequestReconnect(ReconnectRequest{Manual: true})

	seen := waitFor(t, events, StateConnected)
	assert.Less(t, time.Since(start), time.Second, "manual reconnect must skip the backoff delay")

	// no second Reconnecting entry, no second attempt counted
	for _, ev := range seen[:len(seen)-1] {
		assert.NotEqual(t, StateReconnecting, ev.To)
	}
	assert.Equal(t, 0, ctl.Snapshot().Reconnection.Attempts)

	ctl.Hangup("done")
	waitFor(t, events, StateClosed)
	<-ctl.Done()
}

func TestControllerLivenessTimeout(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	transport := &fakeTransport{script: []openResult{{conn: conn1}, {conn: conn2}}}

	cfg := testConfig()
	cfg.LivenessInterval = 5 * time.Millisecond
	cfg.LivenessTimeout = 20 * time.Millisecond
	ctl := newTestController(t, transport, cfg)

	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	go ctl.Run(context.Background())
	waitFor(t, events, StateConnected)

	// no activity at all: the liveness check must force a reconnect
	seen := waitFor(t, events, StateReconnecting)
	assert.Contains(t, seen[len(seen)-1].Reason, "liveness timeout")

	waitFor(t, events, StateConnected)
	ctl.Hangup("done")
	waitFor(t, events, StateClosed)
	<-ctl.Done()
}

func TestManagerLifecycle(t *testing.T) {
	conn := newFakeConn()
	transport := &fakeTransport{script: []openResult{{conn: conn}}}
	mgr := NewManager(transport, testConfig(), nil)

	ctl, err := mgr.CreateSession(context.Background(), "alice", "bob", []string{"ep-a", "ep-b"})
	require.NoError(t, err)

	snap := ctl.Snapshot()
	assert.Contains(t, snap.SessionID, "call-")
	assert.Equal(t, "alice", snap.CallerID)
	assert.Equal(t, "bob", snap.CalleeID)

	got, err := mgr.Get(snap.SessionID)
	require.NoError(t, err)
	assert.Same(t, ctl, got)

	require.NoError(t, mgr.Hangup(snap.SessionID, "test over"))
	<-ctl.Done()

	// disposed after reaching Closed
	require.Eventually(t, func() bool {
		_, err := mgr.Get(snap.SessionID)
		return errors.Is(err, ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)
}

func TestManagerRejectsDegenerateSessions(t *testing.T) {
	mgr := NewManager(&fakeTransport{}, testConfig(), nil)

	_, err := mgr.CreateSession(context.Background(), "alice", "alice", nil)
	assert.Error(t, err)

	_, err = mgr.CreateSession(context.Background(), "", "bob", nil)
	assert.Error(t, err)
}
