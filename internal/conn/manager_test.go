package conn

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pbaptista/rally/internal/auth"
	"github.com/pbaptista/rally/internal/bus"
	"github.com/pbaptista/rally/internal/hub"
)

type fakeConn struct {
	events chan any
	err    error
}

func (c *fakeConn) Events() <-chan any { return c.events }
func (c *fakeConn) Err() error         { return c.err }
func (c *fakeConn) Close() error       { return nil }

type dialOutcome struct {
	conn *fakeConn
	err  error
}

type fakeTransport struct {
	mu       sync.Mutex
	dials    int
	outcomes chan dialOutcome
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{outcomes: make(chan dialOutcome, 16)}
}

func (f *fakeTransport) Dial(ctx context.Context, _ string) (hub.Conn, error) {
	f.mu.Lock()
	f.dials++
	f.mu.Unlock()

	select {
	case o := <-f.outcomes:
		if o.err != nil {
			return nil, o.err
		}
		return o.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func testManager(t *testing.T, tr hub.Transport, cfg Config) (*Manager, *Machine, *bus.Bus) {
	t.Helper()
	b := bus.New()
	machine := NewMachine(b)
	m := NewManager(tr, machine, b, cfg, zap.NewNop())
	t.Cleanup(m.Stop)
	return m, machine, b
}

func waitState(t *testing.T, machine *Machine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for machine.Current() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", machine.Current(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func quickRetry() Config {
	return Config{BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond, MaxReconnect: 10}
}

func TestConnectForwardsPushEvents(t *testing.T) {
	tr := newFakeTransport()
	m, machine, b := testManager(t, tr, quickRetry())

	sub := b.Subscribe("hub.", 16)
	defer sub.Cancel()

	c := &fakeConn{events: make(chan any, 4)}
	tr.outcomes <- dialOutcome{conn: c}
	m.Start("token")
	waitState(t, machine, Connected)

	c.events <- &hub.MessageReceived{ID: 501, ConversationID: 1, Text: "hi"}

	select {
	case evt := <-sub.C:
		if evt.Kind != "hub.message" {
			t.Errorf("kind = %q, want hub.message", evt.Kind)
		}
		msg, ok := evt.Payload.(hub.MessageReceived)
		if !ok || msg.ID != 501 {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("push event not forwarded to bus")
	}
}

func TestDropRecoversViaReconnecting(t *testing.T) {
	tr := newFakeTransport()
	m, machine, _ := testManager(t, tr, quickRetry())

	c1 := &fakeConn{events: make(chan any)}
	tr.outcomes <- dialOutcome{conn: c1}
	m.Start("token")
	waitState(t, machine, Connected)

	// Transport drop: events channel closes.
	close(c1.events)
	c2 := &fakeConn{events: make(chan any)}
	tr.outcomes <- dialOutcome{conn: c2}

	deadline := time.Now().Add(2 * time.Second)
	for tr.dialCount() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("dials = %d, want 2 (no reconnect attempt)", tr.dialCount())
		}
		time.Sleep(2 * time.Millisecond)
	}
	waitState(t, machine, Connected)
}

func TestConcurrentStartsCoalesce(t *testing.T) {
	tr := newFakeTransport()
	m, machine, _ := testManager(t, tr, quickRetry())

	// No outcome queued: the dial blocks, keeping us in Connecting.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Start("token")
		}()
	}
	wg.Wait()
	waitState(t, machine, Connecting)

	time.Sleep(20 * time.Millisecond)
	if got := tr.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1 (starts must coalesce)", got)
	}
}

func TestExhaustedRetriesLandInFailed(t *testing.T) {
	tr := newFakeTransport()
	cfg := Config{BackoffBase: time.Millisecond, BackoffMax: 2 * time.Millisecond, MaxReconnect: 2}
	m, machine, _ := testManager(t, tr, cfg)

	for i := 0; i < 3; i++ {
		tr.outcomes <- dialOutcome{err: context.DeadlineExceeded}
	}
	m.Start("token")
	waitState(t, machine, Failed)

	// Start is valid again from Failed.
	c := &fakeConn{events: make(chan any)}
	tr.outcomes <- dialOutcome{conn: c}
	m.Start("token")
	waitState(t, machine, Connected)
}

func TestStopDuringReconnecting(t *testing.T) {
	tr := newFakeTransport()
	cfg := Config{BackoffBase: time.Hour, BackoffMax: time.Hour, MaxReconnect: 10}
	m, machine, _ := testManager(t, tr, cfg)

	tr.outcomes <- dialOutcome{err: context.DeadlineExceeded}
	m.Start("token")
	waitState(t, machine, Reconnecting)

	// Stop must cancel the hour-long backoff timer immediately.
	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop() blocked on backoff timer")
	}
	if machine.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", machine.Current())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	m, machine, _ := testManager(t, tr, quickRetry())

	m.Stop()
	m.Stop()
	if machine.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", machine.Current())
	}

	c := &fakeConn{events: make(chan any)}
	tr.outcomes <- dialOutcome{conn: c}
	m.Start("token")
	waitState(t, machine, Connected)
	m.Stop()
	m.Stop()
	waitState(t, machine, Disconnected)
}

func TestWatchGatesOnAuth(t *testing.T) {
	tr := newFakeTransport()
	m, machine, b := testManager(t, tr, quickRetry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Watch(ctx)

	c := &fakeConn{events: make(chan any)}
	tr.outcomes <- dialOutcome{conn: c}
	b.Publish(bus.Event{
		Kind:    "auth.changed",
		At:      time.Now(),
		Payload: auth.Snapshot{Authenticated: true, UserID: 42, Token: "tok"},
	})
	waitState(t, machine, Connected)

	b.Publish(bus.Event{Kind: "auth.changed", At: time.Now(), Payload: auth.Snapshot{}})
	waitState(t, machine, Disconnected)
}
