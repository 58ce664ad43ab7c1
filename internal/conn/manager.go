package conn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pbaptista/rally/internal/auth"
	"github.com/pbaptista/rally/internal/bus"
	"github.com/pbaptista/rally/internal/hub"
)

// Config is the reconnect policy.
type Config struct {
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxReconnect int
}

// Manager owns the single persistent hub connection. Start and Stop are
// commands applied to the current state: callers are never assumed to be
// serialized, concurrent Starts coalesce into one attempt, and Stop is
// idempotent from any state.
type Manager struct {
	transport hub.Transport
	machine   *Machine
	bus       *bus.Bus
	logger    *zap.Logger
	cfg       Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager in the Disconnected state.
func NewManager(t hub.Transport, machine *Machine, b *bus.Bus, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		transport: t,
		machine:   machine,
		bus:       b,
		logger:    logger,
		cfg:       cfg,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// Start begins connecting with the given bearer token. Only effective from
// Disconnected or Failed; any other state means an attempt or connection is
// already in flight and the call is a no-op.
func (m *Manager) Start(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	if err := m.machine.Transition(Connecting); err != nil {
		m.logger.Debug("start ignored", zap.String("state", string(m.machine.Current())))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, token, m.done)
}

// Stop tears down any established connection and cancels in-flight dial or
// backoff timers, landing in Disconnected from any state.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	_ = m.machine.Transition(Disconnected)
}

// Watch gates the connection on authentication: credentials appearing start
// it, credentials disappearing stop it.
func (m *Manager) Watch(ctx context.Context) {
	sub := m.bus.Subscribe("auth.changed", 16)
	go func() {
		defer sub.Cancel()
		for {
			select {
			case evt := <-sub.C:
				snap, ok := evt.Payload.(auth.Snapshot)
				if !ok {
					continue
				}
				if snap.Authenticated {
					m.Start(snap.Token)
				} else {
					m.Stop()
				}
			case <-ctx.Done():
				m.Stop()
				return
			}
		}
	}()
}

func (m *Manager) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	bo := newBackoff(m.cfg.BackoffBase, m.cfg.BackoffMax, m.cfg.MaxReconnect)

	for {
		c, err := m.transport.Dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("hub dial failed", zap.Error(err))
			if cur := m.machine.Current(); cur == Connecting || cur == Connected {
				_ = m.machine.Transition(Reconnecting)
			}
			if bo.exhausted() {
				m.logger.Error("reconnect attempts exhausted",
					zap.Int("attempts", m.cfg.MaxReconnect))
				_ = m.machine.Transition(Failed)
				m.detach()
				return
			}
			delay := bo.next()
			m.logger.Info("retrying hub connection", zap.Duration("in", delay))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}

		_ = m.machine.Transition(Connected)
		bo.markConnected()
		m.logger.Info("hub connected")

		m.pump(ctx, c)
		_ = c.Close()
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("hub connection dropped", zap.Error(c.Err()))
		_ = m.machine.Transition(Reconnecting)
	}
}

// pump forwards decoded push events onto the bus until the connection dies.
func (m *Manager) pump(ctx context.Context, c hub.Conn) {
	for {
		select {
		case evt, ok := <-c.Events():
			if !ok {
				return
			}
			m.forward(evt)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) forward(evt any) {
	switch e := evt.(type) {
	case *hub.MessageReceived:
		m.bus.Publish(bus.Event{Kind: "hub.message", At: time.Now(), Payload: *e})
	case *hub.ConversationUpdated:
		m.bus.Publish(bus.Event{Kind: "hub.conversation", At: time.Now(), Payload: *e})
	default:
		m.logger.Warn("transport produced unknown event type")
	}
}

func (m *Manager) detach() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		m.done = nil
	}
	m.mu.Unlock()
}
