// Package conn owns the lifecycle of the persistent hub connection: a
// strict state machine, a bounded-backoff reconnect loop, and gating on
// authentication state. It holds no conversation data — decoded push events
// are forwarded onto the bus for the sync engine.
package conn

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pbaptista/rally/internal/bus"
)

// State is a hub connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Failed       State = "FAILED"
)

// validTransitions defines the allowed edges. Every state may fall back to
// Disconnected: stop() is legal anywhere.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Reconnecting, Disconnected},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connected, Failed, Disconnected},
	Failed:       {Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions, publishing each
// one as a "conn.state" event.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// Change is the payload of "conn.state" events.
type Change struct {
	From State
	To   State
}

// NewMachine creates a machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Disconnected, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state, or returns an error for an edge outside
// validTransitions. Disconnected -> Disconnected is an accepted no-op so
// that stop() stays idempotent.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == Disconnected && m.current == Disconnected {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    "conn.state",
			At:      time.Now(),
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}
