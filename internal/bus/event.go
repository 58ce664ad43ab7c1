package bus

import "time"

// Event is a domain event carried on the bus. Kind is a dotted name whose
// leading segment identifies the producer, e.g. "hub.message", "conn.state",
// "auth.changed", "store.updated", "outbox.sent".
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}
