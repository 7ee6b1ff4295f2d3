package history

import (
	"context"
	"time"
)

// EventType classifies lifecycle edges written to the audit trail. The
// trail carries a richer taxonomy than the webhook: starts, stops and
// unresponsive escalations are recorded too.
type EventType string

const (
	EventStart        EventType = "start"
	EventCrash        EventType = "crash"
	EventUnresponsive EventType = "unresponsive"
	EventCooldown     EventType = "cooldown"
	EventRecovery     EventType = "recovery"
	EventStop         EventType = "stop"
)

// Event is one audit record. The trail is write-only; supervision state is
// never rebuilt from it on startup.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	PID        int       `json:"pid"`
	Restarts   int       `json:"restarts"`
	Detail     string    `json:"detail"`
}

// Sink is a destination for audit events (databases, search indices).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
