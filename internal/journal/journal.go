package journal

import (
	"context"
	"time"

	"github.com/punchd/punchd/internal/session"
)

// EventType defines the kind of session lifecycle event.
type EventType string

const (
	EventStarted EventType = "started"
	EventStopped EventType = "stopped"
	EventIdle    EventType = "idle"
)

// Event represents a session lifecycle entry exported to audit/analytics
// systems. Idle is set on idle events; ReportedIdleSeconds is set on stop
// events when the client submitted its accumulated idle figure.
type Event struct {
	Type                EventType          `json:"type"`
	OccurredAt          time.Time          `json:"occurred_at"`
	InstanceID          string             `json:"instance_id"`
	LogID               string             `json:"log_id"`
	TaskID              string             `json:"task_id"`
	Idle                *session.IdleEvent `json:"idle,omitempty"`
	ReportedIdleSeconds *uint64            `json:"reported_idle_seconds,omitempty"`
}

// Sink is a destination for journal events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader serves queries over journaled events. The SQLite sink implements
// it; pure fan-out sinks do not need to.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
