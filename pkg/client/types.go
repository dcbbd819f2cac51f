package client

import "time"

// Feed envelope kinds.
const (
	KindIdleEvent = "idle-event"
	KindSample    = "idle-time-update"
)

// Source tags carried on records and idle events.
const (
	SourceHeartbeat    = "heartbeat"
	SourceLock         = "lock"
	SourceSuspend      = "suspend"
	SourceShutdown     = "shutdown"
	SourceUserInactive = "user-inactive"
)

// HardIdleSource reports whether src names an OS-attested absence (screen
// locked, machine asleep, machine off) rather than inferred input silence.
func HardIdleSource(src string) bool {
	switch src {
	case SourceLock, SourceSuspend, SourceShutdown:
		return true
	}
	return false
}

// StartRequest is the payload for POST /start.
type StartRequest struct {
	LogID  string `json:"logId"`
	TaskID string `json:"taskId"`
}

// StartResponse is the daemon's reply to a successful start.
type StartResponse struct {
	OK         bool   `json:"ok"`
	InstanceID string `json:"instanceId"`
}

// StopRequest is the payload for POST /stop. IdleSeconds carries the
// client-side accumulated idle figure when one was collected.
type StopRequest struct {
	IdleSeconds *uint64 `json:"idleSeconds,omitempty"`
}

// Record mirrors the daemon's persisted heartbeat record. Timestamps are
// unix milliseconds except LastActiveAtMono, which is milliseconds on the
// daemon's monotonic scale.
type Record struct {
	InstanceID       string `json:"instanceId"`
	LastActiveAt     int64  `json:"lastActiveAt"`
	LastActiveAtMono int64  `json:"lastActiveAtMonotonic"`
	LastEventSource  string `json:"lastEventSource"`
	TimerRunning     bool   `json:"timerRunning"`
	CurrentLogID     string `json:"currentLogId"`
	TaskID           string `json:"taskId"`
	SessionStartedAt int64  `json:"sessionStartedAt"`
	ProcessStartTime int64  `json:"processStartTime"`
	UpdatedAt        int64  `json:"updatedAt"`
}

// Session describes the running work interval, when one exists.
type Session struct {
	InstanceID string    `json:"instanceId"`
	LogID      string    `json:"logId"`
	TaskID     string    `json:"taskId"`
	StartedAt  time.Time `json:"startedAt"`
	Running    bool      `json:"running"`
}

// Status is the daemon's answer to GET /status.
type Status struct {
	Record  Record   `json:"record"`
	Session *Session `json:"session,omitempty"`
}

// IdleEvent is one reconciled absence reported by the daemon. Timestamps
// are unix milliseconds.
type IdleEvent struct {
	IdleSeconds    uint64 `json:"idleSeconds"`
	Source         string `json:"source"`
	StartedAt      int64  `json:"startedAt"`
	EndedAt        int64  `json:"endedAt"`
	LogID          string `json:"logId"`
	GapDetected    bool   `json:"gapDetected"`
	ClockTampering bool   `json:"clockTampering"`
}

// Sample is one idle-probe reading taken while a session runs.
type Sample struct {
	LogID       string `json:"logId"`
	IdleSeconds uint64 `json:"idleSeconds"`
	At          int64  `json:"at"`
}

// Envelope is one message from the live feed. Exactly one payload pointer
// is set, matching Type.
type Envelope struct {
	Type      string     `json:"type"`
	IdleEvent *IdleEvent `json:"idleEvent,omitempty"`
	Sample    *Sample    `json:"sample,omitempty"`
}

// Event is one journaled lifecycle entry returned by GET /events.
type Event struct {
	Type                string     `json:"type"`
	OccurredAt          time.Time  `json:"occurred_at"`
	InstanceID          string     `json:"instance_id"`
	LogID               string     `json:"log_id"`
	TaskID              string     `json:"task_id"`
	Idle                *IdleEvent `json:"idle,omitempty"`
	ReportedIdleSeconds *uint64    `json:"reported_idle_seconds,omitempty"`
}

// InstanceResponse is the daemon's reply to GET /instance-id.
type InstanceResponse struct {
	InstanceID string `json:"instanceId"`
}

// ErrorResponse is the error payload returned by the daemon API.
type ErrorResponse struct {
	Error string `json:"error"`
}
