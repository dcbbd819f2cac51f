// Package session defines the types shared between the tracker, the event
// feed and the journal: the tracked session itself, the source tags that
// annotate activity boundaries, and the idle event produced when a gap is
// reconciled.
package session

import "time"

// Source tags the system event that last touched the heartbeat record.
type Source string

const (
	SourceHeartbeat    Source = "heartbeat"
	SourceLock         Source = "lock"
	SourceUnlock       Source = "unlock"
	SourceSuspend      Source = "suspend"
	SourceResume       Source = "resume"
	SourceShutdown     Source = "shutdown"
	SourceUserActive   Source = "user-active"
	SourceUserInactive Source = "user-inactive"
)

// HardIdle reports whether idle time attributed to this source is
// OS-attested absence (screen locked, machine asleep, machine off) as
// opposed to inferred input inactivity.
func (s Source) HardIdle() bool {
	switch s {
	case SourceLock, SourceSuspend, SourceShutdown:
		return true
	}
	return false
}

// StartsIdle reports whether the source marks the beginning of an absence.
func (s Source) StartsIdle() bool {
	switch s {
	case SourceLock, SourceSuspend, SourceShutdown, SourceUserInactive:
		return true
	}
	return false
}

// Valid reports whether s is one of the known source tags.
func (s Source) Valid() bool {
	switch s {
	case SourceHeartbeat, SourceLock, SourceUnlock, SourceSuspend,
		SourceResume, SourceShutdown, SourceUserActive, SourceUserInactive:
		return true
	}
	return false
}

// Session identifies one tracked work interval owned by this install.
type Session struct {
	InstanceID string    `json:"instanceId"`
	LogID      string    `json:"logId"`
	TaskID     string    `json:"taskId"`
	StartedAt  time.Time `json:"startedAt"`
	Running    bool      `json:"running"`
}

// IdleEvent describes one reconciled absence. Timestamps are unix
// milliseconds so the payload round-trips unchanged through the feed.
type IdleEvent struct {
	IdleSeconds    uint64 `json:"idleSeconds"`
	Source         Source `json:"source"`
	StartedAt      int64  `json:"startedAt"`
	EndedAt        int64  `json:"endedAt"`
	LogID          string `json:"logId"`
	GapDetected    bool   `json:"gapDetected"`
	ClockTampering bool   `json:"clockTampering"`
}

// Duration returns the reconciled absence as a time.Duration.
func (e IdleEvent) Duration() time.Duration {
	return time.Duration(e.IdleSeconds) * time.Second
}

// Sample is one idle-probe reading taken while a session runs.
type Sample struct {
	LogID       string `json:"logId"`
	IdleSeconds uint64 `json:"idleSeconds"`
	At          int64  `json:"at"`
}
