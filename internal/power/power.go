// Package power observes the transitions that bound absences: screen lock
// and unlock, suspend and resume, shutdown, and input inactivity. Monitors
// translate platform signals into Boundary values; the tracker owns what
// happens next.
package power

import (
	"context"
	"errors"
	"time"

	"github.com/punchd/punchd/internal/session"
)

// ErrProbeUnsupported indicates input idle detection is not available on
// this system.
var ErrProbeUnsupported = errors.New("input idle probe unsupported")

// BoundaryKind says which side of an absence a boundary marks.
type BoundaryKind string

const (
	IdleStart BoundaryKind = "idle-start"
	IdleEnd   BoundaryKind = "idle-end"
)

// Boundary is one observed transition. At is when the monitor saw it; the
// tracker stamps its own clock when persisting.
type Boundary struct {
	Kind   BoundaryKind
	Source session.Source
	At     time.Time
}

// Monitor watches one source of transitions and reports boundaries through
// emit until ctx is cancelled. Run blocks.
type Monitor interface {
	Name() string
	Run(ctx context.Context, emit func(Boundary)) error
}

// Probe reports the duration since the last user input.
type Probe interface {
	IdleDuration() (time.Duration, error)
}

// NewProbe returns the platform-specific input idle probe.
func NewProbe() Probe {
	return newProbe()
}
