package tracker

import (
	"time"

	"github.com/punchd/punchd/internal/clock"
	"github.com/punchd/punchd/internal/metrics"
	"github.com/punchd/punchd/internal/statestore"
)

// heartbeat refreshes the activity timestamps once per cadence while a
// session runs. Ordinary buffered writes are enough: losing the final
// moment on a hard kill is absorbed by gap measurement on the next start.
type heartbeat struct {
	store *statestore.Store
	clk   clock.Clock
	every time.Duration

	logID     string
	taskID    string
	startedAt time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func newHeartbeat(store *statestore.Store, clk clock.Clock, every time.Duration) *heartbeat {
	return &heartbeat{
		store:  store,
		clk:    clk,
		every:  every,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (h *heartbeat) start() { go h.run() }

func (h *heartbeat) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.every)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

// beat touches only the activity timestamps. Boundary sources stamped by
// the power monitors must survive until the next boundary.
func (h *heartbeat) beat() {
	nowMs := h.clk.Now().UnixMilli()
	monoMs := h.clk.Monotonic().Milliseconds()
	h.store.Put(func(s *statestore.State) {
		s.LastActiveAt = nowMs
		s.LastActiveAtMono = monoMs
	})
	metrics.IncHeartbeatWrite()
}

func (h *heartbeat) stop() {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
	<-h.doneCh
}
