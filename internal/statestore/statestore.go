// Package statestore persists the heartbeat record that lets a restarted
// process reconstruct what happened while no process was running. The record
// is a single JSON document rewritten in place; every write goes through a
// temp file and rename so a reader can never observe a torn record.
package statestore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/punchd/punchd/internal/session"
)

const recordFile = "state.json"

// State is the persisted heartbeat record. Timestamps are unix milliseconds;
// LastActiveAtMono is milliseconds on the monotonic scale and is only
// comparable to readings from the same boot.
type State struct {
	InstanceID       string         `json:"instanceId"`
	LastActiveAt     int64          `json:"lastActiveAt"`
	LastActiveAtMono int64          `json:"lastActiveAtMonotonic"`
	LastEventSource  session.Source `json:"lastEventSource"`
	TimerRunning     bool           `json:"timerRunning"`
	CurrentLogID     string         `json:"currentLogId"`
	TaskID           string         `json:"taskId"`
	SessionStartedAt int64          `json:"sessionStartedAt"`
	ProcessStartTime int64          `json:"processStartTime"`
	UpdatedAt        int64          `json:"updatedAt"`
}

// Store owns the record file. Put buffers the change in memory and flushes
// asynchronously; ForceWrite commits synchronously with fsync before
// returning. Callers that are about to lose the CPU (suspend, shutdown)
// must use ForceWrite.
type Store struct {
	mu     sync.Mutex
	path   string
	cur    State
	dirty  bool
	closed bool

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *slog.Logger
}

// Open loads the record from dir, applying defaults on first use. A missing
// file yields a zero record; an unreadable or corrupt file is logged and
// treated the same way rather than failing the host. The per-install
// instance id is generated and committed on first open and never changes
// afterwards.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create dir: %w", err)
	}
	s := &Store{
		path:    filepath.Join(dir, recordFile),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
	}

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if uerr := sonic.Unmarshal(data, &s.cur); uerr != nil {
			logger.Warn("state record corrupt, starting from defaults", "path", s.path, "error", uerr)
			s.cur = State{}
		}
	case os.IsNotExist(err):
		// first run
	default:
		logger.Warn("state record unreadable, starting from defaults", "path", s.path, "error", err)
	}

	if s.cur.InstanceID == "" {
		s.cur.InstanceID = uuid.NewString()
		if err := s.ForceWrite(func(*State) {}); err != nil {
			return nil, fmt.Errorf("statestore: persist instance id: %w", err)
		}
	}

	go s.flushLoop()
	return s, nil
}

// State returns a point-in-time copy of the record.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// InstanceID returns the stable per-install identifier.
func (s *Store) InstanceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.InstanceID
}

// Put applies mutate to the record and schedules an asynchronous flush.
// Consecutive Puts coalesce; on an ungraceful kill the last moments of
// buffered state may be lost, which the gap measurement tolerates.
func (s *Store) Put(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.cur)
	s.dirty = true
	s.mu.Unlock()

	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// ForceWrite applies mutate and synchronously commits the record: temp file,
// fsync, rename, directory fsync. When it returns the record is on disk.
func (s *Store) ForceWrite(mutate func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.cur)
	if err := s.writeLocked(true); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Flush writes the record now if it has buffered changes.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.writeLocked(false); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close flushes buffered changes and stops the background flusher.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	return s.Flush()
}

// Path returns the record file location.
func (s *Store) Path() string { return s.path }

func (s *Store) flushLoop() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.flushCh:
			if err := s.Flush(); err != nil {
				s.logger.Warn("state flush failed", "path", s.path, "error", err)
			}
		}
	}
}

// writeLocked writes the record under s.mu. sync additionally fsyncs the
// temp file before the rename and the directory after it.
func (s *Store) writeLocked(sync bool) error {
	s.cur.UpdatedAt = time.Now().UnixMilli()
	data, err := sonic.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), recordFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("statestore: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("statestore: write temp: %w", err)
	}
	if sync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("statestore: sync temp: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statestore: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statestore: rename record: %w", err)
	}
	if sync {
		syncDir(filepath.Dir(s.path))
	}
	return nil
}

// syncDir makes the rename durable. Best effort: some filesystems do not
// support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
