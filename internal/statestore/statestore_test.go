package statestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/punchd/punchd/internal/session"
)

func openT(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestOpenFirstRunGeneratesInstanceID(t *testing.T) {
	dir := t.TempDir()
	s := openT(t, dir)
	defer s.Close()

	id := s.InstanceID()
	if id == "" {
		t.Fatal("instance id empty on first run")
	}
	if got := s.InstanceID(); got != id {
		t.Fatalf("instance id changed between calls: %q then %q", id, got)
	}

	// The id must be committed immediately, not buffered.
	if _, err := os.Stat(filepath.Join(dir, recordFile)); err != nil {
		t.Fatalf("record not on disk after first open: %v", err)
	}
}

func TestInstanceIDStableAcrossReload(t *testing.T) {
	dir := t.TempDir()
	s1 := openT(t, dir)
	id := s1.InstanceID()
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := openT(t, dir)
	defer s2.Close()
	if got := s2.InstanceID(); got != id {
		t.Fatalf("instance id changed across reload: %q then %q", id, got)
	}
}

func TestForceWriteSurvivesUncleanExit(t *testing.T) {
	dir := t.TempDir()
	s1 := openT(t, dir)
	err := s1.ForceWrite(func(st *State) {
		st.TimerRunning = true
		st.CurrentLogID = "log-1"
		st.LastActiveAt = 123456
	})
	if err != nil {
		t.Fatalf("force write: %v", err)
	}
	err = s1.ForceWrite(func(st *State) {
		st.TimerRunning = false
		st.CurrentLogID = ""
	})
	if err != nil {
		t.Fatalf("force write: %v", err)
	}
	// No Close: the process "crashed" here.

	s2 := openT(t, dir)
	defer s2.Close()
	st := s2.State()
	if st.TimerRunning {
		t.Fatal("timerRunning true after committed stop")
	}
	if st.LastActiveAt != 123456 {
		t.Fatalf("lastActiveAt = %d, want 123456", st.LastActiveAt)
	}
}

func TestPutIsBufferedUntilFlush(t *testing.T) {
	dir := t.TempDir()
	s := openT(t, dir)
	defer s.Close()

	s.Put(func(st *State) {
		st.LastEventSource = session.SourceHeartbeat
		st.LastActiveAt = 42
	})

	// In-memory view reflects the change immediately.
	if got := s.State().LastActiveAt; got != 42 {
		t.Fatalf("in-memory lastActiveAt = %d, want 42", got)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	s2 := openT(t, dir)
	defer s2.Close()
	if got := s2.State().LastActiveAt; got != 42 {
		t.Fatalf("persisted lastActiveAt = %d, want 42", got)
	}
}

func TestCorruptRecordFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, recordFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s := openT(t, dir)
	defer s.Close()
	st := s.State()
	if st.TimerRunning {
		t.Fatal("corrupt record should yield default (not running) state")
	}
	if st.InstanceID == "" {
		t.Fatal("fresh instance id expected after corrupt record")
	}
}

func TestStateReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	s := openT(t, dir)
	defer s.Close()

	snap := s.State()
	snap.TimerRunning = true
	if s.State().TimerRunning {
		t.Fatal("mutating snapshot leaked into store")
	}
}

func TestWritesStampUpdatedAt(t *testing.T) {
	dir := t.TempDir()
	s := openT(t, dir)
	defer s.Close()

	// The first-open instance id commit already stamped the record.
	first := s.State().UpdatedAt
	if first == 0 {
		t.Fatal("updatedAt not stamped on first commit")
	}

	time.Sleep(2 * time.Millisecond)
	if err := s.ForceWrite(func(st *State) { st.TaskID = "t-1" }); err != nil {
		t.Fatalf("force write: %v", err)
	}
	if got := s.State().UpdatedAt; got <= first {
		t.Fatalf("updatedAt not advanced by forced write: %d then %d", first, got)
	}
}

func TestCloseFlushesBufferedChanges(t *testing.T) {
	dir := t.TempDir()
	s := openT(t, dir)
	s.Put(func(st *State) { st.TaskID = "t-9" })
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := openT(t, dir)
	defer s2.Close()
	if got := s2.State().TaskID; got != "t-9" {
		t.Fatalf("taskId = %q, want t-9", got)
	}
}
