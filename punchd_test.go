package punchd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/punchd/punchd/internal/tracker"
)

func newFacade(t *testing.T) *Tracker {
	t.Helper()
	trk, err := New(t.TempDir(), TrackerConfig{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = trk.Close() })
	return trk
}

func TestFacadeStartStatusStop(t *testing.T) {
	trk := newFacade(t)

	id, err := trk.StartTracking("log-1", "task-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id == "" {
		t.Fatal("empty instance id")
	}

	st := trk.Status()
	if !st.Record.TimerRunning {
		t.Fatalf("expected running record: %+v", st.Record)
	}
	if st.Session == nil || st.Session.LogID != "log-1" {
		t.Fatalf("unexpected session: %+v", st.Session)
	}

	if _, err := trk.StartTracking("log-2", ""); !errors.Is(err, tracker.ErrAlreadyRunning) {
		t.Fatalf("second start: %v", err)
	}

	if err := trk.StopTracking(nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st := trk.Status(); st.Record.TimerRunning || st.Session != nil {
		t.Fatalf("expected stopped: %+v", st)
	}
}

func TestFacadeReconcileWithoutSessionIsNoop(t *testing.T) {
	trk := newFacade(t)
	trk.Reconcile()
	trk.Reconcile()
	if st := trk.Status(); st.Record.TimerRunning {
		t.Fatalf("record running after no-op reconcile: %+v", st.Record)
	}
}

func TestFacadeInstanceIDStable(t *testing.T) {
	dir := t.TempDir()
	trk, err := New(dir, TrackerConfig{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	first := trk.InstanceID()
	if first == "" {
		t.Fatal("empty instance id")
	}
	if err := trk.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	trk2, err := New(dir, TrackerConfig{}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = trk2.Close() }()
	if got := trk2.InstanceID(); got != first {
		t.Fatalf("instance id changed across reopen: %q vs %q", got, first)
	}
}

func TestFacadeSubscription(t *testing.T) {
	trk := newFacade(t)
	sub := trk.Subscribe(4)
	defer sub.Close()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("unexpected envelope before any activity")
		}
		t.Fatal("subscription closed early")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLoadConfigHelper(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "punchd.toml")
	data := `
data_dir = "` + filepath.ToSlash(dir) + `"

[tracker]
idle_threshold = "90s"
tamper_threshold = "45s"

[server]
listen = "127.0.0.1:0"
base_path = "/api"
`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	tc := config.TrackerSettings()
	if tc.IdleThreshold != 90*time.Second {
		t.Fatalf("idle threshold: %v", tc.IdleThreshold)
	}
	if tc.TamperThreshold != 45*time.Second {
		t.Fatalf("tamper threshold: %v", tc.TamperThreshold)
	}
	if config.Server.BasePath != "/api" {
		t.Fatalf("base path: %q", config.Server.BasePath)
	}
}

func TestSinkFromDSNHelper(t *testing.T) {
	snk, err := NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	ev := JournalEvent{Type: "started", OccurredAt: time.Now().UTC(), InstanceID: "i", LogID: "l"}
	if err := snk.Send(context.Background(), ev); err != nil {
		t.Fatalf("send: %v", err)
	}
	if closer, ok := snk.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func TestMetricsHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}
}
