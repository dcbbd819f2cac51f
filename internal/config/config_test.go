package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "punchd.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestLoadFullConfig(t *testing.T) {
	file := writeConfig(t, `
data_dir = "/var/lib/punchd"

[log]
level = "debug"
dir = "/var/log/punchd"
max_size_mb = 5
compress = true

[tracker]
idle_threshold = "90s"
tamper_threshold = "45s"
heartbeat_every = "2s"

[input]
enabled = false
interval = "500ms"
threshold = "120s"

[server]
listen = "127.0.0.1:9000"
base_path = "/punchd"
cors_origins = ["http://localhost:5173"]

[metrics]
listen = "127.0.0.1:9100"

[journal]
dsns = ["sqlite:///var/lib/punchd/journal.db", "postgres://u:p@localhost/db"]
`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.DataDir != "/var/lib/punchd" {
		t.Errorf("data_dir = %q", fc.DataDir)
	}
	if fc.Tracker.IdleThreshold != 90*time.Second {
		t.Errorf("idle_threshold = %v", fc.Tracker.IdleThreshold)
	}
	if fc.Tracker.TamperThreshold != 45*time.Second {
		t.Errorf("tamper_threshold = %v", fc.Tracker.TamperThreshold)
	}
	if fc.Input.Interval != 500*time.Millisecond {
		t.Errorf("input interval = %v", fc.Input.Interval)
	}
	if fc.InputEnabled() {
		t.Error("input should be disabled")
	}
	if fc.Server.Listen != "127.0.0.1:9000" || fc.Server.BasePath != "/punchd" {
		t.Errorf("server = %+v", fc.Server)
	}
	if len(fc.Server.CORSOrigins) != 1 {
		t.Errorf("cors_origins = %v", fc.Server.CORSOrigins)
	}
	if fc.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("metrics listen = %q", fc.Metrics.Listen)
	}
	if len(fc.Journal.DSNs) != 2 {
		t.Errorf("journal dsns = %v", fc.Journal.DSNs)
	}

	lc := fc.LoggerConfig()
	if lc.Level != "debug" || lc.Dir != "/var/log/punchd" || lc.MaxSizeMB != 5 || !lc.Compress {
		t.Errorf("logger config = %+v", lc)
	}
	tc := fc.TrackerSettings()
	if tc.HeartbeatEvery != 2*time.Second {
		t.Errorf("tracker settings = %+v", tc)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	file := writeConfig(t, `data_dir = "/tmp/punchd-test"`)
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Server.Listen != DefaultListen {
		t.Errorf("listen default = %q", fc.Server.Listen)
	}
	if fc.Server.BasePath != DefaultBasePath {
		t.Errorf("base_path default = %q", fc.Server.BasePath)
	}
	if !fc.InputEnabled() {
		t.Error("input should default to enabled")
	}
	if fc.Tracker.IdleThreshold != 0 {
		t.Errorf("tracker section should stay zero for downstream defaults, got %v", fc.Tracker.IdleThreshold)
	}
}

func TestDefaultResolvesDataDir(t *testing.T) {
	fc, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if fc.DataDir == "" {
		t.Fatal("data dir not resolved")
	}
	if filepath.Base(fc.DataDir) != "punchd" {
		t.Errorf("data dir = %q", fc.DataDir)
	}
}

func TestLoadRejectsBadBasePath(t *testing.T) {
	file := writeConfig(t, `
data_dir = "/tmp/punchd-test"
[server]
base_path = "api"
`)
	if _, err := Load(file); err == nil {
		t.Fatal("expected error for base_path without leading slash")
	}
}

func TestLoadRejectsEmptyDSN(t *testing.T) {
	file := writeConfig(t, `
data_dir = "/tmp/punchd-test"
[journal]
dsns = ["sqlite://x.db", "  "]
`)
	if _, err := Load(file); err == nil {
		t.Fatal("expected error for blank journal dsn")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatchFiresOnRewrite(t *testing.T) {
	file := writeConfig(t, `data_dir = "/tmp/punchd-test"`)
	changed := make(chan struct{}, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	closer, err := Watch(file, logger, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer func() { _ = closer.Close() }()

	// Give the watcher goroutine a moment to come up, then rewrite.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(file, []byte(`data_dir = "/tmp/punchd-test2"`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watch callback not invoked")
	}
}

func TestWatchIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "punchd.toml")
	if err := os.WriteFile(file, []byte(`data_dir = "/tmp/x"`), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	changed := make(chan struct{}, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	closer, err := Watch(file, logger, func() { changed <- struct{}{} })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer func() { _ = closer.Close() }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	select {
	case <-changed:
		t.Fatal("callback fired for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}
