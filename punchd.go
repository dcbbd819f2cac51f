package punchd

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/punchd/punchd/internal/clock"
	cfg "github.com/punchd/punchd/internal/config"
	"github.com/punchd/punchd/internal/feed"
	"github.com/punchd/punchd/internal/journal"
	"github.com/punchd/punchd/internal/journal/factory"
	"github.com/punchd/punchd/internal/metrics"
	"github.com/punchd/punchd/internal/power"
	iapi "github.com/punchd/punchd/internal/server"
	"github.com/punchd/punchd/internal/session"
	"github.com/punchd/punchd/internal/statestore"
	"github.com/punchd/punchd/internal/tracker"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type IdleEvent = session.IdleEvent

type Sample = session.Sample

type Source = session.Source

type State = statestore.State

type Status = tracker.Status

type TrackerConfig = tracker.Config

type Envelope = feed.Envelope

type Subscription = feed.Subscription

type JournalSink = journal.Sink

type JournalEvent = journal.Event

// Tracker is a thin facade over internal/tracker.Tracker plus its record
// store. It provides a stable public API for embedding the idle engine in
// another host process.
type Tracker struct {
	inner *tracker.Tracker
	store *statestore.Store
}

// New opens the record store in dataDir and builds a tracker on it with the
// given thresholds. Zero thresholds take the defaults (60 s idle, 30 s
// tamper, 1 s heartbeat). A nil logger means slog.Default().
func New(dataDir string, tc TrackerConfig, logger *slog.Logger) (*Tracker, error) {
	store, err := statestore.Open(dataDir, logger)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		inner: tracker.New(store, clock.System(), tc, logger),
		store: store,
	}, nil
}

func (t *Tracker) StartTracking(logID, taskID string) (string, error) {
	return t.inner.StartTracking(logID, taskID)
}

func (t *Tracker) StopTracking(reportedIdle *uint64) error {
	return t.inner.StopTracking(reportedIdle)
}

func (t *Tracker) Status() Status { return t.inner.Status() }

func (t *Tracker) Reconcile() { t.inner.Reconcile() }

// Startup runs the once-per-process reconciliation and adopts a session the
// record still holds. Call it once before the monitors start.
func (t *Tracker) Startup() { t.inner.Startup() }

func (t *Tracker) InstanceID() string { return t.inner.InstanceID() }

// Subscribe attaches a feed listener for idle events and input samples.
// Close the subscription when done with it.
func (t *Tracker) Subscribe(buffer int) *Subscription {
	return t.inner.Feed().Subscribe(buffer)
}

func (t *Tracker) SetJournalSinks(sinks ...JournalSink) {
	t.inner.SetJournalSinks(sinks...)
}

// StartMonitors runs the platform power and lock monitors plus the freeze
// watcher until ctx is cancelled or Close is called.
func (t *Tracker) StartMonitors(ctx context.Context, logger *slog.Logger) {
	monitors := power.OSMonitors(logger)
	monitors = append(monitors, &power.FreezeWatcher{Clock: clock.System(), Logger: logger})
	t.inner.StartMonitors(ctx, monitors...)
}

// Close shuts the tracker down: a running session gets a shutdown boundary
// stamped (it is reconciled, not stopped, on the next start), the monitors
// and the feed stop, and the record store flushes.
func (t *Tracker) Close() error {
	t.inner.Shutdown()
	return t.store.Close()
}

// Inner exposes the internal tracker for the HTTP router.
func (t *Tracker) tracker() *tracker.Tracker { return t.inner }

type Config = cfg.FileConfig

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

func DefaultConfig() (*Config, error) {
	return cfg.Default()
}

// NewSinkFromDSN builds a journal sink from a DSN
// (sqlite path, postgres:// or clickhouse:// URL).
func NewSinkFromDSN(dsn string) (JournalSink, error) {
	return factory.NewSinkFromDSN(dsn)
}

// NewRouter returns the embeddable HTTP router serving the tracker API and
// the websocket feed under basePath.
func NewRouter(t *Tracker, basePath string) *iapi.Router {
	return iapi.NewRouter(t.tracker(), basePath)
}

// NewHTTPServer starts an HTTP server on addr exposing the tracker API
// under basePath.
func NewHTTPServer(addr, basePath string, t *Tracker) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(t.tracker(), basePath))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
