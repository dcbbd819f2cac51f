package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/punchd/punchd/internal/clock"
	"github.com/punchd/punchd/internal/config"
	"github.com/punchd/punchd/internal/journal"
	"github.com/punchd/punchd/internal/journal/factory"
	"github.com/punchd/punchd/internal/logger"
	"github.com/punchd/punchd/internal/metrics"
	"github.com/punchd/punchd/internal/power"
	"github.com/punchd/punchd/internal/server"
	"github.com/punchd/punchd/internal/statestore"
	"github.com/punchd/punchd/internal/tracker"
)

func runServe(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	var (
		cfg *config.FileConfig
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg, err = config.Default()
		if err != nil {
			return err
		}
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	log, logCloser, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := statestore.Open(cfg.DataDir, log)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	trk := tracker.New(store, clock.System(), cfg.TrackerSettings(), log)

	// Journal sinks by DSN; the first queryable one also serves GET /events.
	var (
		sinks  []journal.Sink
		reader journal.Reader
	)
	for _, dsn := range cfg.Journal.DSNs {
		snk, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			return fmt.Errorf("journal sink %q: %w", dsn, err)
		}
		if closer, ok := snk.(io.Closer); ok {
			defer func() { _ = closer.Close() }()
		}
		sinks = append(sinks, snk)
		if reader == nil {
			if rd, ok := snk.(journal.Reader); ok {
				reader = rd
			}
		}
	}
	trk.SetJournalSinks(sinks...)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	router := server.NewRouter(trk, cfg.Server.BasePath)
	router.SetLogger(log)
	if reader != nil {
		router.SetJournalReader(reader)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		router.SetCORSOrigins(cfg.Server.CORSOrigins)
	}
	srv := server.NewServer(cfg.Server.Listen, router)

	// Settle whatever the previous run left behind, then adopt a surviving
	// session if the record still holds one.
	trk.Startup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitors := power.OSMonitors(log)
	monitors = append(monitors, &power.FreezeWatcher{Clock: clock.System(), Logger: log})
	if cfg.InputEnabled() {
		monitors = append(monitors, &power.InputWatcher{
			Probe:     power.NewProbe(),
			Interval:  cfg.Input.Interval,
			Threshold: cfg.Input.Threshold,
			Logger:    log,
			OnSample:  trk.PublishSample,
		})
	}
	trk.StartMonitors(ctx, monitors...)

	// Tracker thresholds follow config edits without a restart.
	if configPath != "" {
		watcher, err := config.Watch(configPath, log, func() {
			next, err := config.Load(configPath)
			if err != nil {
				log.Warn("config reload failed", "error", err)
				return
			}
			trk.UpdateConfig(next.TrackerSettings())
			log.Info("tracker config reloaded")
		})
		if err != nil {
			log.Warn("config watch unavailable", "error", err)
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	log.Info("punchd serving",
		"listen", cfg.Server.Listen,
		"basePath", cfg.Server.BasePath,
		"dataDir", cfg.DataDir,
		"instanceId", trk.InstanceID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	trk.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server shutdown", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if flags.PidFile != "" {
		_ = removePidFile(flags.PidFile)
	}
	return nil
}
