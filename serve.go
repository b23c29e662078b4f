package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/procmgr/internal/api"
	"github.com/smazurov/procmgr/internal/config"
	"github.com/smazurov/procmgr/internal/control"
	"github.com/smazurov/procmgr/internal/events"
	"github.com/smazurov/procmgr/internal/logfile"
	"github.com/smazurov/procmgr/internal/logging"
	"github.com/smazurov/procmgr/internal/metrics"
	"github.com/smazurov/procmgr/internal/metrics/collectors"
	"github.com/smazurov/procmgr/internal/metrics/exporters"
	"github.com/smazurov/procmgr/internal/process"
)

// serve runs one supervision session until ctx is cancelled.
func serve(ctx context.Context, opts *Options, loc *time.Location) error {
	logger := logging.GetLogger("main")

	defs, err := config.LoadDefinitions(opts.BasePath, logging.GetLogger("config"))
	if err != nil {
		return err
	}

	stopSignal, err := process.ParseSignal(opts.StopSignal)
	if err != nil {
		return err
	}

	registry := process.NewRegistry(defs)
	if ensureErr := registry.EnsureLogFiles(); ensureErr != nil {
		logger.Warn("Failed to create process log files", "error", ensureErr)
	}

	writer := logfile.NewWriter(logfile.WithLocation(loc))
	defer writer.Close()

	eventBus := events.New()

	var logSeq atomic.Uint64
	logging.SetLogCallback(func(entry logging.LogEntry) {
		eventBus.Publish(events.LogEntryEvent{
			Seq:        logSeq.Add(1),
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	})
	defer logging.SetLogCallback(nil)

	supervisorLogger := logging.GetLogger("supervisor")
	supOpts := process.Options{
		Registry:     registry,
		LogWriter:    writer,
		Logger:       supervisorLogger,
		StaggerDelay: time.Duration(opts.StaggerMs) * time.Millisecond,
		StopSignal:   stopSignal,
		DrainTimeout: time.Duration(opts.DrainTimeoutMs) * time.Millisecond,
		ErrorMarker:  opts.ErrorMarker,
		OnStatusChange: func(label string, state process.State) {
			supervisorLogger.Debug("Status change", "label", label, "status", int(state), "state", state.String())
		},
	}
	if opts.MetricsEnabled {
		supOpts.Metrics = metrics.Recorder{}
	}
	sup := process.NewSupervisor(supOpts)
	sup.Subscribe(api.StatusPublisher(eventBus))

	apiOpts := &api.Options{
		Controller:  control.New(sup, defs.OutDir),
		EventBus:    eventBus,
		AllowOrigin: opts.CorsOrigin,
	}

	if opts.MetricsEnabled {
		sup.Subscribe(metrics.ObserveStatus)
		for _, label := range registry.Labels() {
			metrics.ObserveStatus(label, process.StateStopped)
		}

		interval := time.Duration(opts.MetricsSampleIntervalMs) * time.Millisecond
		usageCollector := collectors.NewUsageCollector(sup, interval, logging.GetLogger("metrics"))
		usageCollector.Start(ctx)
		defer usageCollector.Stop()

		sseExporter := exporters.NewSSEExporter(eventBus, interval)
		sseExporter.Start(ctx)
		defer sseExporter.Stop()

		apiOpts.PrometheusHandler = exporters.HTTPHandler(logging.GetLogger("metrics"))
	}

	if opts.WatchConfig {
		watcher := newDefinitionsWatcher(filepath.Join(opts.BasePath, config.DefinitionsFile), eventBus)
		if startErr := watcher.Start(); startErr != nil {
			logger.Warn("Failed to watch process definitions", "error", startErr)
		} else {
			defer watcher.Stop()
		}
	}

	server := api.NewServer(apiOpts)
	serverErr := make(chan error, 1)
	go func() {
		if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
			serverErr <- startErr
		}
		close(serverErr)
	}()

	if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
		logger.Debug("sd_notify failed", "error", notifyErr)
	}

	if opts.AutoStart {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(opts.StartDelayMs) * time.Millisecond):
			}
			n := sup.StartAll(ctx)
			logger.Info("Initial start issued", "processes", n)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = err
		}
	}

	logger.Info("Shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if stopErr := server.Stop(); stopErr != nil {
		logger.Error("Error stopping HTTP server", "error", stopErr)
	}

	// Stop processes after the HTTP server stops accepting commands.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.ShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	if shutdownErr := sup.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("Processes did not stop within the grace period, killed", "error", shutdownErr)
	}

	return runErr
}

// newDefinitionsWatcher reports edits of config.json on the bus. Edits are
// not applied to the running session.
func newDefinitionsWatcher(path string, bus *events.Bus) *config.Watcher[*config.Definitions] {
	logger := logging.GetLogger("config")
	watcher := config.NewWatcher(path, config.ReadDefinitions, logger,
		config.WithErrorHandler[*config.Definitions](func(err error) {
			bus.Publish(events.ConfigChangedEvent{
				Path:      path,
				Valid:     false,
				Error:     err.Error(),
				Message:   "Process definitions changed but do not parse",
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}),
	)
	watcher.OnReload(func(defs *config.Definitions) {
		logger.Info("Process definitions changed on disk; relaunch to apply", "path", path, "processes", len(defs.Processes))
		bus.Publish(events.ConfigChangedEvent{
			Path:      path,
			Processes: len(defs.Processes),
			Valid:     true,
			Message:   "Process definitions changed; relaunch to apply",
			Timestamp: time.Now().Format(time.RFC3339),
		})
	})
	return watcher
}
