package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/procmgr/cmd"
	"github.com/smazurov/procmgr/internal/config"
	"github.com/smazurov/procmgr/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to settings file" short:"c" default:"procmgr.toml"`

	// Session settings
	BasePath string `help:"Directory holding config.json and main.log" short:"b" default:"." toml:"procmgr.base_path" env:"BASE_PATH"`

	// Server settings
	Port       string `help:"Address to listen on" short:"p" default:":8091" toml:"server.port" env:"SERVER_PORT"`
	CorsOrigin string `help:"Access-Control-Allow-Origin sent to browser clients" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Supervisor settings
	AutoStart         bool   `help:"Start every process after the initial delay" default:"true" toml:"supervisor.auto_start" env:"SUPERVISOR_AUTO_START"`
	StartDelayMs      int    `help:"Delay before the initial start-all in milliseconds" default:"1000" toml:"supervisor.start_delay_ms" env:"SUPERVISOR_START_DELAY_MS"`
	StaggerMs         int    `help:"Delay between spawns issued by start-all in milliseconds" default:"50" toml:"supervisor.stagger_ms" env:"SUPERVISOR_STAGGER_MS"`
	StopSignal        string `help:"Signal sent to a process group on stop" default:"SIGTERM" toml:"supervisor.stop_signal" env:"SUPERVISOR_STOP_SIGNAL"`
	ShutdownTimeoutMs int    `help:"Grace period before survivors are killed on exit" default:"5000" toml:"supervisor.shutdown_timeout_ms" env:"SUPERVISOR_SHUTDOWN_TIMEOUT_MS"`
	DrainTimeoutMs    int    `help:"How long output is still read after a process exits in milliseconds" default:"5000" toml:"supervisor.drain_timeout_ms" env:"SUPERVISOR_DRAIN_TIMEOUT_MS"`
	ErrorMarker       string `help:"Prefix for stderr lines in process logs" default:"[ERROR] " toml:"supervisor.error_marker" env:"SUPERVISOR_ERROR_MARKER"`
	WatchConfig       bool   `help:"Report changes to config.json while running" default:"true" toml:"supervisor.watch_config" env:"SUPERVISOR_WATCH_CONFIG"`

	// Observability settings
	MetricsEnabled          bool `help:"Enable Prometheus metrics and usage sampling" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsSampleIntervalMs int  `help:"Usage sampling interval in milliseconds" default:"5000" toml:"metrics.sample_interval_ms" env:"METRICS_SAMPLE_INTERVAL_MS"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingTimeZone   string `help:"IANA time zone for log file timestamps (empty for local)" default:"" toml:"logging.time_zone" env:"LOGGING_TIME_ZONE"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingConfig     string `help:"Config logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := logging.Config{
			Level:    opts.LoggingLevel,
			Format:   opts.LoggingFormat,
			File:     filepath.Join(opts.BasePath, "main.log"),
			TimeZone: opts.LoggingTimeZone,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"config":     opts.LoggingConfig,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})

		hooks.OnStart(func() {
			defer close(stopped)
			logging.Initialize(loggingConfig)
			defer logging.Close()

			if err := serve(ctx, opts, loggingConfig.Location()); err != nil {
				logging.GetLogger("main").Error("procmgr stopped with error", "error", err)
				logging.Close()
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			cancel()
			<-stopped
		})
	})

	cli.Root().Use = "procmgr"
	cli.Root().Short = "Supervise local processes defined in config.json"

	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateConfigCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
