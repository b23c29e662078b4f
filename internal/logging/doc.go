// Package logging provides procmgr's application diagnostics: structured
// slog loggers with per-module levels.
//
// Records are routed to every output that is available:
//   - stdout, when it is a terminal, pipe, socket or file
//   - the systemd journal, when journald is listening
//   - the application log file (Config.File), framed like process logs
//   - an in-memory ring buffer streamed by the HTTP API
//
// Initialize once at startup, then fetch a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:    "info",
//		Format:   "text",
//		File:     "logs/main.log",
//		TimeZone: "America/Santiago",
//		Modules:  map[string]string{"supervisor": "debug"},
//	})
//	defer logging.Close()
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Process started", "label", "api", "pid", pid)
//
// Loggers obtained before Initialize are cached and pick up the configured
// level afterwards.
//
// Under journald, entries carry SYSLOG_IDENTIFIER=procmgr and one field per
// attribute:
//
//	journalctl -t procmgr -f
//	journalctl -t procmgr MODULE=supervisor LABEL=api
//
// Example procmgr.toml section:
//
//	[logging]
//	level = "info"
//	format = "text"
//	file = "logs/main.log"
//
//	[logging.modules]
//	supervisor = "debug"
//	api = "warn"
package logging
