package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/procmgr/internal/api/models"
	"github.com/smazurov/procmgr/internal/events"
	"github.com/smazurov/procmgr/internal/logfile"
	"github.com/smazurov/procmgr/internal/logging"
)

// registerLogRoutes registers the application log stream and the per-process
// log tail.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Application log via Server-Sent Events. Sends buffered history first, then streams new records.",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe first; history and live records may overlap by a few
		// entries, clients deduplicate on seq.
		sub := events.NewSubscription(100)
		events.Forward[events.LogEntryEvent](s.eventBus, sub)
		defer sub.Close()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				event := events.LogEntryEvent{
					Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-sub.C:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "process-log-stream",
		Method:      http.MethodGet,
		Path:        "/api/processes/{label}/log",
		Summary:     "Process Log Tail",
		Description: "Sends the last lines of a process log file, then every line appended to it",
		Tags:        []string{"logs"},
	}, map[string]any{
		"line":  models.LogLineData{},
		"error": models.LogErrorData{},
	}, func(ctx context.Context, input *models.ProcessLogInput, send sse.Sender) {
		info, ok := s.controller.Process(input.Label)
		if !ok {
			_ = send.Data(models.LogErrorData{Label: input.Label, Message: "process not found"})
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		err := logfile.Follow(ctx, info.LogPath, input.Backlog, func(line string) {
			if sendErr := send.Data(models.LogLineData{Label: info.Label, Line: line}); sendErr != nil {
				cancel()
			}
		})
		switch {
		case err == nil:
		case errors.Is(err, logfile.ErrFileRemoved):
			_ = send.Data(models.LogErrorData{Label: info.Label, Message: err.Error()})
		default:
			s.logger.Warn("Log tail failed", "label", info.Label, "path", info.LogPath, "error", err)
			_ = send.Data(models.LogErrorData{Label: info.Label, Message: err.Error()})
		}
	})
}
