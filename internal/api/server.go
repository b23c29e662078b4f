package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/procmgr/internal/api/models"
	"github.com/smazurov/procmgr/internal/control"
	"github.com/smazurov/procmgr/internal/events"
	"github.com/smazurov/procmgr/internal/logging"
	"github.com/smazurov/procmgr/internal/process"
	"github.com/smazurov/procmgr/internal/version"
)

// ProcessController is the command surface the API drives.
// *control.Controller satisfies it.
type ProcessController interface {
	Start(label string) control.Result
	Stop(label string) control.Result
	StartAll(ctx context.Context) int
	StopAll()
	Describe() control.Description
	Process(label string) (process.Info, bool)
	OpenLogDirectory(path string) error
}

// Options configures the API server.
type Options struct {
	Controller        ProcessController
	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
	AllowOrigin       string       // CORS origin; empty allows any
}

// Server is the procmgr HTTP API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	controller ProcessController
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if opts.AllowOrigin != "" {
		corsConfig.AllowOrigin = opts.AllowOrigin
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("procmgr API", version.String())
	config.Info.Description = "Control and status API for locally supervised processes"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	eventBus := opts.EventBus
	if eventBus == nil {
		eventBus = events.New()
	}

	server := &Server{
		api:        api,
		mux:        mux,
		controller: opts.Controller,
		eventBus:   eventBus,
		logger:     logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(newRequestLogger(logging.GetLogger("http")))

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting procmgr API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, SSE streams included.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		versionInfo := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   versionInfo.Version,
				GitCommit: versionInfo.GitCommit,
				BuildDate: versionInfo.BuildDate,
				BuildID:   versionInfo.BuildID,
				GoVersion: versionInfo.GoVersion,
				Compiler:  versionInfo.Compiler,
				Platform:  versionInfo.Platform,
			},
		}, nil
	})

	s.registerProcessRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

func (s *Server) registerProcessRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "List processes",
		Description: "Log directory and every configured process with its current state",
		Tags:        []string{"processes"},
	}, func(ctx context.Context, input *struct{}) (*models.ProcessListResponse, error) {
		return &models.ProcessListResponse{Body: s.describe()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/api/processes/{label}",
		Summary:     "Get process",
		Description: "Current state of one process",
		Tags:        []string{"processes"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *models.ProcessLabelInput) (*models.ProcessResponse, error) {
		info, ok := s.controller.Process(input.Label)
		if !ok {
			return nil, huma.Error404NotFound("process not found: " + input.Label)
		}
		return &models.ProcessResponse{Body: toProcessData(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-process",
		Method:      http.MethodPost,
		Path:        "/api/processes/{label}/start",
		Summary:     "Start process",
		Description: "Start a stopped or errored process. Unknown labels are ignored.",
		Tags:        []string{"processes"},
	}, func(ctx context.Context, input *models.ProcessLabelInput) (*models.ActionResponse, error) {
		return &models.ActionResponse{Body: toActionData(s.controller.Start(input.Label))}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-process",
		Method:      http.MethodPost,
		Path:        "/api/processes/{label}/stop",
		Summary:     "Stop process",
		Description: "Signal a running process and suppress its restart. Unknown labels are ignored.",
		Tags:        []string{"processes"},
	}, func(ctx context.Context, input *models.ProcessLabelInput) (*models.ActionResponse, error) {
		return &models.ActionResponse{Body: toActionData(s.controller.Stop(input.Label))}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-all-processes",
		Method:      http.MethodPost,
		Path:        "/api/processes/start-all",
		Summary:     "Start all",
		Description: "Start every stopped process with a short delay between spawns",
		Tags:        []string{"processes"},
	}, func(ctx context.Context, input *struct{}) (*models.BulkActionResponse, error) {
		n := s.controller.StartAll(ctx)
		return &models.BulkActionResponse{
			Body: models.BulkActionData{Issued: n, Message: "Start issued"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-all-processes",
		Method:      http.MethodPost,
		Path:        "/api/processes/stop-all",
		Summary:     "Stop all",
		Description: "Signal every active process",
		Tags:        []string{"processes"},
	}, func(ctx context.Context, input *struct{}) (*models.BulkActionResponse, error) {
		active := 0
		for _, p := range s.controller.Describe().Processes {
			if !p.State.Quiescent() {
				active++
			}
		}
		s.controller.StopAll()
		return &models.BulkActionResponse{
			Body: models.BulkActionData{Issued: active, Message: "Stop issued"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "open-log-path",
		Method:      http.MethodPost,
		Path:        "/api/log-path",
		Summary:     "Open log directory",
		Description: "Open the log directory, or a log file inside it, in the host file browser",
		Tags:        []string{"logs"},
		Errors:      []int{403, 500},
	}, func(ctx context.Context, input *models.LogPathRequest) (*models.LogPathResponse, error) {
		var path string
		if input.Body != nil {
			path = input.Body.Path
		}
		if err := s.controller.OpenLogDirectory(path); err != nil {
			if errors.Is(err, control.ErrPathNotAllowed) {
				return nil, huma.Error403Forbidden(err.Error())
			}
			return nil, huma.Error500InternalServerError("failed to open log path", err)
		}
		if path == "" {
			path = s.controller.Describe().LogPath
		}
		return &models.LogPathResponse{
			Body: models.LogPathData{Path: path, Message: "Opened in file browser"},
		}, nil
	})
}

func (s *Server) describe() models.ProcessListData {
	d := s.controller.Describe()
	data := models.ProcessListData{
		LogPath:   d.LogPath,
		Processes: make([]models.ProcessData, 0, len(d.Processes)),
		Count:     len(d.Processes),
	}
	for _, info := range d.Processes {
		data.Processes = append(data.Processes, toProcessData(info))
	}
	return data
}

func toProcessData(info process.Info) models.ProcessData {
	return models.ProcessData{
		Label:        info.Label,
		Script:       info.Script,
		LogPath:      info.LogPath,
		Status:       int(info.State),
		State:        info.State.String(),
		MaxTries:     info.MaxTries,
		TriesSleepMs: info.TriesSleep.Milliseconds(),
		TriesUsed:    info.TriesUsed,
		Exhausted:    info.Exhausted,
		PID:          info.PID,
		RunID:        info.RunID,
		StartedAt:    info.StartedAt,
		ExitCode:     info.ExitCode,
		LastError:    info.LastError,
		RetryAt:      info.RetryAt,
	}
}

func toActionData(res control.Result) models.ActionData {
	return models.ActionData{
		Label:   res.Label,
		Known:   res.Known,
		Changed: res.Changed,
		Status:  int(res.State),
		State:   res.State.String(),
		Error:   res.Error,
	}
}
