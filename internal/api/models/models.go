package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Process models
type ProcessData struct {
	Label        string    `json:"label" example:"api" doc:"Process label"`
	Script       string    `json:"script" example:"node server.js" doc:"Command line, split on single spaces"`
	LogPath      string    `json:"log_path" example:"logs/api.log" doc:"Process log file"`
	Status       int       `json:"status" example:"2" doc:"Numeric state: 0 stopped, 1 starting, 2 running, 3 stopping, 4 errored"`
	State        string    `json:"state" example:"running" doc:"State name"`
	MaxTries     int       `json:"max_tries" example:"-1" doc:"Restart attempts allowed, -1 for unlimited"`
	TriesSleepMs int64     `json:"tries_sleep_ms" example:"1000" doc:"Delay before each restart attempt"`
	TriesUsed    int       `json:"tries_used" example:"0" doc:"Restart attempts used since the last external start"`
	Exhausted    bool      `json:"exhausted" doc:"Whether the restart policy has given up"`
	PID          int       `json:"pid,omitempty" example:"4242" doc:"OS process id while running"`
	RunID        string    `json:"run_id,omitempty" doc:"Identifier of the current spawn attempt"`
	StartedAt    time.Time `json:"started_at,omitzero" doc:"When the current process was spawned"`
	ExitCode     int       `json:"exit_code" example:"0" doc:"Exit code of the last run"`
	LastError    string    `json:"last_error,omitempty" doc:"Last spawn or wait error"`
	RetryAt      time.Time `json:"retry_at,omitzero" doc:"When a pending restart fires"`
}

type ProcessResponse struct {
	Body ProcessData
}

// ProcessListData is also the payload of the SSE init event.
type ProcessListData struct {
	LogPath   string        `json:"logPath" example:"logs/" doc:"Directory holding process logs"`
	Processes []ProcessData `json:"processes" doc:"Every configured process in declaration order"`
	Count     int           `json:"count" example:"3" doc:"Number of processes"`
}

type ProcessListResponse struct {
	Body ProcessListData
}

type ProcessLabelInput struct {
	Label string `path:"label" example:"api" doc:"Process label"`
}

// Command models
type ActionData struct {
	Label   string `json:"label" example:"api" doc:"Process label"`
	Known   bool   `json:"known" doc:"Whether the label exists"`
	Changed bool   `json:"changed" doc:"Whether the command changed the process"`
	Status  int    `json:"status" example:"2" doc:"Numeric state after the command"`
	State   string `json:"state" example:"running" doc:"State name after the command"`
	Error   string `json:"error,omitempty" doc:"Why the command had no effect, or the spawn error"`
}

type ActionResponse struct {
	Body ActionData
}

type BulkActionData struct {
	Issued  int    `json:"issued" example:"3" doc:"Number of processes the command was issued to"`
	Message string `json:"message" example:"Start issued" doc:"Status message"`
}

type BulkActionResponse struct {
	Body BulkActionData
}

type LogPathRequestData struct {
	Path string `json:"path,omitempty" example:"logs/api.log" doc:"Path inside the log directory; empty opens the directory"`
}

type LogPathRequest struct {
	Body *LogPathRequestData
}

type LogPathData struct {
	Path    string `json:"path" example:"/opt/app/logs" doc:"Opened path"`
	Message string `json:"message" example:"Opened in file browser" doc:"Status message"`
}

type LogPathResponse struct {
	Body LogPathData
}

// Log tail models
type ProcessLogInput struct {
	Label   string `path:"label" example:"api" doc:"Process label"`
	Backlog int    `query:"backlog" default:"50" minimum:"0" maximum:"1000" doc:"Existing lines to send before following"`
}

type LogLineData struct {
	Label string `json:"label" example:"api" doc:"Process label"`
	Line  string `json:"line" example:"[2025-01-27 10:30:00] listening on :3000" doc:"Log line as written to the file"`
}

type LogErrorData struct {
	Label   string `json:"label" example:"api" doc:"Process label"`
	Message string `json:"message" doc:"Why the stream ended"`
}

// InitData is the payload of the SSE init event. It has its own type so the
// SSE sender can map it to the event name.
type InitData ProcessListData
