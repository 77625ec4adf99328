package models

import (
	"time"
)

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
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go runtime version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Managed server models
type ServerData struct {
	State      string     `json:"state" example:"running" doc:"Lifecycle state" enum:"idle,starting,running,stopping,stopped,failed"`
	Executable string     `json:"executable" example:"/usr/local/bin/ollama" doc:"Resolved server executable"`
	Address    string     `json:"address" example:"localhost:11434" doc:"Address the server listens on"`
	PID        int        `json:"pid,omitempty" example:"4242" doc:"Process ID while a process is held"`
	StartedAt  *time.Time `json:"started_at,omitempty" doc:"When the current process was spawned"`
	ExitCode   *int       `json:"exit_code,omitempty" example:"1" doc:"Exit code of the last process"`
	Restarts   int        `json:"restarts" example:"0" doc:"Number of restarts since launch"`
	LastError  string     `json:"last_error,omitempty" doc:"Most recent lifecycle failure"`
}

type ServerResponse struct {
	Body ServerData
}

type ServerHealthData struct {
	Healthy bool   `json:"healthy" example:"true" doc:"Whether the readiness probe succeeded"`
	State   string `json:"state" example:"running" doc:"Lifecycle state at probe time"`
}

type ServerHealthResponse struct {
	Body ServerHealthData
}

type OutputLineData struct {
	Time   time.Time `json:"time" doc:"When the line was read"`
	Source string    `json:"source" example:"stderr" doc:"Stream the line came from" enum:"stdout,stderr"`
	Text   string    `json:"text" doc:"Raw line"`
}

type ServerOutputData struct {
	Lines []OutputLineData `json:"lines" doc:"Most recent server output, oldest first"`
	Count int              `json:"count" example:"50" doc:"Number of lines returned"`
}

type ServerOutputResponse struct {
	Body ServerOutputData
}

// Log models
type LogsRequest struct {
	Limit int `query:"limit" minimum:"0" maximum:"1000" default:"0" doc:"Return only the last N entries, 0 for all"`
}

type LogEntryData struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"server" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int            `json:"count" example:"120" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
