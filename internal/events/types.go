package events

// Event type constants for kelindar/event.
const (
	TypeServerStateChanged uint32 = iota + 1
	TypeServerReadiness
	TypeGameTurn
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ServerStateChangedEvent is published on every lifecycle transition of the
// managed inference server.
type ServerStateChangedEvent struct {
	From      string `json:"from" example:"starting" doc:"Previous state"`
	To        string `json:"to" example:"running" doc:"New state"`
	PID       int    `json:"pid,omitempty" example:"4242" doc:"Server process ID"`
	Error     string `json:"error,omitempty" doc:"Failure that caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ServerStateChangedEvent.
func (e ServerStateChangedEvent) Type() uint32 { return TypeServerStateChanged }

// ServerReadinessEvent reports the outcome of waiting for the server.
type ServerReadinessEvent struct {
	Ready     bool   `json:"ready" example:"true" doc:"Whether the readiness probe succeeded"`
	Attempts  int    `json:"attempts" example:"5" doc:"Probes allowed"`
	Error     string `json:"error,omitempty" doc:"Why the server is not ready"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ServerReadinessEvent.
func (e ServerReadinessEvent) Type() uint32 { return TypeServerReadiness }

// GameTurnEvent is one completed (or failed) exchange with the narrator.
type GameTurnEvent struct {
	SessionID string `json:"session_id" doc:"Game session identifier"`
	Turn      int    `json:"turn" example:"3" doc:"Turn number, 0 for the opening scene"`
	Input     string `json:"input" doc:"Player input"`
	Response  string `json:"response" doc:"Narrator response or inline error"`
	Failed    bool   `json:"failed" doc:"Whether generation failed"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for GameTurnEvent.
func (e GameTurnEvent) Type() uint32 { return TypeGameTurn }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"server" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
