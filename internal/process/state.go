package process

import "time"

// State represents the current state of the managed server.
type State string

// Server states.
const (
	StateIdle     State = "idle"     // Never started
	StateStarting State = "starting" // Pre-flight checks and warm-up
	StateRunning  State = "running"  // Survived warm-up
	StateStopping State = "stopping" // Stop signal sent
	StateStopped  State = "stopped"  // Handle released
	StateFailed   State = "failed"   // Failed to start or exited on its own
)

// StateChangeCallback is called after every state transition.
type StateChangeCallback func(from, to State, err error)

// Info is a snapshot of the managed server.
type Info struct {
	State      State
	Executable string
	Address    string
	PID        int
	StartedAt  time.Time
	ExitCode   *int
	Restarts   int
	LastError  error
}
