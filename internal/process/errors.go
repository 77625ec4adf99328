package process

import (
	"fmt"
	"strings"
)

// Error codes for lifecycle failures.
const (
	ErrCodeExecutableNotFound     = "EXECUTABLE_NOT_FOUND"
	ErrCodePortInUse              = "PORT_IN_USE"
	ErrCodeProcessTerminatedEarly = "PROCESS_TERMINATED_EARLY"
	ErrCodeServerUnreachable      = "SERVER_UNREACHABLE"
	ErrCodeAlreadyRunning         = "ALREADY_RUNNING"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrExecutableNotFound     = &Error{Code: ErrCodeExecutableNotFound, Message: "executable not found"}
	ErrPortInUse              = &Error{Code: ErrCodePortInUse, Message: "port in use"}
	ErrProcessTerminatedEarly = &Error{Code: ErrCodeProcessTerminatedEarly, Message: "process terminated early"}
	ErrServerUnreachable      = &Error{Code: ErrCodeServerUnreachable, Message: "server unreachable"}
	ErrAlreadyRunning         = &Error{Code: ErrCodeAlreadyRunning, Message: "already running"}
)

// Error is a lifecycle failure with a code and, for early exits, the
// output the process produced before it died.
type Error struct {
	Code    string
	Message string
	Cause   error
	Output  []string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if len(e.Output) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(e.Output, "\n"))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
