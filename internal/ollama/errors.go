package ollama

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConnectionError means the server could not be reached after all attempts.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("server connection failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx reply. Message holds the server's "error" field
// when the body has one.
type StatusError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

func newStatusError(code int, body []byte) *StatusError {
	e := &StatusError{StatusCode: code, Body: strings.TrimSpace(string(body))}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Error
	}
	return e
}
