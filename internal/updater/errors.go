package updater

import (
	"errors"
	"fmt"
)

// Failure codes reported by Check, Apply and Rollback.
const (
	ErrCodeCheckFailed    = "CHECK_FAILED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeNoUpdate       = "NO_UPDATE"
	ErrCodeApplyFailed    = "APPLY_FAILED"
	ErrCodeBackupFailed   = "BACKUP_FAILED"
	ErrCodeRollbackFailed = "ROLLBACK_FAILED"
	ErrCodeNoBackup       = "NO_BACKUP"
)

// Error is a failed update step. Version names the release involved, when
// one was resolved. Restored is set when Apply failed and the previous
// binary was put back.
type Error struct {
	Code     string
	Message  string
	Version  string
	Restored bool
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Version != "" {
		msg = fmt.Sprintf("%s (release %s)", msg, e.Version)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Restored {
		msg += "; previous binary restored"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// forRelease tags e with the release version it concerns.
func (e *Error) forRelease(version string) *Error {
	e.Version = version
	return e
}

// IsCode reports whether err, or an error it wraps, is an *Error with code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
