package domain

import (
	"errors"
	"fmt"
)

// terminalMarker is implemented by errors that represent business-logic
// failures: the outcome will not change on retry, so the job layer must not
// spend retry budget on them.
type terminalMarker interface {
	Terminal() bool
}

// IsTerminal reports whether err (or anything it wraps) is a business-logic
// failure rather than a transient infrastructure one.
func IsTerminal(err error) bool {
	var marker terminalMarker
	return errors.As(err, &marker) && marker.Terminal()
}

// TerminalError wraps any error as a non-retryable business failure.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string  { return e.Err.Error() }
func (e *TerminalError) Unwrap() error  { return e.Err }
func (e *TerminalError) Terminal() bool { return true }

// Terminalf builds a formatted non-retryable error.
func Terminalf(format string, args ...interface{}) error {
	return &TerminalError{Err: fmt.Errorf(format, args...)}
}

// AssemblyError reports a failed assembly attempt. Always terminal: a
// missing chunk or size mismatch requires a fresh session, not a retry.
type AssemblyError struct {
	SessionID string
	Reason    string
	Err       error
}

func (e *AssemblyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assembly of session %s failed: %s: %v", e.SessionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("assembly of session %s failed: %s", e.SessionID, e.Reason)
}

func (e *AssemblyError) Unwrap() error  { return e.Err }
func (e *AssemblyError) Terminal() bool { return true }
