package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var (
	// ErrStopped is returned by Run on an agent that was stopped before it started.
	ErrStopped = errors.New("agent stopped")
	// ErrAlreadyRunning is returned by Run while another run is in flight.
	ErrAlreadyRunning = errors.New("agent is already running")
	// ErrFinished is returned by Run on an agent whose run has ended. Each
	// task gets a fresh Agent.
	ErrFinished = errors.New("agent run already finished")
)

// ClassifyBrowserError maps a browser primitive failure onto an error code.
// Typed errors are checked first, then the message text, since the engines
// report most failures as plain strings.
func ClassifyBrowserError(err error) schemas.ErrorCode {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, schemas.ErrElementNotFound),
		strings.Contains(msg, "no element"),
		strings.Contains(msg, "no node"),
		strings.Contains(msg, "selector"):
		return schemas.ErrCodeElementNotFound
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"):
		return schemas.ErrCodeTimeoutError
	case strings.Contains(msg, "net::err"),
		strings.Contains(msg, "navigation"):
		return schemas.ErrCodeNavigationError
	}
	return schemas.ErrCodeExecutionFailure
}
