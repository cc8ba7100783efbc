package schemas

import "errors"

// ErrorCode classifies failed action results so the planner and the logs can
// tell a bad locator from a timeout.
type ErrorCode string

const (
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeElementNotFound   ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError   ErrorCode = "NAVIGATION_ERROR"
	ErrCodeExecutorPanic     ErrorCode = "EXECUTOR_PANIC"
)

// ErrElementNotFound is wrapped by browser adapters when a locator matches no
// node, so callers can classify the failure without parsing engine messages.
var ErrElementNotFound = errors.New("element not found")
