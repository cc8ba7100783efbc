package schemas

import "time"

// ActionResult is the uniform outcome of a dispatched action.
type ActionResult struct {
	Success bool      `json:"success"`
	Result  string    `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(text string) ActionResult {
	return ActionResult{Success: true, Result: text}
}

// Failed builds a failed result.
func Failed(code ErrorCode, text string) ActionResult {
	return ActionResult{Success: false, Error: text, Code: code}
}

// Text returns whichever of Result or Error is meaningful.
func (r ActionResult) Text() string {
	if r.Success {
		return r.Result
	}
	return r.Error
}

// HistoryEntry records one dispatched action and its outcome.
type HistoryEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Action    Action       `json:"action"`
	Result    ActionResult `json:"result"`
	Success   bool         `json:"success"`
}

// ObservationEntry records one captured page state.
type ObservationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	PageState PageState `json:"observation"`
}

// TaskResult is the structured record every finished run produces.
type TaskResult struct {
	RunID      string         `json:"run_id"`
	Task       string         `json:"task"`
	Success    bool           `json:"success"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Steps      int            `json:"steps"`
	History    []HistoryEntry `json:"history"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
