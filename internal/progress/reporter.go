package progress

import "github.com/maas-mcp/bridge/internal/event"

// Reporter is handed to a tool handler when its operation starts. Every
// method is safe to call concurrently and from goroutines other than the
// one that received the Reporter.
type Reporter interface {
	// Progress records a percentage-complete update. Percentage is clamped
	// to [0, 100] and to be no lower than the last reported value: progress
	// never regresses within an operation's lifetime. Returns
	// OperationFinalized if the operation already reached a terminal state.
	Progress(percentage int, message string, details map[string]any) error

	// Log appends an informational line to the operation's event history.
	// Unlike the other methods it is accepted even after the operation has
	// finished, since trailing diagnostics are common during cleanup.
	Log(level event.LogLevel, message, source string, details map[string]any) error

	// Status transitions the operation to a new non-terminal status
	// (initializing, in_progress, or paused). Use Complete or Fail to reach
	// a terminal status.
	Status(next Status, message string, details map[string]any) error

	// Complete marks the operation as successfully finished, sets progress
	// to 100, and records the result value. Returns OperationFinalized if
	// already terminal.
	Complete(result any, message string) error

	// Fail marks the operation as failed. Returns OperationFinalized if
	// already terminal.
	Fail(message string, code int, details map[string]any, recoverable bool) error
}

type reporter struct {
	tracker *Tracker
	id      string
}

func (r *reporter) Progress(percentage int, message string, details map[string]any) error {
	return r.tracker.recordProgress(r.id, percentage, message, details)
}

func (r *reporter) Log(level event.LogLevel, message, source string, details map[string]any) error {
	return r.tracker.recordLog(r.id, level, message, source, details)
}

func (r *reporter) Status(next Status, message string, details map[string]any) error {
	return r.tracker.recordStatus(r.id, next, message, details)
}

func (r *reporter) Complete(result any, message string) error {
	return r.tracker.recordComplete(r.id, result, message)
}

func (r *reporter) Fail(message string, code int, details map[string]any, recoverable bool) error {
	return r.tracker.recordFail(r.id, message, code, details, recoverable)
}
