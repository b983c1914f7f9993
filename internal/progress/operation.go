// Package progress implements the progress tracker (component C): the
// operation lifecycle state machine and the event bus that fans out
// status/progress/log/completion/error events to subscribers, backed by the
// event ring (internal/event) and the cancellation manager
// (internal/cancelmgr).
package progress

import (
	"time"

	"github.com/maas-mcp/bridge/internal/event"
)

// Status is the lifecycle state of a tracked operation.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusInProgress   Status = "in_progress"
	StatusPaused       Status = "paused"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// IsTerminal reports whether s is one of the absorbing terminal statuses.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Operation is the externally-visible record for a tracked long-running
// unit of work.
type Operation struct {
	ID             string
	StartTime      time.Time
	LastUpdateTime time.Time
	Status         Status
	Progress       int
	Result         any
	ErrorMessage   string
	ErrorCode      int
	Events         []event.Event
}

// snapshot returns a deep-enough copy of op: the Events slice is copied so
// callers cannot mutate tracker-internal state, but payload pointers inside
// individual events are shared (events are never mutated after emission).
func (op *Operation) snapshot() Operation {
	out := *op
	out.Events = make([]event.Event, len(op.Events))
	copy(out.Events, op.Events)
	return out
}
