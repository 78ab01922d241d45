package taskscope

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the task state change reported by a [TaskEvent].
type EventKind int

const (
	// EventStarted fires when a task moves to Running.
	EventStarted EventKind = iota
	// EventSucceeded fires when a task returns a value.
	EventSucceeded
	// EventFailed fires when a task returns an error.
	EventFailed
	// EventPanicked fires when a task panics. The task is recorded as Failed.
	EventPanicked
	// EventCancelled fires when a task is recorded as Cancelled.
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventPanicked:
		return "panicked"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskEvent describes one task state change. It is passed to the hook
// registered with [WithOnEvent].
type TaskEvent struct {
	Group    uuid.UUID
	Task     TaskID
	Kind     EventKind
	Err      error         // failure or cancellation cause, nil otherwise
	Duration time.Duration // time spent Running, zero for EventStarted
}

func eventKind(s TaskState, err error) EventKind {
	switch s {
	case Succeeded:
		return EventSucceeded
	case Cancelled:
		return EventCancelled
	}
	if _, ok := err.(*PanicError); ok {
		return EventPanicked
	}
	return EventFailed
}

// StalledTask is passed to the hook registered with [WithStallDetector]
// when a task has been Running for longer than the threshold.
type StalledTask struct {
	Group   uuid.UUID
	Task    TaskID
	Elapsed time.Duration
}
