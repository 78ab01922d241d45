package taskscope

import (
	"context"
	"fmt"
	"sync/atomic"
)

// TaskID identifies a task within its [Group]. IDs are assigned in fork
// order starting at zero.
type TaskID int

// String returns the id formatted as "task-N".
func (id TaskID) String() string {
	return fmt.Sprintf("task-%d", int(id))
}

// TaskState is the lifecycle state of a task.
type TaskState int32

const (
	// Pending tasks are registered but not yet started by the pool.
	Pending TaskState = iota
	// Running tasks are executing their operation.
	Running
	// Succeeded tasks returned a value.
	Succeeded
	// Failed tasks returned an error or panicked.
	Failed
	// Cancelled tasks observed the group's cancellation signal before
	// producing an outcome, or were detached after the grace period.
	Cancelled
)

// String returns the lower-case name of the state.
func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("TaskState(%d)", int32(s))
	}
}

// Terminal reports whether s is one of Succeeded, Failed or Cancelled.
func (s TaskState) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Op is the unit of work forked into a [Group]. The context is cancelled
// when the group's cancellation signal is set; long-running operations
// should check it at their own checkpoints (see [Checkpoint]).
type Op[T any] func(ctx context.Context) (T, error)

// task tracks a single forked operation.
// state only moves forward: Pending -> Running -> terminal, or Pending -> terminal.
type task[T any] struct {
	id    TaskID
	op    Op[T]
	state atomic.Int32

	startedAt     atomic.Int64 // unix nanos, set on entering Running
	stallReported atomic.Bool
}

func newTask[T any](id TaskID, op Op[T]) *task[T] {
	return &task[T]{id: id, op: op}
}

func (t *task[T]) load() TaskState {
	return TaskState(t.state.Load())
}

// start moves the task from Pending to Running.
func (t *task[T]) start() bool {
	return t.state.CompareAndSwap(int32(Pending), int32(Running))
}

// finish moves the task into a terminal state. It returns false if the task
// already reached a terminal state, in which case the caller must not
// record an outcome.
func (t *task[T]) finish(to TaskState) bool {
	for {
		cur := TaskState(t.state.Load())
		if cur.Terminal() {
			return false
		}
		if t.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

// Checkpoint is a cooperative cancellation point. It returns the
// cancellation cause of ctx if the group (or any parent) has been
// cancelled, and nil otherwise.
//
//	for _, item := range batch {
//	    if err := taskscope.Checkpoint(ctx); err != nil {
//	        return zero, err
//	    }
//	    process(item)
//	}
func Checkpoint(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}
