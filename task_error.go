package taskscope

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupClosed is returned by [Group.Fork] once the group has been
	// joined, closed or cancelled.
	ErrGroupClosed = errors.New("taskscope: group is closed")

	// ErrAlreadyJoined is returned by every [Group.Join] call after the first.
	ErrAlreadyJoined = errors.New("taskscope: group already joined")

	// ErrGroupCancelled is the cancellation cause observed by tasks after
	// [Group.Cancel] or [Group.Close].
	ErrGroupCancelled = errors.New("taskscope: group cancelled")

	// ErrShutdown is the cancellation cause observed by tasks when the
	// group's policy triggered a shutdown.
	ErrShutdown = errors.New("taskscope: group shut down by policy")
)

// TaskError wraps a task's failure together with its [TaskID] so callers
// can attribute errors to specific tasks.
type TaskError struct {
	Task TaskID
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// IsTaskError reports whether err (or any error in its chain) is a [*TaskError].
func IsTaskError(err error) bool {
	if err == nil {
		return false
	}
	var te *TaskError
	return errors.As(err, &te)
}

// TaskOf extracts the [TaskID] from the first [*TaskError] in err's chain.
// Returns false if no TaskError is found.
func TaskOf(err error) (TaskID, bool) {
	if err == nil {
		return 0, false
	}

	var te *TaskError
	if errors.As(err, &te) {
		return te.Task, true
	}
	return 0, false
}

// CauseOf unwraps the first [*TaskError] in err's chain and returns its
// underlying cause. If err is not a TaskError, it is returned as-is.
// Returns nil if err is nil.
func CauseOf(err error) error {
	if err == nil {
		return nil
	}

	var te *TaskError
	if errors.As(err, &te) {
		return te.Err
	}

	return err
}

// AllTaskErrors recursively collects every [*TaskError] from err's chain,
// including errors wrapped via [errors.Join]. Returns nil if none are found.
func AllTaskErrors(err error) []*TaskError {
	if err == nil {
		return nil
	}

	var out []*TaskError
	collectTaskErrors(err, &out)
	return out
}

func collectTaskErrors(err error, out *[]*TaskError) {
	switch e := err.(type) {
	case *TaskError:
		*out = append(*out, e)

	case interface{ Unwrap() []error }:
		for _, sub := range e.Unwrap() {
			collectTaskErrors(sub, out)
		}

	case interface{ Unwrap() error }:
		collectTaskErrors(e.Unwrap(), out)
	}
}
