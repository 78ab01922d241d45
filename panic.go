package taskscope

import (
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// PanicError wraps a recovered panic value together with the goroutine
// stack trace captured at the point of the panic.
//
// A panicking task is recorded as Failed with a *PanicError as its cause.
// With [WithRepanic], [Group.Join] re-raises the first one after the group
// has quiesced.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

// Error returns a human-readable representation of the panic,
// including the value and the full stack trace.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func fromRecovered(r *panics.Recovered) *PanicError {
	return &PanicError{
		Value: r.Value,
		Stack: string(r.Stack),
	}
}

// catch runs fn and converts a panic into a *PanicError.
func catch(fn func() error) (err error) {
	if r := panics.Try(func() { err = fn() }); r != nil {
		return fromRecovered(r)
	}
	return err
}
