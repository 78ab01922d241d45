package taskscope

import (
	"errors"
	"fmt"
)

// ErrNotFinished is returned by [Subtask.Get] while the task has no outcome yet.
var ErrNotFinished = errors.New("taskscope: task has not finished")

// Subtask is a typed view of one forked task. Create one via [ForkTask].
type Subtask[T any] struct {
	g  *Group[T]
	id TaskID
}

// ForkTask forks op like [Group.Fork] and returns a [Subtask] for it.
// The subtask is valid even when Fork reports an error, as long as a task
// was registered.
//
//	user, _ := taskscope.ForkTask(g, findUser)
//	orders, _ := taskscope.ForkTask(g, fetchOrders)
//	g.Join(ctx)
//	u, err := user.Get()
func ForkTask[T any](g *Group[T], op Op[T]) (*Subtask[T], error) {
	id, err := g.Fork(op)
	if id < 0 {
		return nil, err
	}
	return &Subtask[T]{g: g, id: id}, err
}

// ID returns the task's id within its group.
func (s *Subtask[T]) ID() TaskID { return s.id }

// State returns the task's current lifecycle state.
func (s *Subtask[T]) State() TaskState {
	st, _ := s.g.State(s.id)
	return st
}

// Get returns the task's value if it succeeded. Failed and cancelled tasks
// return their cause wrapped in a [*TaskError]; unfinished tasks return
// [ErrNotFinished]. Get never blocks; call it after [Group.Join].
func (s *Subtask[T]) Get() (T, error) {
	var zero T
	o, ok := s.g.Outcome(s.id)
	switch {
	case !ok:
		return zero, fmt.Errorf("%s: %w", s.id, ErrNotFinished)
	case o.State == Succeeded:
		return o.Value, nil
	default:
		return zero, &TaskError{Task: s.id, Err: o.Err}
	}
}
