package taskscope

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Outcome is the recorded result of one task. State is always terminal:
// Value is meaningful for Succeeded, Err for Failed and Cancelled.
type Outcome[T any] struct {
	ID    TaskID
	State TaskState
	Value T
	Err   error
}

// Ok reports whether the task succeeded.
func (o Outcome[T]) Ok() bool { return o.State == Succeeded }

// Results is a point-in-time copy of a [Collector]'s contents.
type Results[T any] map[TaskID]Outcome[T]

// IDs returns the recorded task ids in ascending order.
func (r Results[T]) IDs() []TaskID {
	return slices.Sorted(maps.Keys(r))
}

// Count returns the number of outcomes in state s.
func (r Results[T]) Count(s TaskState) int {
	n := 0
	for _, o := range r {
		if o.State == s {
			n++
		}
	}
	return n
}

// Values returns the values of succeeded tasks ordered by task id.
func (r Results[T]) Values() []T {
	var out []T
	for _, id := range r.IDs() {
		if o := r[id]; o.State == Succeeded {
			out = append(out, o.Value)
		}
	}
	return out
}

// Errors returns the failures wrapped in [*TaskError], ordered by task id.
// Cancelled tasks are not included.
func (r Results[T]) Errors() []error {
	var out []error
	for _, id := range r.IDs() {
		if o := r[id]; o.State == Failed {
			out = append(out, &TaskError{Task: id, Err: o.Err})
		}
	}
	return out
}

// Collector aggregates exactly one [Outcome] per task id. It is safe for
// concurrent use. The order in which outcomes are recorded decides which
// failure or success is reported as the first of its kind.
type Collector[T any] struct {
	mu       sync.Mutex
	outcomes map[TaskID]Outcome[T]

	firstFailure *Outcome[T]
	firstSuccess *Outcome[T]
}

// NewCollector returns an empty collector.
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{outcomes: make(map[TaskID]Outcome[T])}
}

// Record stores o under o.ID and reports whether it is the first outcome
// recorded with its state (only tracked for Succeeded and Failed).
//
// Record panics if an outcome for o.ID already exists or if o.State is not
// terminal: both mean the task identity scheme is broken.
func (c *Collector[T]) Record(o Outcome[T]) (first bool) {
	if !o.State.Terminal() {
		panic(fmt.Sprintf("taskscope: invariant violation: %s recorded with non-terminal state %s", o.ID, o.State))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.outcomes[o.ID]; dup {
		panic(fmt.Sprintf("taskscope: invariant violation: outcome for %s recorded twice", o.ID))
	}
	c.outcomes[o.ID] = o

	switch o.State {
	case Failed:
		if c.firstFailure == nil {
			c.firstFailure = &o
			return true
		}
	case Succeeded:
		if c.firstSuccess == nil {
			c.firstSuccess = &o
			return true
		}
	}
	return false
}

// Get returns the outcome recorded for id, if any.
func (c *Collector[T]) Get(id TaskID) (Outcome[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.outcomes[id]
	return o, ok
}

// Len returns the number of recorded outcomes.
func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.outcomes)
}

// FirstFailure returns the earliest recorded Failed outcome.
func (c *Collector[T]) FirstFailure() (Outcome[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firstFailure == nil {
		return Outcome[T]{}, false
	}
	return *c.firstFailure, true
}

// FirstSuccess returns the earliest recorded Succeeded outcome.
func (c *Collector[T]) FirstSuccess() (Outcome[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firstSuccess == nil {
		return Outcome[T]{}, false
	}
	return *c.firstSuccess, true
}

// Snapshot returns a copy of every recorded outcome. The lock is held only
// for the copy.
func (c *Collector[T]) Snapshot() Results[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.outcomes)
}
