package taskscope

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTransitions(t *testing.T) {
	tk := newTask[int](0, func(context.Context) (int, error) { return 0, nil })
	assert.Equal(t, Pending, tk.load())

	require.True(t, tk.start())
	assert.False(t, tk.start(), "Running cannot start again")

	require.True(t, tk.finish(Succeeded))
	assert.False(t, tk.finish(Cancelled), "terminal state is reached once")
	assert.Equal(t, Succeeded, tk.load())
}

func TestTaskPendingToCancelled(t *testing.T) {
	tk := newTask[int](0, nil)

	require.True(t, tk.finish(Cancelled))
	assert.False(t, tk.start(), "cancelled task never runs")
	assert.Equal(t, Cancelled, tk.load())
}

func TestTaskStateString(t *testing.T) {
	tests := map[TaskState]string{
		Pending:       "pending",
		Running:       "running",
		Succeeded:     "succeeded",
		Failed:        "failed",
		Cancelled:     "cancelled",
		TaskState(42): "TaskState(42)",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}

	assert.False(t, Pending.Terminal())
	assert.False(t, Running.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.Equal(t, "task-3", TaskID(3).String())
}

func TestCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	assert.NoError(t, Checkpoint(ctx))

	cause := errors.New("stop")
	cancel(cause)
	assert.ErrorIs(t, Checkpoint(ctx), cause)

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	assert.ErrorIs(t, Checkpoint(ctx2), context.Canceled)
}
