package taskscope

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubtaskGet(t *testing.T) {
	g := NewGroup[string](context.Background())

	user, err := ForkTask(g, func(context.Context) (string, error) {
		return "User: user123", nil
	})
	require.NoError(t, err)

	boom := errors.New("orders unavailable")
	orders, err := ForkTask(g, func(context.Context) (string, error) {
		return "", boom
	})
	require.NoError(t, err)
	assert.Equal(t, TaskID(1), orders.ID())

	_, err = g.Join(context.Background())
	require.NoError(t, err)

	v, err := user.Get()
	require.NoError(t, err)
	assert.Equal(t, "User: user123", v)
	assert.Equal(t, Succeeded, user.State())

	_, err = orders.Get()
	assert.ErrorIs(t, err, boom)
	id, ok := TaskOf(err)
	require.True(t, ok)
	assert.Equal(t, TaskID(1), id)
	assert.Equal(t, Failed, orders.State())
}

func TestSubtaskNotFinished(t *testing.T) {
	g := NewGroup[int](context.Background())
	defer g.Close()

	release := make(chan struct{})
	st, err := ForkTask(g, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.NoError(t, err)

	_, err = st.Get()
	assert.ErrorIs(t, err, ErrNotFinished)
	close(release)
}

func TestForkTaskOnClosedGroup(t *testing.T) {
	g := NewGroup[int](context.Background())
	require.NoError(t, g.Close())

	st, err := ForkTask(g, func(context.Context) (int, error) { return 1, nil })
	assert.Nil(t, st)
	assert.ErrorIs(t, err, ErrGroupClosed)
}

func TestForkTaskAfterCancel(t *testing.T) {
	g := NewGroup[int](context.Background())
	defer g.Close()
	g.Cancel()

	st, err := ForkTask(g, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrGroupClosed)
	require.NotNil(t, st, "the task is registered as cancelled")
	assert.Equal(t, Cancelled, st.State())

	_, err = st.Get()
	assert.ErrorIs(t, err, ErrGroupCancelled)
}
