package taskscope

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaceFirstWins(t *testing.T) {
	ctx := context.Background()
	val, err := Race(ctx, []Op[int]{
		func(ctx context.Context) (int, error) {
			return 1, nil // fast
		},
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, val)
}

func TestRaceSkipsFailures(t *testing.T) {
	ctx := context.Background()
	val, err := Race(ctx, []Op[string]{
		func(ctx context.Context) (string, error) { return "", errors.New("down") },
		func(ctx context.Context) (string, error) {
			time.Sleep(10 * time.Millisecond)
			return "mirror-2", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "mirror-2", val)
}

func TestRaceAllFail(t *testing.T) {
	ctx := context.Background()
	sentinel := errors.New("fail")
	other := errors.New("other")
	_, err := Race(ctx, []Op[int]{
		func(ctx context.Context) (int, error) { return 0, sentinel },
		func(ctx context.Context) (int, error) { return 0, other },
	})
	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, other)
}

func TestRaceEmpty(t *testing.T) {
	val, err := Race[int](context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSuccess)
	assert.Equal(t, 0, val)
}

func TestRaceContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Race(ctx, []Op[int]{
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRaceDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Race(ctx, []Op[int]{
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRaceNilTaskPanics(t *testing.T) {
	mustPanic(t, "must not be nil", func() {
		_, _ = Race(context.Background(), []Op[int]{
			func(ctx context.Context) (int, error) { return 1, nil },
			nil,
		})
	})
}

func TestRaceLeavesCallerOptionsUntouched(t *testing.T) {
	opts := make([]Option, 1, 4)
	opts[0] = WithLimit(1)

	val, err := Race(context.Background(), []Op[int]{
		func(ctx context.Context) (int, error) { return 1, nil },
	}, opts...)
	require.NoError(t, err)
	assert.Equal(t, 1, val)
	assert.Nil(t, opts[:cap(opts)][1], "spare capacity must not be written")
}
