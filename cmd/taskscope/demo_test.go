package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDemo(cfg Config) (*demo, *bytes.Buffer) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newDemo(cfg, log, &out), &out
}

func testConfig() Config {
	return Config{
		Workers:  2,
		Tasks:    100,
		Deadline: time.Second,
		Grace:    100 * time.Millisecond,
		Seed:     7,
	}
}

func TestDemoUserOrders(t *testing.T) {
	d, out := testDemo(testConfig())
	require.NoError(t, d.userOrders(context.Background()))
	assert.Contains(t, out.String(), "User: user123")
	assert.Contains(t, out.String(), "2 orders")
}

func TestDemoFlakyBatch(t *testing.T) {
	cfg := testConfig()
	cfg.FailRate = 1

	d, out := testDemo(cfg)
	require.NoError(t, d.flakyBatch(context.Background()))
	assert.Contains(t, out.String(), "task-3 failed")
	assert.Contains(t, out.String(), "processed tasks: 4")
}

func TestDemoFlakyBatchNoFailures(t *testing.T) {
	d, out := testDemo(testConfig())
	require.NoError(t, d.flakyBatch(context.Background()))
	assert.Contains(t, out.String(), "processed tasks: 5")
}

func TestDemoDeadlineBatch(t *testing.T) {
	d, out := testDemo(testConfig())
	require.NoError(t, d.deadlineBatch(context.Background()))
	assert.Contains(t, out.String(), "all-completed: processed 10, cancelled 0")
}

func TestDemoDeadlineBatchTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.Deadline = time.Millisecond

	d, out := testDemo(cfg)
	require.NoError(t, d.deadlineBatch(context.Background()))
	assert.Contains(t, out.String(), "timed-out")
}

func TestDemoFanOut(t *testing.T) {
	d, out := testDemo(testConfig())
	require.NoError(t, d.fanOut(context.Background()))
	assert.Contains(t, out.String(), "completed tasks: 100 (100 recorded)")
}
