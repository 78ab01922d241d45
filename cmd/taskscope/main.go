// Command taskscope runs a handful of demo workloads on the taskscope
// scheduler: a fail-fast fan-out, a batch with a flaky task, a deadline
// bound batch and a large fan-out of trivial tasks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "taskscope:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := newDemo(cfg, log, os.Stdout)
	for _, step := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"user-orders", d.userOrders},
		{"flaky-batch", d.flakyBatch},
		{"deadline-batch", d.deadlineBatch},
		{"fan-out", d.fanOut},
	} {
		log.Info("demo started", slog.String("demo", step.name))
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}
