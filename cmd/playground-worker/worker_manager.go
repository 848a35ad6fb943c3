package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
)

// Runner is the part of a pipeline worker the manager drives.
type Runner interface {
	Start(ctx context.Context) error
	Wait()
}

type WorkerManager struct {
	id     string
	logger *slog.Logger
	runner Runner
}

func NewWorkerManager(id string, runner Runner, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:     id,
		logger: logger.With("module", "playground-worker", "worker_id", id),
		runner: runner,
	}
}

// Start subscribes the worker and blocks until ctx ends or the process is signalled, then waits
// for the runs in flight.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := w.runner.Start(sigCtx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-sigCtx.Done()
	w.logger.InfoContext(ctx, "Shutting down worker...")

	w.runner.Wait()

	return nil
}
