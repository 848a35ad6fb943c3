// Package revalidate refetches variants and specs on a cron schedule.
package revalidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrScheduleRequired = errors.New("revalidate schedule is required")

// Revalidator is implemented by state.Store.
type Revalidator interface {
	Revalidate(ctx context.Context) error
}

// Scheduler runs Revalidate on a cron expression. A run still in progress when the next tick
// fires makes that tick a no-op.
type Scheduler struct {
	expr    string
	target  Revalidator
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScheduler validates expr (standard 5-field format or a descriptor such as "@every 5m").
func NewScheduler(expr string, target Revalidator, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if expr == "" {
		return nil, ErrScheduleRequired
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	return &Scheduler{
		expr:    expr,
		target:  target,
		timeout: timeout,
		logger:  logger.With("module", "revalidate", "cron", expr),
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	s.logger.InfoContext(ctx, "Starting revalidation scheduler")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cronLogger := slogAdapter{logger: s.logger}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	id, err := c.AddFunc(s.expr, func() { s.run(runCtx) })
	if err != nil {
		cancel()

		return fmt.Errorf("failed to add revalidation job: %w", err)
	}

	s.logger.InfoContext(ctx, "Added revalidation job", "id", id)

	c.Start()

	s.cron = c
	s.cancel = cancel

	return nil
}

// Run performs one revalidation outside the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return s.target.Revalidate(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	started := time.Now()

	if err := s.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Revalidation failed", "error", err)

		return
	}

	s.logger.DebugContext(ctx, "Revalidated", "duration", time.Since(started))
}

// Stop stops the schedule and waits for a running revalidation to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping revalidation scheduler")

	done := c.Stop()
	defer cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slogAdapter satisfies cron.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
