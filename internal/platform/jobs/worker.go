// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/platform/metrics"
)

// # Handlers

// Purger deletes expired refresh tokens and reports how many.
type Purger interface {
	PurgeExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// Handlers implements the task handlers of the worker.
type Handlers struct {
	purger  Purger
	mailer  Mailer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandlers wires dependencies for the task handlers. metrics may be nil.
func NewHandlers(purger Purger, mailer Mailer, m *metrics.Metrics, logger *slog.Logger) *Handlers {
	return &Handlers{purger: purger, mailer: mailer, metrics: m, logger: logger}
}

// HandlePasswordResetEmail processes [TaskPasswordResetEmail] tasks.
func (h *Handlers) HandlePasswordResetEmail(ctx context.Context, task *asynq.Task) error {
	var payload PasswordResetEmail
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.logger.ErrorContext(ctx, "jobs_reset_email_payload_invalid", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if payload.Email == "" || payload.ResetURL == "" {
		return fmt.Errorf("jobs: incomplete reset email payload: %w", asynq.SkipRetry)
	}

	return h.metrics.TrackJob(TaskPasswordResetEmail)(h.mailer.SendPasswordReset(ctx, payload))
}

// HandlePurgeExpiredRefreshTokens processes [TaskPurgeExpiredRefreshTokens] tasks.
func (h *Handlers) HandlePurgeExpiredRefreshTokens(ctx context.Context, task *asynq.Task) error {
	done := h.metrics.TrackJob(TaskPurgeExpiredRefreshTokens)

	purged, err := h.purger.PurgeExpiredRefreshTokens(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "jobs_refresh_token_purge_failed", slog.String("error", err.Error()))
		return done(err)
	}

	h.logger.InfoContext(ctx, "jobs_refresh_token_purge_finished", slog.Int64("purged", purged))
	return done(nil)
}

// # Worker

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpt    asynq.RedisConnOpt
	Concurrency int
	PurgeCron   string // empty disables the purge schedule
	Handlers    *Handlers
	Logger      *slog.Logger
}

// Worker wraps the asynq server and its scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

/*
NewWorker constructs the asynq server, routes both task types and registers
the purge schedule.

Parameters:
  - cfg: WorkerConfig

Returns:
  - *Worker: Ready to [Worker.Run]
  - error: Invalid cron expression or missing handlers
*/
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Handlers == nil {
		return nil, errors.New("jobs: worker handlers not configured")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	server := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{constants.QueueDefault: 1},
		Logger:      slogAdapter{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.ErrorContext(ctx, "jobs_task_failed",
				slog.String("task", task.Type()),
				slog.String("error", err.Error()),
			)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskPasswordResetEmail, cfg.Handlers.HandlePasswordResetEmail)
	mux.HandleFunc(TaskPurgeExpiredRefreshTokens, cfg.Handlers.HandlePurgeExpiredRefreshTokens)

	var scheduler *asynq.Scheduler
	if cfg.PurgeCron != "" {
		scheduler = asynq.NewScheduler(cfg.RedisOpt, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   slogAdapter{logger: logger},
		})
		if _, err := scheduler.Register(cfg.PurgeCron, NewPurgeExpiredRefreshTokensTask()); err != nil {
			return nil, fmt.Errorf("jobs_register_purge_schedule_failed: %w", err)
		}
	}

	return &Worker{server: server, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("jobs_scheduler_start_failed: %w", err)
		}
		defer w.scheduler.Shutdown()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()

	w.logger.Info("worker_started")

	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// slogAdapter satisfies asynq.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any) { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any) { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

func (a slogAdapter) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
