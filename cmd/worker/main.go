// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command worker runs the Yomira IAM background jobs: reset-email delivery
// and the scheduled purge of expired refresh tokens.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/yomira-iam/internal/platform/config"
	"github.com/taibuivan/yomira-iam/internal/platform/constants"
	"github.com/taibuivan/yomira-iam/internal/platform/jobs"
	"github.com/taibuivan/yomira-iam/internal/platform/metrics"
	pgstore "github.com/taibuivan/yomira-iam/internal/platform/postgres"
	"github.com/taibuivan/yomira-iam/internal/users/auth"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With(slog.String("app", "yomira-iam-worker"))
	slog.SetDefault(log)

	cfg, err := config.Load()
	must(log, err, "load configuration")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startupCancel()

	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer pool.Close()

	redisOpt, err := jobs.RedisOpt(cfg.RedisURL)
	must(log, err, "configure job queue")

	observer := metrics.New()

	// The worker never issues tokens, so no signer is configured.
	authService := auth.NewService(auth.NewPostgresStore(pool), nil, auth.WithRecorder(observer))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpt:    redisOpt,
		Concurrency: cfg.WorkerConcurrency,
		PurgeCron:   cfg.RefreshTokenPurgeCron,
		Handlers:    jobs.NewHandlers(authService, jobs.NewLogMailer(log, cfg.IsDevelopment()), observer, log),
		Logger:      log,
	})
	must(log, err, "build worker")

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           observer.Handler(),
		ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped with error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics shutdown error", slog.Any("error", err))
	}

	log.Info("worker stopped cleanly")
}

func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure", slog.String("context", context), slog.Any("error", err))
		os.Exit(1)
	}
}
