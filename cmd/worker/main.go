package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fiscalia/fiscalia/internal/app"
	"github.com/fiscalia/fiscalia/internal/dividend"
	"github.com/fiscalia/fiscalia/internal/importer"
	"github.com/fiscalia/fiscalia/internal/taxgrade"
	"github.com/fiscalia/fiscalia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	taxGradeService := taxgrade.NewService(taxgrade.NewRepository(pool))
	dividendService := dividend.NewService(dividend.NewRepository(pool))

	importService := importer.NewService(importer.ServiceParams{
		Logger:         logger,
		Repo:           importer.NewRepository(pool),
		TaxGrades:      taxGradeService,
		Dividends:      dividendService,
		Enqueuer:       queueClient,
		UploadDir:      cfg.UploadDir,
		ReportsDir:     cfg.ReportsDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaleAfter:     cfg.ImportStaleAfter,
	})
	importJob := jobs.NewImportJob(importService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskImportProcess, Handler: importJob.HandleProcess},
			{Type: jobs.TaskImportStaleSweep, Handler: importJob.HandleStaleSweep},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewImportStaleSweepTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
