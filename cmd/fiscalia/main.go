package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fiscalia/fiscalia/internal/app"
	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/dividend"
	"github.com/fiscalia/fiscalia/internal/importer"
	"github.com/fiscalia/fiscalia/internal/taxgrade"
	"github.com/fiscalia/fiscalia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

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

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	taxGradeRepo := taxgrade.NewRepository(dbpool)
	taxGradeService := taxgrade.NewService(taxGradeRepo)
	taxGradeHandler := taxgrade.NewHandler(logger, taxGradeService, auditService)

	dividendRepo := dividend.NewRepository(dbpool)
	dividendService := dividend.NewService(dividendRepo)
	dividendHandler := dividend.NewHandler(logger, dividendService)

	importRepo := importer.NewRepository(dbpool)
	importService := importer.NewService(importer.ServiceParams{
		Logger:         logger,
		Repo:           importRepo,
		TaxGrades:      taxGradeService,
		Dividends:      dividendService,
		Enqueuer:       queueClient,
		UploadDir:      cfg.UploadDir,
		ReportsDir:     cfg.ReportsDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaleAfter:     cfg.ImportStaleAfter,
	})
	importHandler := importer.NewHandler(logger, importService, cfg.MaxUploadBytes)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		TaxGradeHandler: taxGradeHandler,
		DividendHandler: dividendHandler,
		ImportHandler:   importHandler,
		AuditHandler:    auditHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
