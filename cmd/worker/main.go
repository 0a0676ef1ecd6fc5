package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fiscochiaro/fatture/internal/app"
	"github.com/fiscochiaro/fatture/internal/archive"
	"github.com/fiscochiaro/fatture/internal/billing"
	"github.com/fiscochiaro/fatture/internal/contacts"
	"github.com/fiscochiaro/fatture/internal/dashboard"
	"github.com/fiscochiaro/fatture/internal/platform/cache"
	"github.com/fiscochiaro/fatture/internal/platform/db"
	"github.com/fiscochiaro/fatture/internal/sdi"
	"github.com/fiscochiaro/fatture/jobs"
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

	if !cfg.SdIEnabled() {
		logger.Info("sdi gateway not configured, nothing to process")
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, dashboard cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	pdfStore, err := archive.NewStore(cfg.PDFDir)
	if err != nil {
		logger.Error("init pdf archive", slog.Any("error", err))
		os.Exit(1)
	}

	contactsService := contacts.NewService(contacts.NewRepository(pool))
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, contactsService, nil, pdfStore, logger, nil, dashboardCache, billing.ServiceConfig{})

	gateway := sdi.NewClient(cfg.SdIBaseURL, cfg.SdIAPIKey, cfg.SdITimeout)
	sdiJobs := jobs.NewSdIJobs(billingService, pdfStore, gateway, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSdISubmit, Handler: sdiJobs.HandleSubmit},
			{Type: jobs.TaskTypeSdIPoll, Handler: sdiJobs.HandlePoll},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SdIPoll, Task: jobs.NewSdIPollTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
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
