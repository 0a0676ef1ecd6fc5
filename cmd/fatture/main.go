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

	"github.com/fiscochiaro/fatture/internal/app"
	"github.com/fiscochiaro/fatture/internal/archive"
	"github.com/fiscochiaro/fatture/internal/billing"
	"github.com/fiscochiaro/fatture/internal/contacts"
	"github.com/fiscochiaro/fatture/internal/dashboard"
	"github.com/fiscochiaro/fatture/internal/observability"
	"github.com/fiscochiaro/fatture/internal/platform/cache"
	"github.com/fiscochiaro/fatture/internal/platform/db"
	"github.com/fiscochiaro/fatture/jobs"
	"github.com/fiscochiaro/fatture/report"
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

	metrics := observability.NewMetrics()

	pdfStore, err := archive.NewStore(cfg.PDFDir)
	if err != nil {
		logger.Error("init pdf archive", slog.Any("error", err))
		os.Exit(1)
	}

	reportClient := report.NewClient(cfg.GotenbergURL)
	renderer := report.NewInvoiceRenderer(reportClient)

	contactsRepo := contacts.NewRepository(pool)
	contactsService := contacts.NewService(contactsRepo)
	contactsHandler := contacts.NewHandler(logger, contactsService)

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, contactsService, renderer, pdfStore, logger, metrics, dashboardCache, billing.ServiceConfig{})

	dashboardService := dashboard.NewService(billingRepo, dashboardCache)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService)

	var enqueuer billing.SubmitEnqueuer
	if cfg.SdIEnabled() {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
		enqueuer = jobs.NewEnqueuer(asynqClient)
	}

	billingHandler := billing.NewHandler(logger, billingService, pdfStore, enqueuer)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		BillingHandler:   billingHandler,
		ContactsHandler:  contactsHandler,
		DashboardHandler: dashboardHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
