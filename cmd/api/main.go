package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/trendlens/admin-api/internal/config"
	authHandler "github.com/trendlens/admin-api/internal/handler/auth"
	"github.com/trendlens/admin-api/internal/handler/health"
	promHandler "github.com/trendlens/admin-api/internal/handler/prometheus"
	telegramHandler "github.com/trendlens/admin-api/internal/handler/telegram"
	"github.com/trendlens/admin-api/internal/middleware"
	"github.com/trendlens/admin-api/internal/repository/postgres"
	"github.com/trendlens/admin-api/internal/router"
	authService "github.com/trendlens/admin-api/internal/service/auth"
	connectionService "github.com/trendlens/admin-api/internal/service/connection"
	dispatchService "github.com/trendlens/admin-api/internal/service/dispatch"
	settingsService "github.com/trendlens/admin-api/internal/service/settings"
	"github.com/trendlens/admin-api/internal/telegram"
	"github.com/trendlens/admin-api/internal/worker"
	"github.com/trendlens/admin-api/pkg/auth"
	"github.com/trendlens/admin-api/pkg/logger"
	"github.com/trendlens/admin-api/pkg/messaging"
	redisBroker "github.com/trendlens/admin-api/pkg/messaging/redis"
	"github.com/trendlens/admin-api/pkg/metrics"
	"github.com/trendlens/admin-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("trendlens", "delivery")

	// The broker is optional observability fan-out; the API runs without it.
	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redisBroker.NewRedisBroker(redisBroker.Config{URL: cfg.Redis.URL}, &log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer broker.Close()
	}

	base := postgres.NewBaseRepository(db)
	alertRepo := postgres.NewAlertRepository(base)
	settingsRepo := postgres.NewSettingsRepository(base)
	deliveryRepo := postgres.NewDeliveryRepository(base)
	connectionRepo := postgres.NewConnectionRepository(base)

	jwtSvc := auth.NewJWTService(cfg.Secrets.JWTSecret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	verifier := security.NewBcryptVerifier()

	tgClient := telegram.NewClient(telegram.Config{
		Token:       cfg.Secrets.TelegramBotToken,
		BaseURL:     cfg.Telegram.BaseURL,
		SendTimeout: cfg.Telegram.SendTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, appLogger, m)

	settingsSvc := settingsService.NewService(settingsRepo)
	connectionSvc := connectionService.NewService(connectionRepo, cfg.Telegram.BotUsername, cfg.Dispatch.LinkTTL, appLogger)
	dispatchSvc := dispatchService.NewService(settingsSvc, alertRepo, deliveryRepo, connectionRepo, tgClient, broker, m, appLogger)
	authSvc := authService.NewService(cfg.Admin, jwtSvc, verifier, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)
	promH := promHandler.New()

	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(authSvc),
		health.NewHandler(db),
		promH,
		router.Config{
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		telegramHandler.NewHandler(settingsSvc, dispatchSvc, connectionSvc, deliveryRepo),
	)
	r.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatchRunner := worker.NewDispatchRunner(dispatchSvc, worker.DispatchRunnerConfig{
		Interval:  cfg.Dispatch.Interval,
		BatchSize: cfg.Dispatch.BatchSize,
	}, appLogger)
	go dispatchRunner.Start(ctx)

	if cfg.Secrets.TelegramBotToken != "" {
		botPoller := worker.NewBotPoller(tgClient, tgClient, connectionSvc, worker.BotPollerConfig{
			PollTimeout: cfg.Telegram.PollTimeout,
		}, appLogger, m)
		go botPoller.Start(ctx)
	} else {
		appLogger.Warn("bot token not configured, inbound commands disabled")
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited")
}
