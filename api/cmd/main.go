package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sitebeacon/stats-service/internal/config"
	"github.com/sitebeacon/stats-service/internal/domain"
	"github.com/sitebeacon/stats-service/internal/infrastructure/geoip"
	"github.com/sitebeacon/stats-service/internal/infrastructure/postgres"
	"github.com/sitebeacon/stats-service/internal/infrastructure/rabbitmq"
	"github.com/sitebeacon/stats-service/internal/infrastructure/redis"
	"github.com/sitebeacon/stats-service/internal/pkg/logger"
	"github.com/sitebeacon/stats-service/internal/service"
	"github.com/sitebeacon/stats-service/internal/transport/rest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "stats-service").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		// Unreachable or uninitializable storage is fatal: every operation
		// depends on the schema being present.
		if err := postgres.EnsureSchema(pingCtx, dbPool); err != nil {
			log.Fatal().Err(err).Msg("schema init failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis (optional summary cache) ----
	var summaryCache domain.SummaryCache
	if cfg.RedisAddr != "" {
		cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// Best-effort ping; the cache is optional
		if err := cache.Client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
		summaryCache = cache
	}

	// ---- Event stream (optional) ----
	var publisher domain.EventPublisher
	if cfg.StreamEnabled {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Warn().Err(err).Msg("event stream connect failed (continuing without)")
		} else {
			defer pub.Close()
			publisher = pub
			log.Info().Str("exchange", cfg.RabbitExchange).Msg("event stream connected")
		}
	}

	// ---- Geo enrichment ----
	lookup := geoip.New(cfg.GeoBaseURL, cfg.GeoTimeout)
	enricher := service.NewEnricher(repo, lookup)

	// ---- Application service ----
	svc := service.NewStatsService(repo, enricher, summaryCache, cfg.SummaryCacheTTL, publisher)
	h := rest.NewHandler(svc)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler:   h,
		RLEnabled: cfg.RLEnabled,
		RLLimit:   cfg.RLLimit,
		RLWindow:  cfg.RLWindow,
	})

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
