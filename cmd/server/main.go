// Package main is the entry point for the diner engagement service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"menu-engagement/internal/config"
	"menu-engagement/internal/middleware"
	"menu-engagement/internal/pkg/db"
	"menu-engagement/internal/ratelimit"
	"menu-engagement/internal/repository"
	"menu-engagement/internal/server"
	"menu-engagement/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Service stopped with error")
	}
	log.Info().Msg("Service stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := dbPool.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	if err := repository.Migrate(ctx, dbPool); err != nil {
		return err
	}

	store, closeStore, err := newLimitStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limits, err := ratelimit.NewSet(cfg.RateLimit, store)
	if err != nil {
		return err
	}

	verifier, err := middleware.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	// Initialize repositories
	dinerRepo := repository.NewDinerRepository(dbPool.Pool)
	activityRepo := repository.NewActivityRepository(dbPool.Pool)
	periodRepo := repository.NewPeriodRepository(dbPool.Pool)
	notificationRepo := repository.NewNotificationRepository(dbPool.Pool)

	// Initialize services
	loc := cfg.Leaderboard.Location()
	engagementService := service.NewEngagementService(dinerRepo, activityRepo, cfg.Scoring.VisitPoints, loc)
	leaderboardService := service.NewLeaderboardService(periodRepo, activityRepo, service.LeaderboardConfig{
		PeriodDays:       cfg.Leaderboard.PeriodDays,
		ArchiveAfterDays: cfg.Leaderboard.ArchiveAfterDays,
		StandingsLimit:   cfg.Leaderboard.StandingsLimit,
		Location:         loc,
	})
	notificationService := service.NewNotificationService(dinerRepo, notificationRepo)

	srv, err := server.New(&server.Dependencies{
		Config:        cfg,
		Engagement:    engagementService,
		Leaderboard:   leaderboardService,
		Notifications: notificationService,
		Health:        dbPool,
		Limits:        limits,
		Verifier:      verifier,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		if cfg.Leaderboard.ScheduleInterval <= 0 {
			log.Warn().Msg("Leaderboard scheduler disabled, periods advance only via the admin endpoint")
			return nil
		}
		return leaderboardService.RunScheduler(gctx, cfg.Leaderboard.ScheduleInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Received shutdown signal")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// newLimitStore returns the window store selected by ratelimit.backend.
func newLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	if cfg.RateLimit.Backend != "redis" {
		log.Info().Msg("Rate limiter using in-process windows")
		return ratelimit.NewMemoryStore(cfg.RateLimit.SweepEvery), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// admission fails open, so an unreachable redis is not fatal
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis ping failed")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Rate limiter using redis windows")

	return ratelimit.NewRedisStore(rdb, "ratelimit"), func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}, nil
}
