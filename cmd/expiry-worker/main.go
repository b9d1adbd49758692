package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medbook/scheduling-core/internal/appointment"
	"github.com/medbook/scheduling-core/internal/config"
	"github.com/medbook/scheduling-core/internal/db"
	"github.com/medbook/scheduling-core/internal/event"
	redisclient "github.com/medbook/scheduling-core/internal/redis"
)

// The worker owns the two background loops: sweeping expired pending
// reservations back into cancelled, and draining the event outbox onto
// the Redis stream.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg, "expiry-worker")
	logger.Info().
		Str("env", cfg.Env).
		Dur("sweep_interval", cfg.WorkerInterval).
		Dur("outbox_interval", cfg.OutboxInterval).
		Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisProfessionalLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := appointment.NewService(repo, locker, cfg, logger, nil)

	outbox := event.NewOutboxStore(pgPool)
	publisher := event.NewStreamPublisher(rdb, cfg.EventStream, 100_000)
	deliverer := event.NewDeliverer(outbox, publisher, logger, nil, int32(cfg.OutboxBatchSize), cfg.OutboxInterval)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		deliverer.Start(rootCtx)
	}()

	go func() {
		defer wg.Done()
		runSweeps(rootCtx, svc, cfg.WorkerInterval, logger)
	}()

	wg.Wait()
	logger.Info().Msg("expiry-worker stopped")
}

func runSweeps(ctx context.Context, svc *appointment.Service, interval time.Duration, logger zerolog.Logger) {
	sweepOnce(ctx, svc, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping expiry sweeps")
			return
		case <-ticker.C:
			sweepOnce(ctx, svc, logger)
		}
	}
}

func sweepOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ExpirePending(runCtx); err != nil {
		logger.Error().Err(err).Msg("expiry sweep error")
		return
	}
	logger.Debug().Dur("elapsed", time.Since(start)).Msg("expiry sweep complete")
}

func newLogger(cfg config.Config, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
