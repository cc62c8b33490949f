package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/catalog"
	"github.com/playforge/matchmaker/internal/config"
	"github.com/playforge/matchmaker/internal/fleet"
	"github.com/playforge/matchmaker/internal/lease"
	"github.com/playforge/matchmaker/internal/logger"
	"github.com/playforge/matchmaker/internal/matching"
	"github.com/playforge/matchmaker/internal/messaging"
	"github.com/playforge/matchmaker/internal/metrics"
	"github.com/playforge/matchmaker/internal/penalty"
	"github.com/playforge/matchmaker/internal/playerstore"
	"github.com/playforge/matchmaker/internal/ratelimit"
	"github.com/playforge/matchmaker/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	lg.Info("starting matchmaker", zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		lg.Fatal("failed to connect to Redis", zap.Error(err))
	}
	cancel()
	defer rdb.Close()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "matchmaker"
	natsClient, err := messaging.NewNATSClient(natsConfig, lg)
	if err != nil {
		lg.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	// Postgres setup.
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := playerstore.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		lg.Fatal("failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()
	if err := playerstore.Migrate(db); err != nil {
		lg.Fatal("failed to migrate player store", zap.Error(err))
	}

	cat, err := loadCatalog(cfg.ModesFile)
	if err != nil {
		lg.Fatal("failed to load game modes", zap.Error(err))
	}

	penalties := penalty.NewStore(rdb)
	publisher := messaging.NewPublisher(natsClient, lg)
	engine := matching.NewEngine(cat,
		matching.WithSettings(cfg.Settings()),
		matching.WithEventSink(matching.Sinks{publisher, penalty.NewRecorder(penalties, lg)}),
		matching.WithPenaltyChecker(penalties),
		matching.WithSessionLauncher(publisher),
		matching.WithLogger(lg),
	)

	// Metrics.
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server failed", zap.Error(err))
		}
	}()

	registry := fleet.NewRegistry(rdb)
	go registry.RunSync(ctx, engine, cfg.FleetSync, lg)

	// Only one instance serves requests and runs ticks at a time.
	leader := lease.New(rdb, lease.DefaultKey, cfg.LeaseTTL, lg)
	if err := leader.Acquire(ctx, cfg.LeaseTTL/3); err != nil {
		lg.Info("shut down before acquiring leadership")
		shutdown(metricsSrv, cfg.ShutdownTimeout, lg)
		return
	}

	var limiter service.Limiter
	if cfg.RateLimit {
		limiter = ratelimit.NewLimiter(rdb, lg)
	}
	svc := service.New(engine, playerstore.NewStore(db), limiter, lg)
	if err := svc.Start(natsClient); err != nil {
		lg.Fatal("failed to start matchmaking service", zap.Error(err))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	go func() {
		if err := leader.Keep(runCtx); err != nil {
			cancelRun()
		}
	}()

	lg.Info("matchmaker running",
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("nats_url", cfg.NATSURL),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Strings("modes", cat.IDs()),
		zap.String("lease_owner", leader.Owner()))

	_ = engine.Run(runCtx)
	cancelRun()
	lg.Info("shutting down")

	svc.Stop()
	releaseCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := leader.Release(releaseCtx); err != nil && !errors.Is(err, lease.ErrNotHeld) {
		lg.Warn("failed to release leader lease", zap.Error(err))
	}
	cancel()
	shutdown(metricsSrv, cfg.ShutdownTimeout, lg)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func shutdown(srv *http.Server, timeout time.Duration, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Warn("metrics server shutdown failed", zap.Error(err))
	}
}
