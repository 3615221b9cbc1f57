package collector

import (
	"context"
	"fmt"
	"time"

	"pricefeed/config"
	"pricefeed/internal/feed/connection"
	"pricefeed/internal/feed/flusher"
	"pricefeed/internal/feed/memorystore"
	"pricefeed/internal/feed/snapshot"
	"pricefeed/internal/feed/stream"
	"pricefeed/internal/feed/symbolmeta"
	"pricefeed/pkg/cryptocompare"
	"pricefeed/pkg/metrics"
	"pricefeed/pkg/storage/postgres"
	redisstore "pricefeed/pkg/storage/redis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const pairQueryTimeout = 30 * time.Second

// Run starts the price feed and blocks until ctx is cancelled. The active
// pairs are loaded before the first connect; if that load fails Run returns
// without connecting.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	// Initialize PostgreSQL Client
	db, err := postgres.InitializeAndMigrate(cfg.Postgres, true)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer db.Close()

	pairStore := memorystore.NewPairStore()
	priceStore := memorystore.NewPriceStore()

	refresher := &snapshot.PairRefresher{
		Source:      db,
		Store:       pairStore,
		ServerGroup: cfg.Feed.ServerGroup,
		Timeout:     pairQueryTimeout,
		Metrics:     m,
		Logger:      logger,
	}
	if err := refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("initial pair load: %w", err)
	}

	handler := stream.NewHandler(priceStore, cfg.Feed.Aliases(), m, logger)
	dialer := cryptocompare.NewWSDialer(cfg.Provider.SocketURL(), cfg.Provider.HandshakeTimeout, logger)
	manager := connection.NewManager(dialer, pairStore, handler, connection.Options{
		Backoff: connection.Backoff{
			Base: cfg.Feed.ReconnectBaseInterval,
			Max:  cfg.Feed.ReconnectMaxInterval,
		},
		HeartbeatTimeout: cfg.Feed.HeartbeatTimeout(),
		Format: cryptocompare.SubscriptionFormat{
			Frequency: cfg.Provider.Frequency,
			Aggregate: cfg.Provider.Aggregate,
			Suffix:    cfg.Provider.SubscriptionSuffix,
		},
		MaxSubsPerFrame: cfg.Provider.MaxSubsPerFrame,
		FramesPerSecond: cfg.Provider.FramesPerSecond,
		FrameBurst:      cfg.Provider.FrameBurst,
	}, m, logger)
	refresher.OnRefresh(manager.Resync)

	fl := &flusher.Flusher{
		Cache:   priceStore,
		Writer:  db,
		Timeout: cfg.Feed.FlushTimeout,
		Metrics: m,
		Logger:  logger,
	}
	if cfg.Redis.Enabled {
		rdb, err := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		fl.Mirror = redisstore.NewMirror(rdb, cfg.Redis.Prefix, cfg.Redis.TTL)
	}

	pairTimer := &symbolmeta.Scheduler{
		Name:     "pair-refresh",
		Interval: cfg.Feed.PairRefreshInterval,
		Task:     refresher.Refresh,
		Logger:   logger,
	}
	flushTimer := &symbolmeta.Scheduler{
		Name:     "price-flush",
		Interval: cfg.Feed.FlushInterval,
		Task:     fl.Flush,
		Logger:   logger,
	}
	pairTimer.Start(ctx)
	flushTimer.Start(ctx)

	logger.Info("price feed started",
		zap.String("server_group", cfg.Feed.ServerGroup),
		zap.Int("pairs", pairStore.Len()))

	runErr := manager.Run(ctx)

	pairTimer.Wait()
	flushTimer.Wait()

	// last write of whatever arrived since the previous tick
	if err := fl.Flush(context.Background()); err != nil {
		logger.Warn("final flush failed", zap.Error(err))
	}
	logger.Info("price feed stopped")
	return runErr
}
