package flusher

import (
	"context"
	"fmt"
	"time"

	"pricefeed/internal/feed/memorystore"
	"pricefeed/pkg/metrics"
	"pricefeed/pkg/storage/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriceSnapshotter is the read side of the price cache.
type PriceSnapshotter interface {
	Snapshot() []memorystore.PriceObservation
}

// PriceWriter persists a batch of prices in one transaction.
type PriceWriter interface {
	UpdatePrices(ctx context.Context, updates []postgres.PriceUpdate) (postgres.BatchResult, error)
}

// Mirror receives the batch after it was committed.
type Mirror interface {
	PublishLatest(ctx context.Context, prices []memorystore.PriceObservation) error
}

// Flusher writes the current price cache to storage.
type Flusher struct {
	Cache   PriceSnapshotter
	Writer  PriceWriter
	Mirror  Mirror // optional
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Flush persists a snapshot of the price cache. The write runs on a context
// detached from ctx's cancellation so a flush that started during shutdown
// either commits or rolls back within Timeout. The cache is never cleared.
func (f *Flusher) Flush(ctx context.Context) error {
	snap := f.Cache.Snapshot()
	f.Metrics.CachedSymbols.Set(float64(len(snap)))
	if len(snap) == 0 {
		return nil
	}

	batch := uuid.NewString()
	writeCtx := context.WithoutCancel(ctx)
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(writeCtx, f.Timeout)
		defer cancel()
	}

	updates := make([]postgres.PriceUpdate, 0, len(snap))
	for _, obs := range snap {
		updates = append(updates, postgres.ToPriceUpdate(obs))
	}

	start := time.Now()
	res, err := f.Writer.UpdatePrices(writeCtx, updates)
	f.Metrics.FlushDuration.Observe(time.Since(start).Seconds())

	for _, e := range res.Failed {
		f.Metrics.FlushEntryFails.Inc()
		f.Logger.Error("failed to update price",
			zap.String("phase", "flush"),
			zap.String("batch", batch),
			zap.String("symbol", e.Symbol),
			zap.Error(e.Err))
	}

	if err != nil {
		f.Metrics.Flushes.WithLabelValues("error").Inc()
		f.Logger.Error("price batch rolled back",
			zap.String("phase", "flush"),
			zap.String("batch", batch),
			zap.Int("entries", len(updates)),
			zap.Error(err))
		return fmt.Errorf("flush batch %s: %w", batch, err)
	}

	f.Metrics.Flushes.WithLabelValues("ok").Inc()
	f.Logger.Debug("price batch committed",
		zap.String("batch", batch),
		zap.Int("entries", len(updates)),
		zap.Int("failed", len(res.Failed)),
		zap.Int64("rows", res.RowsAffected),
		zap.Duration("elapsed", time.Since(start)))

	if f.Mirror != nil {
		if err := f.Mirror.PublishLatest(writeCtx, snap); err != nil {
			f.Logger.Warn("failed to mirror prices to redis",
				zap.String("batch", batch),
				zap.Error(err))
		}
	}
	return nil
}
