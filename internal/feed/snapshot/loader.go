package snapshot

import (
	"context"
	"fmt"
	"time"

	"pricefeed/internal/feed/memorystore"
	"pricefeed/pkg/metrics"

	"go.uber.org/zap"
)

// PairSource is the storage query for active pairs of a server group.
type PairSource interface {
	ActivePairs(ctx context.Context, serverGroup string) ([]memorystore.TradingPair, error)
}

// PairReplacer is the write side of the pair cache.
type PairReplacer interface {
	Replace(pairs []memorystore.TradingPair)
}

// StorageError reports a failed pair query. The previous snapshot stays in use.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PairRefresher reloads the active pair set from storage into the pair cache
// and notifies listeners with the new snapshot.
type PairRefresher struct {
	Source      PairSource
	Store       PairReplacer
	ServerGroup string
	Timeout     time.Duration
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	listeners []func([]memorystore.TradingPair)
}

// OnRefresh registers fn to receive every successfully loaded snapshot.
// Listeners must not block.
func (r *PairRefresher) OnRefresh(fn func([]memorystore.TradingPair)) {
	r.listeners = append(r.listeners, fn)
}

// Refresh loads the active pairs once. On failure the pair cache is left
// untouched and a *StorageError is returned.
func (r *PairRefresher) Refresh(ctx context.Context) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	pairs, err := r.Source.ActivePairs(ctx, r.ServerGroup)
	if err != nil {
		r.Metrics.PairRefreshes.WithLabelValues("error").Inc()
		r.Logger.Error("failed to load active pairs, keeping previous snapshot",
			zap.String("phase", "refresh"),
			zap.String("server_group", r.ServerGroup),
			zap.Error(err))
		return &StorageError{Op: "active pairs", Err: err}
	}

	r.Store.Replace(pairs)
	r.Metrics.PairRefreshes.WithLabelValues("ok").Inc()
	r.Metrics.ActivePairs.Set(float64(len(pairs)))
	r.Logger.Info("loaded active pairs",
		zap.String("server_group", r.ServerGroup),
		zap.Int("count", len(pairs)))

	for _, fn := range r.listeners {
		fn(pairs)
	}
	return nil
}
