package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "pricefeed"

// Metrics groups the collectors reported by the price pipeline.
type Metrics struct {
	Ticks           prometheus.Counter
	Heartbeats      prometheus.Counter
	DroppedFrames   *prometheus.CounterVec // reason
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge
	Subscriptions   prometheus.Gauge
	FramesSent      *prometheus.CounterVec // action
	PairRefreshes   *prometheus.CounterVec // result
	ActivePairs     prometheus.Gauge
	Flushes         *prometheus.CounterVec // result
	FlushEntryFails prometheus.Counter
	FlushDuration   prometheus.Histogram
	CachedSymbols   prometheus.Gauge
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Price ticks written to the price cache.",
		}),
		Heartbeats: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "heartbeats_total",
			Help: "Keepalive frames received from the provider.",
		}),
		DroppedFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_frames_total",
			Help: "Inbound frames dropped, by reason.",
		}, []string{"reason"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconnects_total",
			Help: "Reconnect attempts scheduled after a closed connection.",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connection_state",
			Help: "0=disconnected 1=connecting 2=open 3=closing.",
		}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "subscriptions",
			Help: "Instrument keys the open connection is subscribed to.",
		}),
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_sent_total",
			Help: "Subscription frames sent, by action.",
		}, []string{"action"}),
		PairRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pair_refreshes_total",
			Help: "Pair cache refreshes, by result.",
		}, []string{"result"}),
		ActivePairs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_pairs",
			Help: "Pairs in the current pair cache snapshot.",
		}),
		Flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "flushes_total",
			Help: "Price flush batches, by result.",
		}, []string{"result"}),
		FlushEntryFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "flush_entry_failures_total",
			Help: "Individual price updates that failed inside a committed batch.",
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "flush_duration_seconds",
			Help:    "Time spent writing one price batch.",
			Buckets: prometheus.DefBuckets,
		}),
		CachedSymbols: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cached_symbols",
			Help: "Symbols held in the price cache.",
		}),
	}
}

// NewNop returns metrics registered on a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
