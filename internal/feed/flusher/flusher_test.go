package flusher

import (
	"context"
	"errors"
	"testing"
	"time"

	"pricefeed/internal/feed/memorystore"
	"pricefeed/pkg/fixedpoint"
	"pricefeed/pkg/metrics"
	"pricefeed/pkg/storage/postgres"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type fakeWriter struct {
	calls   int
	got     []postgres.PriceUpdate
	ctxErr  error
	failFor map[string]bool
	err     error
}

func (w *fakeWriter) UpdatePrices(ctx context.Context, updates []postgres.PriceUpdate) (postgres.BatchResult, error) {
	w.calls++
	w.got = updates
	w.ctxErr = ctx.Err()

	var res postgres.BatchResult
	for _, u := range updates {
		if w.failFor[u.Symbol] {
			res.Failed = append(res.Failed, &postgres.EntryError{Symbol: u.Symbol, Err: errors.New("constraint")})
			continue
		}
		res.RowsAffected++
	}
	return res, w.err
}

type fakeMirror struct {
	published []memorystore.PriceObservation
	err       error
}

func (m *fakeMirror) PublishLatest(_ context.Context, prices []memorystore.PriceObservation) error {
	m.published = prices
	return m.err
}

func filledCache(t *testing.T) *memorystore.MemoryPriceStore {
	t.Helper()
	cache := memorystore.NewPriceStore()
	ts := time.Unix(1700000000, 0).UTC()
	for sym, v := range map[string]string{"BTC": "64000.5", "ETH": "3000"} {
		p, err := fixedpoint.Normalize(v)
		if err != nil {
			t.Fatal(err)
		}
		cache.Set(sym, memorystore.PriceObservation{Price: p, ObservedAt: ts})
	}
	return cache
}

// go test -v --run TestFlushWritesSnapshot
func TestFlushWritesSnapshot(t *testing.T) {
	cache := filledCache(t)
	w := &fakeWriter{}
	mirror := &fakeMirror{}
	m := metrics.NewNop()
	f := &Flusher{Cache: cache, Writer: w, Mirror: mirror, Timeout: time.Second, Metrics: m, Logger: zap.NewNop()}

	if err := f.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.got) != 2 || w.got[0].Symbol != "BTC" || w.got[0].Price != "64000500000000000000000" {
		t.Fatalf("unexpected batch: %+v", w.got)
	}
	if len(mirror.published) != 2 {
		t.Error("committed batch not mirrored")
	}
	if cache.Len() != 2 {
		t.Error("flush cleared the price cache")
	}
	if testutil.ToFloat64(m.Flushes.WithLabelValues("ok")) != 1 {
		t.Error("flush not counted")
	}

	// unchanged cache is written again on the next tick
	if err := f.Flush(context.Background()); err != nil || w.calls != 2 {
		t.Fatalf("second flush: calls=%d err=%v", w.calls, err)
	}
}

func TestFlushEmptyCacheIsNoop(t *testing.T) {
	w := &fakeWriter{}
	f := &Flusher{Cache: memorystore.NewPriceStore(), Writer: w, Metrics: metrics.NewNop(), Logger: zap.NewNop()}

	if err := f.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if w.calls != 0 {
		t.Fatal("empty cache reached storage")
	}
}

func TestFlushEntryFailureDoesNotFailBatch(t *testing.T) {
	w := &fakeWriter{failFor: map[string]bool{"ETH": true}}
	m := metrics.NewNop()
	f := &Flusher{Cache: filledCache(t), Writer: w, Metrics: m, Logger: zap.NewNop()}

	if err := f.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if testutil.ToFloat64(m.FlushEntryFails) != 1 {
		t.Error("entry failure not counted")
	}
}

func TestFlushCommitFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("commit failed")}
	mirror := &fakeMirror{}
	m := metrics.NewNop()
	f := &Flusher{Cache: filledCache(t), Writer: w, Mirror: mirror, Metrics: m, Logger: zap.NewNop()}

	if err := f.Flush(context.Background()); err == nil {
		t.Fatal("expected error on commit failure")
	}
	if mirror.published != nil {
		t.Error("rolled back batch was mirrored")
	}
	if testutil.ToFloat64(m.Flushes.WithLabelValues("error")) != 1 {
		t.Error("failed flush not counted")
	}
}

func TestFlushSurvivesShutdownSignal(t *testing.T) {
	w := &fakeWriter{}
	f := &Flusher{Cache: filledCache(t), Writer: w, Timeout: time.Second, Metrics: metrics.NewNop(), Logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if w.ctxErr != nil {
		t.Fatalf("write context was cancelled: %v", w.ctxErr)
	}
}

func TestFlushMirrorErrorIsLogged(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("redis down")}
	f := &Flusher{Cache: filledCache(t), Writer: &fakeWriter{}, Mirror: mirror, Metrics: metrics.NewNop(), Logger: zap.NewNop()}

	if err := f.Flush(context.Background()); err != nil {
		t.Fatalf("mirror failure must not fail the flush: %v", err)
	}
}
