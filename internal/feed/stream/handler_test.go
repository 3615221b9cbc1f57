package stream

import (
	"errors"
	"testing"
	"time"

	"pricefeed/internal/feed/memorystore"
	"pricefeed/pkg/fixedpoint"
	"pricefeed/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func newTestHandler() (*Handler, *memorystore.MemoryPriceStore, *metrics.Metrics) {
	store := memorystore.NewPriceStore()
	m := metrics.NewNop()
	h := NewHandler(store, map[string]string{"STARK": "STRK"}, m, zap.NewNop())
	return h, store, m
}

// go test -v --run TestHandleHeartbeat
func TestHandleHeartbeat(t *testing.T) {
	h, store, m := newTestHandler()

	res, err := h.Handle([]byte(`{"TYPE":"999"}`))
	if err != nil || res != ResultHeartbeat {
		t.Fatalf("Handle = %s, %v", res, err)
	}
	if store.Len() != 0 {
		t.Fatal("heartbeat wrote to the price cache")
	}
	if testutil.ToFloat64(m.Heartbeats) != 1 {
		t.Error("heartbeat not counted")
	}
}

func TestHandleAliasedTick(t *testing.T) {
	h, store, _ := newTestHandler()

	msg := `{"FROMSYMBOL":"STARK","TOSYMBOL":"USD","PRICE":1.234567890123456789123,"LASTUPDATE":1700000000}`
	res, err := h.Handle([]byte(msg))
	if err != nil || res != ResultTick {
		t.Fatalf("Handle = %s, %v", res, err)
	}

	if _, ok := store.Get("STARK"); ok {
		t.Fatal("price stored under provider alias")
	}
	obs, ok := store.Get("STRK")
	if !ok {
		t.Fatal("expected entry under canonical symbol STRK")
	}
	if obs.Price.String() != "1234567890123456789" {
		t.Errorf("price = %s, want truncated 1234567890123456789", obs.Price)
	}
	if want := time.UnixMilli(1700000000 * 1000).UTC(); !obs.ObservedAt.Equal(want) {
		t.Errorf("observed_at = %s, want %s", obs.ObservedAt, want)
	}
	if obs.ObservedAt.Location() != time.UTC {
		t.Errorf("observed_at not UTC: %s", obs.ObservedAt.Location())
	}
}

func TestHandleTickOverwrites(t *testing.T) {
	h, store, _ := newTestHandler()

	_, _ = h.Handle([]byte(`{"TYPE":"5","FROMSYMBOL":"ETH","TOSYMBOL":"USD","PRICE":100,"LASTUPDATE":1700000000}`))
	_, _ = h.Handle([]byte(`{"TYPE":"5","FROMSYMBOL":"ETH","TOSYMBOL":"USD","PRICE":105,"LASTUPDATE":1700000001}`))

	obs, _ := store.Get("ETH")
	if obs.Price.Denormalize() != "105" || obs.ObservedAt.Unix() != 1700000001 {
		t.Fatalf("unexpected entry: %s at %d", obs.Price.Denormalize(), obs.ObservedAt.Unix())
	}
}

func TestHandleProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"not json", `{"TYPE":`},
		{"missing price", `{"TYPE":"5","FROMSYMBOL":"BTC","TOSYMBOL":"USD","LASTUPDATE":1700000000}`},
		{"string price", `{"TYPE":"5","FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":"1.5","LASTUPDATE":1700000000}`},
		{"null price", `{"TYPE":"5","FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":null,"LASTUPDATE":1700000000}`},
		{"missing symbol", `{"TYPE":"5","TOSYMBOL":"USD","PRICE":1,"LASTUPDATE":1700000000}`},
		{"missing update time", `{"TYPE":"5","FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":1}`},
		{"update time overflows millis", `{"TYPE":"5","FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":1,"LASTUPDATE":9223372036854776}`},
		{"negative update time", `{"TYPE":"5","FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":1,"LASTUPDATE":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, m := newTestHandler()
			res, err := h.Handle([]byte(tt.msg))
			if res != ResultDropped {
				t.Fatalf("result = %s, want dropped", res)
			}
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
			}
			if store.Len() != 0 {
				t.Fatal("dropped frame reached the cache")
			}
			total := testutil.ToFloat64(m.DroppedFrames.WithLabelValues("protocol")) +
				testutil.ToFloat64(m.DroppedFrames.WithLabelValues("malformed"))
			if total != 1 {
				t.Errorf("dropped counter = %v", total)
			}
		})
	}
}

func TestHandleNormalizationKeepsPreviousPrice(t *testing.T) {
	h, store, m := newTestHandler()

	_, _ = h.Handle([]byte(`{"FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":64000.5,"LASTUPDATE":1700000000}`))

	res, err := h.Handle([]byte(`{"FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":-1,"LASTUPDATE":1700000001}`))
	if res != ResultDropped || !errors.Is(err, fixedpoint.ErrNegative) {
		t.Fatalf("Handle = %s, %v", res, err)
	}
	res, err = h.Handle([]byte(`{"FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":1e90,"LASTUPDATE":1700000002}`))
	if res != ResultDropped || !errors.Is(err, fixedpoint.ErrOverflow) {
		t.Fatalf("Handle = %s, %v", res, err)
	}

	obs, _ := store.Get("BTC")
	if obs.Price.Denormalize() != "64000.5" || obs.ObservedAt.Unix() != 1700000000 {
		t.Fatalf("previous price not retained: %s at %d", obs.Price.Denormalize(), obs.ObservedAt.Unix())
	}
	if testutil.ToFloat64(m.DroppedFrames.WithLabelValues("normalization")) != 2 {
		t.Error("normalization drops not counted")
	}
}

func TestHandleStatusAndProviderErrors(t *testing.T) {
	h, store, _ := newTestHandler()

	res, err := h.Handle([]byte(`{"TYPE":"16","MESSAGE":"SUBSCRIBECOMPLETE","SUB":"5~CCCAGG~BTC~USD"}`))
	if res != ResultStatus || err != nil {
		t.Fatalf("status frame: %s, %v", res, err)
	}

	res, err = h.Handle([]byte(`{"TYPE":"500","MESSAGE":"INVALID_SUB","PARAMETER":"5~CCCAGG~FOO~USD","INFO":"unknown pair"}`))
	var perr *ProviderError
	if res != ResultProviderError || !errors.As(err, &perr) {
		t.Fatalf("provider error frame: %s, %v", res, err)
	}
	if perr.Message != "INVALID_SUB" {
		t.Errorf("message = %s", perr.Message)
	}
	if store.Len() != 0 {
		t.Fatal("status frames reached the cache")
	}
}
