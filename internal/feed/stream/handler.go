package stream

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"pricefeed/internal/feed/memorystore"
	"pricefeed/pkg/cryptocompare"
	"pricefeed/pkg/fixedpoint"
	"pricefeed/pkg/metrics"

	"go.uber.org/zap"
)

// PriceSetter is the write side of the price cache.
type PriceSetter interface {
	Set(symbol string, obs memorystore.PriceObservation)
}

// Handler turns inbound frames into price cache writes.
type Handler struct {
	store   PriceSetter
	aliases map[string]string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a handler. aliases maps provider symbols to canonical
// symbols and must have upper-case keys.
func NewHandler(store PriceSetter, aliases map[string]string, m *metrics.Metrics, logger *zap.Logger) *Handler {
	cp := make(map[string]string, len(aliases))
	for k, v := range aliases {
		cp[strings.ToUpper(k)] = v
	}
	return &Handler{store: store, aliases: cp, metrics: m, logger: logger}
}

// Handle processes one frame. Failures are logged here; the returned error is
// for callers that need the cause.
func (h *Handler) Handle(msg []byte) (Result, error) {
	// Step 1: Extract the type for early routing
	var env cryptocompare.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return h.drop("malformed", &ProtocolError{Reason: "malformed frame", Err: err}, msg)
	}

	switch {
	case env.Type.IsHeartbeat():
		h.metrics.Heartbeats.Inc()
		return ResultHeartbeat, nil
	case env.Type.IsProviderError():
		perr := &ProviderError{Type: env.Type, Message: env.Message, Info: env.Info}
		h.logger.Error("provider reported an error",
			zap.String("phase", "message"),
			zap.String("type", string(env.Type)),
			zap.String("message", env.Message),
			zap.String("info", env.Info))
		return ResultProviderError, perr
	case isStatus(env.Type):
		h.logger.Debug("provider status",
			zap.String("type", string(env.Type)),
			zap.String("message", env.Message))
		return ResultStatus, nil
	}

	// Step 2: Fully parse the tick payload
	var tick cryptocompare.TickMessage
	if err := json.Unmarshal(msg, &tick); err != nil {
		return h.drop("malformed", &ProtocolError{Reason: "malformed tick", Err: err}, msg)
	}
	obs, err := h.toObservation(tick)
	if err != nil {
		var nerr *fixedpoint.NormalizationError
		if errors.As(err, &nerr) {
			h.metrics.DroppedFrames.WithLabelValues("normalization").Inc()
			h.logger.Warn("dropping unrepresentable price",
				zap.String("phase", "normalize"),
				zap.String("symbol", tick.FromSymbol),
				zap.String("price", string(tick.Price)),
				zap.Error(err))
			return ResultDropped, err
		}
		return h.drop("protocol", err, msg)
	}

	// Step 3: Store the latest price
	h.store.Set(obs.Symbol, obs)
	h.metrics.Ticks.Inc()
	h.logger.Debug("price updated",
		zap.String("symbol", obs.Symbol),
		zap.String("pair", tick.FromSymbol+"/"+tick.ToSymbol),
		zap.String("price", obs.Price.Denormalize()))
	return ResultTick, nil
}

func (h *Handler) toObservation(tick cryptocompare.TickMessage) (memorystore.PriceObservation, error) {
	if tick.FromSymbol == "" || tick.ToSymbol == "" {
		return memorystore.PriceObservation{}, &ProtocolError{Reason: "missing FROMSYMBOL/TOSYMBOL"}
	}
	if !isJSONNumber(tick.Price) {
		return memorystore.PriceObservation{}, &ProtocolError{Reason: "missing or non-numeric PRICE"}
	}
	if !isJSONNumber(tick.LastUpdate) {
		return memorystore.PriceObservation{}, &ProtocolError{Reason: "missing or non-numeric LASTUPDATE"}
	}
	sec, err := strconv.ParseInt(string(tick.LastUpdate), 10, 64)
	if err != nil {
		return memorystore.PriceObservation{}, &ProtocolError{Reason: "invalid LASTUPDATE", Err: err}
	}
	if sec < 0 || sec > math.MaxInt64/1000 {
		return memorystore.PriceObservation{}, &ProtocolError{Reason: "LASTUPDATE out of range"}
	}

	price, err := fixedpoint.Normalize(string(tick.Price))
	if err != nil {
		return memorystore.PriceObservation{}, err
	}

	return memorystore.PriceObservation{
		Symbol:     h.canonical(tick.FromSymbol),
		Price:      price,
		ObservedAt: time.UnixMilli(sec * 1000).UTC(),
	}, nil
}

// canonical rewrites provider-side aliases, e.g. STARK -> STRK.
func (h *Handler) canonical(symbol string) string {
	if to, ok := h.aliases[strings.ToUpper(symbol)]; ok {
		return to
	}
	return symbol
}

func (h *Handler) drop(reason string, err error, msg []byte) (Result, error) {
	h.metrics.DroppedFrames.WithLabelValues(reason).Inc()
	h.logger.Warn("dropping inbound frame",
		zap.String("phase", "message"),
		zap.String("reason", reason),
		zap.ByteString("frame", truncate(msg, 256)),
		zap.Error(err))
	return ResultDropped, err
}

func isStatus(t cryptocompare.MessageType) bool {
	switch t {
	case cryptocompare.TypeWelcome, cryptocompare.TypeSubscribeOK,
		cryptocompare.TypeUnsubscribeOK, cryptocompare.TypeLoadComplete:
		return true
	}
	return false
}

// isJSONNumber reports whether raw is a JSON number literal rather than a
// string, null, or absent value.
func isJSONNumber(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
