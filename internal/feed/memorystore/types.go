package memorystore

import (
	"time"

	"pricefeed/pkg/fixedpoint"
)

// TradingPair is an active (base, quote) pair loaded from the tokens table.
type TradingPair struct {
	Base  string `json:"base"`  // e.g., "BTC"
	Quote string `json:"quote"` // e.g., "USD"
}

// Key returns the instrument key used in subscriptions, e.g. "BTC~USD".
func (p TradingPair) Key() string {
	return p.Base + "~" + p.Quote
}

// PriceObservation is the latest normalized price seen for a symbol.
type PriceObservation struct {
	Symbol     string           `json:"symbol"`      // canonical base symbol (aliases already applied)
	Price      fixedpoint.Price `json:"price"`       // scaled by 10^18
	ObservedAt time.Time        `json:"observed_at"` // provider update time, UTC
}
