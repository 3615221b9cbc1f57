package cryptocompare

import "encoding/json"

// SubscriptionFrame is the outbound subscribe/unsubscribe request.
type SubscriptionFrame struct {
	Action string   `json:"action"` // "SubAdd" or "SubRemove"
	Subs   []string `json:"subs"`   // e.g. ["5~CCCAGG~BTC~USD"]
}

// Envelope carries the fields shared by every inbound frame.
type Envelope struct {
	Type    MessageType `json:"TYPE"`
	Message string      `json:"MESSAGE,omitempty"` // set on status and error frames
	Info    string      `json:"INFO,omitempty"`
}

// TickMessage is an aggregate index update. Numeric fields are kept raw so
// prices can be normalized without a float64 round trip.
type TickMessage struct {
	Type       MessageType     `json:"TYPE"`
	Market     string          `json:"MARKET"`     // e.g. "CCCAGG"
	FromSymbol string          `json:"FROMSYMBOL"` // base asset, e.g. "BTC"
	ToSymbol   string          `json:"TOSYMBOL"`   // quote asset, e.g. "USD"
	Price      json.RawMessage `json:"PRICE"`      // JSON number
	LastUpdate json.RawMessage `json:"LASTUPDATE"` // seconds since epoch
}
