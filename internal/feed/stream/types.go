package stream

import (
	"fmt"

	"pricefeed/pkg/cryptocompare"
)

// Result classifies what Handle did with a frame.
type Result int

const (
	ResultDropped       Result = iota // frame rejected, cache untouched
	ResultHeartbeat                   // keepalive, watchdog should be reset
	ResultTick                        // observation written to the price cache
	ResultStatus                      // provider status frame (welcome, sub ack, ...)
	ResultProviderError               // provider reported an error
)

func (r Result) String() string {
	switch r {
	case ResultHeartbeat:
		return "heartbeat"
	case ResultTick:
		return "tick"
	case ResultStatus:
		return "status"
	case ResultProviderError:
		return "provider_error"
	default:
		return "dropped"
	}
}

// ProtocolError reports an inbound frame that could not be interpreted.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ProviderError is an error frame sent by the streamer itself.
type ProviderError struct {
	Type    cryptocompare.MessageType
	Message string
	Info    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s %s", e.Type, e.Message, e.Info)
}
