package cryptocompare

// Subscription actions understood by the streamer.
const (
	ActionSubAdd    = "SubAdd"
	ActionSubRemove = "SubRemove"
)

// MessageType is the TYPE field of inbound frames.
type MessageType string

const (
	TypeAggregateIndex MessageType = "5"
	TypeWelcome        MessageType = "20"
	TypeSubscribeOK    MessageType = "16"
	TypeUnsubscribeOK  MessageType = "17"
	TypeLoadComplete   MessageType = "3"
	TypeUnauthorized   MessageType = "401"
	TypeRateLimited    MessageType = "429"
	TypeError          MessageType = "500"
	TypeHeartbeat      MessageType = "999"
)

// IsHeartbeat reports whether the frame is a keepalive marker.
func (t MessageType) IsHeartbeat() bool {
	return t == TypeHeartbeat
}

// IsProviderError reports frames the streamer uses to signal a problem
// with the session or a subscription.
func (t MessageType) IsProviderError() bool {
	switch t {
	case TypeUnauthorized, TypeRateLimited, TypeError:
		return true
	}
	return false
}
