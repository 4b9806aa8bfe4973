// Package events defines the settlement domain events and the publishers
// that emit them. Events are observational: failure to publish never fails
// the operation that produced the event.
package events

import "time"

const (
	EventAssetMinted           = "AssetMinted"
	EventAssetRedeemed         = "AssetRedeemed"
	EventRequestSuccess        = "RequestSuccess"
	EventRefundIssued          = "RefundIssued"
	EventRequestExpired        = "RequestExpired"
	EventRequestTimeoutUpdated = "RequestTimeoutUpdated"
	EventTokenRegistered       = "TokenRegistered"
	EventTokenRemoved          = "TokenRemoved"
)

// SettlementEvent is the common envelope for every published event.
type SettlementEvent struct {
	Event     string    `json:"event"`
	Ticker    string    `json:"ticker"`
	RequestID string    `json:"request_id,omitempty"`
	Requester string    `json:"requester,omitempty"`
	Direction string    `json:"direction,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits settlement events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(event SettlementEvent) error
	Close()
}
