// Package models defines the persistent records of the settlement engine:
// settlement requests, listed assets and registered participants.
package models

import (
	"encoding/json"
	"time"
)

// Direction says which side of a settlement request is escrowed: a mint
// escrows base currency and pays out asset tokens, a redeem escrows asset
// tokens and pays out base currency.
type Direction string

const (
	DirectionMint   Direction = "mint"
	DirectionRedeem Direction = "redeem"
)

// RequestStatus is the lifecycle state of a settlement request.
// Pending is the only non-terminal state; a request transitions to exactly
// one of the terminal states exactly once.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusError     RequestStatus = "error"
	RequestStatusExpired   RequestStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusError || s == RequestStatusExpired
}

// Request is one mint or redeem settlement request. The ID is the request
// id issued by the execution oracle at dispatch time and is globally unique
// across all assets.
type Request struct {
	ID      string `json:"id" gorm:"primaryKey"`
	AssetID uint64 `json:"asset_id" gorm:"index;not null"`
	Ticker  string `json:"ticker" gorm:"index;not null"`

	Direction Direction     `json:"direction" gorm:"not null"`
	Status    RequestStatus `json:"status" gorm:"index;not null"`

	// Amount is the escrowed quantity in the input currency's units:
	// base currency for a mint, asset tokens for a redeem.
	Amount string `json:"amount" gorm:"not null"`
	// AmountExpected is the output quantity the requester was quoted at
	// submission time, in the output currency's units. Empty disables the
	// slippage check for this request.
	AmountExpected string `json:"amount_expected"`
	// ResultAmount is the oracle-reported output quantity, set on fulfill.
	ResultAmount string `json:"result_amount"`

	Requester         string `json:"requester" gorm:"index;not null"`
	ExternalAccountID string `json:"external_account_id" gorm:"not null"`

	// RefundReason is set when the request terminates in Error or Expired.
	RefundReason string `json:"refund_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline" gorm:"index;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EscrowCurrency returns the currency held in escrow for this request:
// the base currency for a mint, the asset token for a redeem.
func (r *Request) EscrowCurrency(baseCurrency string) string {
	if r.Direction == DirectionMint {
		return baseCurrency
	}
	return r.Ticker
}

// Asset is the registry record for one listed ticker.
type Asset struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Ticker      string    `json:"ticker" gorm:"uniqueIndex;not null"`
	DisplayName string    `json:"display_name"`
	MetadataURI string    `json:"metadata_uri"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Participant maps an on-chain address to a brokerage account. The
// external account id is immutable after registration; re-registration
// fails.
type Participant struct {
	Address           string    `json:"address" gorm:"primaryKey"`
	ExternalAccountID string    `json:"external_account_id" gorm:"not null"`
	LastRequestAt     time.Time `json:"last_request_at"`
	// RequestIDs is the JSON-encoded list of every request id this
	// participant ever created, scanned by expired-request cleanup.
	RequestIDs string    `json:"request_ids" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RequestIDList decodes the participant's recorded request ids.
func (p *Participant) RequestIDList() []string {
	if p.RequestIDs == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(p.RequestIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// SetRequestIDList encodes the participant's recorded request ids.
func (p *Participant) SetRequestIDList(ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	p.RequestIDs = string(data)
	return nil
}
