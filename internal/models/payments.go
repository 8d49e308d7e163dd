package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingPayment is one outstanding payment request. The fingerprint amount
// (base price plus a per-request decimal offset) is what identifies the
// incoming transfer, since plain TRC-20 transfers carry no invoice reference.
type PendingPayment struct {
	UserID            int64           `json:"user_id"`
	FingerprintAmount decimal.Decimal `json:"fingerprint_amount"`
	CreatedAt         time.Time       `json:"created_at"`
	ExpiresAt         time.Time       `json:"expires_at"`
}

// Transfer is one inbound token transfer observed on the chain explorer.
type Transfer struct {
	ID          string          `json:"transfer_id"`
	ToAddress   string          `json:"to_address"`
	FromAddress string          `json:"from_address"`
	Amount      decimal.Decimal `json:"amount"`
	TokenSymbol string          `json:"token_symbol"`
}

// ProcessedTransfer records a transfer that has already been credited.
type ProcessedTransfer struct {
	TransferID string          `json:"transfer_id"`
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	MatchedAt  time.Time       `json:"matched_at"`
}

// Subscription is a user's current access window.
type Subscription struct {
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the subscription covers the given instant.
func (s Subscription) Active(now time.Time) bool {
	return s.ExpiresAt.After(now)
}
