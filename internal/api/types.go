package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MyBlackCandy/TG-Bot/internal/models"
)

// ErrorResponse is the shape of every error body this service returns
type ErrorResponse struct {
	Error string `json:"error"`
}

// PaymentRequest asks for payment instructions for a user
type PaymentRequest struct {
	UserID int64 `json:"user_id"`
}

// PaymentInstructions tells the user exactly what to transfer and where.
// Amount is the fingerprinted total; paying any other amount will not be
// recognized.
type PaymentInstructions struct {
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Token     string          `json:"token"`
	Address   string          `json:"address"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SubscriptionStatusResponse reports whether a user currently has access
type SubscriptionStatusResponse struct {
	UserID    int64      `json:"user_id"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PendingPaymentsResponse lists payment requests still waiting for a transfer
type PendingPaymentsResponse struct {
	Pending []models.PendingPayment `json:"pending"`
	Count   int                     `json:"count"`
}
