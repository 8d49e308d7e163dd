// Package store owns the three payment tables: pending_payments,
// processed_transfers and subscriptions. Only the reconciliation engine and
// the payment-request handler write here; everything else is read-only.
package store

import (
	"database/sql"

	"github.com/MyBlackCandy/TG-Bot/internal/logging"
)

// Store wraps the service database connection.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New creates a store over an established connection.
func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}
