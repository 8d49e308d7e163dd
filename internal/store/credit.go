package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Credit applies a matched transfer to a user's subscription. Everything
// happens in one transaction:
//
//  1. insert the transfer id into processed_transfers; the primary key makes
//     this an atomic insert-or-reject, which is the only coordination point
//     between concurrent engine instances
//  2. extend the subscription from max(now, current expiry)
//  3. delete the user's pending payment
//
// Returns credited=false (with no error) when the transfer id was already
// recorded: a duplicate observation, not a failure. On any error the whole
// transaction rolls back, leaving the transfer unprocessed so the next tick
// retries without double-credit risk.
func (s *Store) Credit(ctx context.Context, transferID string, userID int64, amount decimal.Decimal, period time.Duration, now time.Time) (newExpiry time.Time, credited bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to begin credit transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	res, err := tx.ExecContext(ctx, `
		INSERT INTO processed_transfers (transfer_id, user_id, amount, matched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transfer_id) DO NOTHING
	`, transferID, userID, amount, now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to record processed transfer: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if inserted == 0 {
		// Already credited in a prior tick or by another instance.
		return time.Time{}, false, nil
	}

	// Stacking rule: renewing before lapsing keeps the unused time, renewing
	// after lapsing starts from now.
	start := now
	var current time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT expires_at FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, false, fmt.Errorf("failed to query current expiry: %w", err)
	}
	if err == nil && current.After(now) {
		start = current
	}
	newExpiry = start.Add(period)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, expires_at, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, userID, newExpiry)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to extend subscription: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM pending_payments WHERE user_id = $1`, userID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to clear pending payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to commit credit transaction: %w", err)
	}
	return newExpiry, true, nil
}
