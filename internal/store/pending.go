package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MyBlackCandy/TG-Bot/internal/models"
)

// GetActivePending returns the user's outstanding payment request, or nil if
// the user has none (or only an expired one).
func (s *Store) GetActivePending(ctx context.Context, userID int64, now time.Time) (*models.PendingPayment, error) {
	var p models.PendingPayment
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, fingerprint_amount, created_at, expires_at
		FROM pending_payments
		WHERE user_id = $1 AND expires_at > $2
	`, userID, now).Scan(&p.UserID, &p.FingerprintAmount, &p.CreatedAt, &p.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payment: %w", err)
	}
	return &p, nil
}

// UpsertPending records a new payment request for the user, replacing any
// prior request. One outstanding request per user.
func (s *Store) UpsertPending(ctx context.Context, userID int64, amount decimal.Decimal, now, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_payments (user_id, fingerprint_amount, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET fingerprint_amount = EXCLUDED.fingerprint_amount,
		              created_at = EXCLUDED.created_at,
		              expires_at = EXCLUDED.expires_at
	`, userID, amount, now, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert pending payment: %w", err)
	}
	return nil
}

// RefreshPendingExpiry extends the expiry of an existing request without
// changing its fingerprint.
func (s *Store) RefreshPendingExpiry(ctx context.Context, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_payments SET expires_at = $2 WHERE user_id = $1
	`, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to refresh pending expiry: %w", err)
	}
	return nil
}

// ListActivePending returns all requests whose expiry is still in the future.
// Rows past expiry are excluded here even before they are physically purged.
func (s *Store) ListActivePending(ctx context.Context, now time.Time) ([]models.PendingPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, fingerprint_amount, created_at, expires_at
		FROM pending_payments
		WHERE expires_at > $1
		ORDER BY created_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingPayment
	for rows.Next() {
		var p models.PendingPayment
		if err := rows.Scan(&p.UserID, &p.FingerprintAmount, &p.CreatedAt, &p.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending payment: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// ActiveFingerprints returns the fingerprint amounts of all still-active
// requests. The allocator excludes these when picking an offset.
func (s *Store) ActiveFingerprints(ctx context.Context, now time.Time) ([]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint_amount FROM pending_payments WHERE expires_at > $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active fingerprints: %w", err)
	}
	defer rows.Close()

	var amounts []decimal.Decimal
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint amount: %w", err)
		}
		amounts = append(amounts, amount)
	}
	return amounts, rows.Err()
}

// RemovePending deletes the user's outstanding request.
func (s *Store) RemovePending(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_payments WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to remove pending payment: %w", err)
	}
	return nil
}

// DeleteExpiredPending purges requests whose window has closed and returns
// the affected user ids. Expired fingerprints are never honored; the SQL
// filter in ListActivePending is the correctness guarantee, this is cleanup.
func (s *Store) DeleteExpiredPending(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM pending_payments WHERE expires_at <= $1 RETURNING user_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired pending payments: %w", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan expired user id: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}
