package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MyBlackCandy/TG-Bot/internal/models"
)

// GetSubscription returns the user's subscription, or nil if the user has
// never been credited.
func (s *Store) GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&sub.UserID, &sub.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	return &sub, nil
}
