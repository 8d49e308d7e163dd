package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return New(mockDB, logrus.New()), mock
}

func TestCreditFreshTransfer(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	period := 30 * 24 * time.Hour
	amount := decimal.RequireFromString("100.001")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_transfers").
		WithArgs("tx-1", int64(42), amount, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT expires_at FROM subscriptions").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(int64(42), now.Add(period)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM pending_payments").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newExpiry, credited, err := s.Credit(context.Background(), "tx-1", 42, amount, period, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !credited {
		t.Fatalf("expected transfer to be credited")
	}
	if !newExpiry.Equal(now.Add(period)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(period), newExpiry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreditStacksOnActiveSubscription(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	period := 30 * 24 * time.Hour
	current := now.Add(10 * 24 * time.Hour)
	amount := decimal.RequireFromString("100.002")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_transfers").
		WithArgs("tx-2", int64(7), amount, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT expires_at FROM subscriptions").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(current))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(int64(7), current.Add(period)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM pending_payments").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newExpiry, credited, err := s.Credit(context.Background(), "tx-2", 7, amount, period, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !credited {
		t.Fatalf("expected transfer to be credited")
	}
	// 10 days left + 30 day period = 40 days out, not 30.
	if !newExpiry.Equal(current.Add(period)) {
		t.Fatalf("expected stacked expiry %v, got %v", current.Add(period), newExpiry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreditLapsedSubscriptionStartsFromNow(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	period := 30 * 24 * time.Hour
	lapsed := now.Add(-5 * 24 * time.Hour)
	amount := decimal.RequireFromString("100.003")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_transfers").
		WithArgs("tx-3", int64(9), amount, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT expires_at FROM subscriptions").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(lapsed))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(int64(9), now.Add(period)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM pending_payments").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	newExpiry, credited, err := s.Credit(context.Background(), "tx-3", 9, amount, period, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !credited {
		t.Fatalf("expected transfer to be credited")
	}
	// No retroactive credit for the lapsed gap.
	if !newExpiry.Equal(now.Add(period)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(period), newExpiry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreditDuplicateTransferIsNoOp(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Now()
	amount := decimal.RequireFromString("100.001")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_transfers").
		WithArgs("tx-dup", int64(42), amount, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, credited, err := s.Credit(context.Background(), "tx-dup", 42, amount, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credited {
		t.Fatalf("duplicate transfer must not credit again")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListActivePendingExcludesExpired(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT user_id, fingerprint_amount, created_at, expires_at").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "fingerprint_amount", "created_at", "expires_at"}).
			AddRow(int64(1), "100.001", now.Add(-time.Hour), now.Add(time.Hour)))

	pending, err := s.ListActivePending(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending payment, got %d", len(pending))
	}
	if !pending[0].FingerprintAmount.Equal(decimal.RequireFromString("100.001")) {
		t.Fatalf("unexpected fingerprint: %s", pending[0].FingerprintAmount)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertPending(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Now()
	expires := now.Add(24 * time.Hour)
	amount := decimal.RequireFromString("100.004")

	mock.ExpectExec("INSERT INTO pending_payments").
		WithArgs(int64(5), amount, now, expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpsertPending(context.Background(), 5, amount, now, expires); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteExpiredPending(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Now()
	mock.ExpectQuery("DELETE FROM pending_payments").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(1)).AddRow(int64(2)))

	users, err := s.DeleteExpiredPending(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 || users[0] != 1 || users[1] != 2 {
		t.Fatalf("unexpected purged users: %v", users)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRemovePending(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM pending_payments WHERE user_id").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RemovePending(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetSubscriptionMissing(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT user_id, expires_at FROM subscriptions").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}))

	sub, err := s.GetSubscription(context.Background(), 404)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected nil subscription, got %+v", sub)
	}
}
