// Package reconciler matches inbound chain transfers against outstanding
// payment requests and credits subscriptions.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/MyBlackCandy/TG-Bot/internal/logging"
	"github.com/MyBlackCandy/TG-Bot/internal/models"
	"github.com/MyBlackCandy/TG-Bot/internal/notify"
	"github.com/MyBlackCandy/TG-Bot/internal/store"
	"github.com/MyBlackCandy/TG-Bot/internal/tronscan"
)

// Scanner is the read-only chain explorer view consumed by the engine.
type Scanner interface {
	RecentTransfers(ctx context.Context) ([]models.Transfer, error)
}

// Metrics holds the engine's Prometheus counters.
type Metrics struct {
	Matched            *prometheus.CounterVec
	DuplicateTransfers *prometheus.CounterVec
	ScanFailures       *prometheus.CounterVec
	AmbiguousMatches   *prometheus.CounterVec
	ExpiredRequests    *prometheus.CounterVec
}

// Config holds engine tuning.
type Config struct {
	Interval time.Duration
	Period   time.Duration
	Epsilon  decimal.Decimal
}

// Reconciler polls the explorer on a fixed interval and reconciles transfers
// against pending payments. The tick body runs synchronously inside the
// ticker loop, so two ticks can never be in flight at once; a slow tick
// simply delays the next one.
type Reconciler struct {
	store    *store.Store
	scanner  Scanner
	notifier notify.Notifier
	logger   logging.Logger
	metrics  *Metrics
	cfg      Config
	stopCh   chan struct{}
}

// New creates a reconciliation engine.
func New(st *store.Store, scanner Scanner, notifier notify.Notifier, logger logging.Logger, metrics *Metrics, cfg Config) *Reconciler {
	return &Reconciler{
		store:    st,
		scanner:  scanner,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.WithField("interval", r.cfg.Interval.String()).Info("Starting payment reconciler")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopping due to context cancellation")
			return
		case <-r.stopCh:
			r.logger.Info("Reconciler stopping")
			return
		case <-ticker.C:
			r.runTick(ctx, time.Now())
		}
	}
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// runTick performs one reconciliation pass.
func (r *Reconciler) runTick(ctx context.Context, now time.Time) {
	defer r.purgeExpired(ctx, now)

	active, err := r.store.ListActivePending(ctx, now)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list pending payments")
		return
	}
	if len(active) == 0 {
		// Nothing to match; skip the explorer round-trip entirely.
		return
	}

	transfers, err := r.scanner.RecentTransfers(ctx)
	if err != nil {
		reason := "unavailable"
		if errors.Is(err, tronscan.ErrMalformed) {
			reason = "malformed"
			r.logger.WithError(err).Error("Explorer returned malformed response")
		} else {
			r.logger.WithError(err).Warn("Explorer query failed; will retry next tick")
		}
		if r.metrics != nil {
			r.metrics.ScanFailures.WithLabelValues(reason).Inc()
		}
		return
	}

	for _, transfer := range transfers {
		active = r.applyTransfer(ctx, transfer, active, now)
	}
}

// applyTransfer matches one transfer against the outstanding requests and
// credits the winner. Returns the remaining outstanding set so an already
// credited request cannot match a second transfer within the same tick.
func (r *Reconciler) applyTransfer(ctx context.Context, transfer models.Transfer, active []models.PendingPayment, now time.Time) []models.PendingPayment {
	var matches []models.PendingPayment
	for _, p := range active {
		if transfer.Amount.Sub(p.FingerprintAmount).Abs().LessThan(r.cfg.Epsilon) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return active
	}
	if len(matches) > 1 {
		// Two outstanding requests share a fingerprint. The allocator is
		// supposed to make this impossible; resolve deterministically and
		// surface it.
		r.logger.WithFields(logging.Fields{
			"transfer_id": transfer.ID,
			"amount":      transfer.Amount.String(),
			"candidates":  len(matches),
		}).Warn("Transfer amount matches multiple pending payments; crediting the oldest")
		if r.metrics != nil {
			r.metrics.AmbiguousMatches.WithLabelValues().Inc()
		}
	}
	matched := matches[0]

	newExpiry, credited, err := r.store.Credit(ctx, transfer.ID, matched.UserID, transfer.Amount, r.cfg.Period, now)
	if err != nil {
		// The processed-transfers insert did not commit, so the transfer is
		// still unclaimed and the next tick retries safely.
		r.logger.WithError(err).WithFields(logging.Fields{
			"transfer_id": transfer.ID,
			"user_id":     matched.UserID,
		}).Error("Failed to credit payment")
		return active
	}
	if !credited {
		r.logger.WithField("transfer_id", transfer.ID).Debug("Transfer already processed; skipping")
		if r.metrics != nil {
			r.metrics.DuplicateTransfers.WithLabelValues().Inc()
		}
		return active
	}

	r.logger.WithFields(logging.Fields{
		"transfer_id": transfer.ID,
		"user_id":     matched.UserID,
		"amount":      transfer.Amount.String(),
		"new_expiry":  newExpiry,
	}).Info("Payment matched and subscription extended")
	if r.metrics != nil {
		r.metrics.Matched.WithLabelValues().Inc()
	}

	go r.notifier.PaymentConfirmed(matched.UserID, newExpiry)

	return remove(active, matched.UserID)
}

// purgeExpired deletes requests whose window closed without a match.
func (r *Reconciler) purgeExpired(ctx context.Context, now time.Time) {
	users, err := r.store.DeleteExpiredPending(ctx, now)
	if err != nil {
		r.logger.WithError(err).Error("Failed to purge expired pending payments")
		return
	}
	for _, userID := range users {
		r.logger.WithField("user_id", userID).Info("Pending payment expired unmatched")
		if r.metrics != nil {
			r.metrics.ExpiredRequests.WithLabelValues().Inc()
		}
		go r.notifier.RequestExpired(userID)
	}
}

func remove(pending []models.PendingPayment, userID int64) []models.PendingPayment {
	out := pending[:0]
	for _, p := range pending {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	return out
}
