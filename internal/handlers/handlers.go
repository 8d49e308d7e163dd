package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MyBlackCandy/TG-Bot/internal/api"
	"github.com/MyBlackCandy/TG-Bot/internal/fingerprint"
	"github.com/MyBlackCandy/TG-Bot/internal/logging"
	"github.com/MyBlackCandy/TG-Bot/internal/middleware"
	"github.com/MyBlackCandy/TG-Bot/internal/store"
)

var (
	payments *store.Store
	pool     *fingerprint.Pool
	logger   logging.Logger
	metrics  *TollgateMetrics
	cfg      Config
)

// TollgateMetrics holds the Prometheus metrics exposed by the HTTP handlers
type TollgateMetrics struct {
	PaymentRequests *prometheus.CounterVec
	StatusQueries   *prometheus.CounterVec
	DBQueries       *prometheus.CounterVec
	DBDuration      *prometheus.HistogramVec
	DBConnections   *prometheus.GaugeVec
}

// Config carries the payment parameters the handlers hand out to users
type Config struct {
	WalletAddress string
	TokenSymbol   string
	PendingTTL    time.Duration
}

// Init initializes the handlers with their store, allocator, logger and config
func Init(st *store.Store, fpPool *fingerprint.Pool, log logging.Logger, m *TollgateMetrics, c Config) {
	payments = st
	pool = fpPool
	logger = log
	metrics = m
	cfg = c
}

func countRequest(outcome string) {
	if metrics != nil {
		metrics.PaymentRequests.WithLabelValues(outcome).Inc()
	}
}

// RequestPayment allocates a fingerprinted amount for a user and returns the
// transfer instructions. Calling it again while a request is still pending
// returns the same amount with a refreshed deadline, so a user re-asking for
// the address never burns a second slot.
func RequestPayment(c middleware.Context) {
	var req api.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "user_id must be positive"})
		return
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	expiresAt := now.Add(cfg.PendingTTL)
	reqLog := middleware.GetContextLogger(c, logger).WithField("user_id", req.UserID)

	existing, err := payments.GetActivePending(ctx, req.UserID, now)
	if err != nil {
		reqLog.WithError(err).Error("Failed to look up pending payment")
		countRequest("error")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create payment request"})
		return
	}
	if existing != nil {
		if err := payments.RefreshPendingExpiry(ctx, req.UserID, expiresAt); err != nil {
			reqLog.WithError(err).Error("Failed to refresh pending payment")
			countRequest("error")
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create payment request"})
			return
		}
		countRequest("reused")
		c.JSON(http.StatusOK, api.PaymentInstructions{
			UserID:    req.UserID,
			Amount:    existing.FingerprintAmount,
			Token:     cfg.TokenSymbol,
			Address:   cfg.WalletAddress,
			ExpiresAt: expiresAt,
		})
		return
	}

	inUse, err := payments.ActiveFingerprints(ctx, now)
	if err != nil {
		reqLog.WithError(err).Error("Failed to load active fingerprints")
		countRequest("error")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create payment request"})
		return
	}

	amount, err := pool.Next(inUse)
	if err != nil {
		reqLog.WithField("in_use", len(inUse)).Warn("Fingerprint pool exhausted")
		countRequest("exhausted")
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "No payment slots available, try again later"})
		return
	}

	if err := payments.UpsertPending(ctx, req.UserID, amount, now, expiresAt); err != nil {
		reqLog.WithError(err).Error("Failed to store pending payment")
		countRequest("error")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to create payment request"})
		return
	}

	reqLog.WithField("amount", amount.String()).Info("Created payment request")
	countRequest("created")

	c.JSON(http.StatusCreated, api.PaymentInstructions{
		UserID:    req.UserID,
		Amount:    amount,
		Token:     cfg.TokenSymbol,
		Address:   cfg.WalletAddress,
		ExpiresAt: expiresAt,
	})
}

// SubscriptionStatus reports whether a user currently has access and until when
func SubscriptionStatus(c middleware.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid user_id"})
		return
	}

	sub, err := payments.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		logger.WithFields(logging.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to query subscription")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to query subscription"})
		return
	}

	if metrics != nil {
		metrics.StatusQueries.WithLabelValues("subscription").Inc()
	}

	resp := api.SubscriptionStatusResponse{UserID: userID}
	now := time.Now().UTC()
	if sub != nil {
		resp.Active = sub.Active(now)
		resp.ExpiresAt = &sub.ExpiresAt
	}
	c.JSON(http.StatusOK, resp)
}

// ListPendingPayments returns every payment request still waiting for a
// transfer. Operator endpoint, sits behind service auth.
func ListPendingPayments(c middleware.Context) {
	pending, err := payments.ListActivePending(c.Request.Context(), time.Now().UTC())
	if err != nil {
		logger.WithFields(logging.Fields{
			"error": err,
		}).Error("Failed to list pending payments")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to list pending payments"})
		return
	}

	if metrics != nil {
		metrics.StatusQueries.WithLabelValues("pending_list").Inc()
	}

	c.JSON(http.StatusOK, api.PendingPaymentsResponse{
		Pending: pending,
		Count:   len(pending),
	})
}
