// Package notify delivers user-facing payment messages. Delivery is
// fire-and-forget: a failed send is logged and never propagates into the
// reconciliation tick.
package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MyBlackCandy/TG-Bot/internal/logging"
)

// Notifier informs a user about payment events.
type Notifier interface {
	PaymentConfirmed(userID int64, newExpiry time.Time)
	RequestExpired(userID int64)
}

// Telegram sends notifications through the Telegram Bot API.
type Telegram struct {
	http   *resty.Client
	logger logging.Logger
}

// NewTelegram creates a notifier for the given bot token.
func NewTelegram(botToken string, logger logging.Logger) *Telegram {
	return newTelegram("https://api.telegram.org/bot"+botToken, logger)
}

func newTelegram(baseURL string, logger logging.Logger) *Telegram {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second)
	return &Telegram{http: httpClient, logger: logger}
}

// PaymentConfirmed tells the user their transfer was matched.
func (t *Telegram) PaymentConfirmed(userID int64, newExpiry time.Time) {
	text := fmt.Sprintf("✅ Payment received!\n📅 Access valid until: %s", newExpiry.Format("2006-01-02 15:04"))
	t.send(userID, text)
}

// RequestExpired tells the user their payment window closed unused.
func (t *Telegram) RequestExpired(userID int64) {
	t.send(userID, "⌛ Your payment request expired. Send /start to get a new payment address.")
}

func (t *Telegram) send(userID int64, text string) {
	resp, err := t.http.R().
		SetBody(map[string]interface{}{
			"chat_id": userID,
			"text":    text,
		}).
		Post("/sendMessage")
	if err != nil {
		t.logger.WithError(err).WithField("user_id", userID).Warn("Failed to send Telegram notification")
		return
	}
	if resp.StatusCode() != 200 {
		t.logger.WithFields(logging.Fields{
			"user_id": userID,
			"status":  resp.StatusCode(),
		}).Warn("Telegram notification rejected")
	}
}

// Noop discards notifications. Used when no bot token is configured.
type Noop struct{}

func (Noop) PaymentConfirmed(int64, time.Time) {}
func (Noop) RequestExpired(int64)              {}
