// Package tronscan queries the TronScan explorer for inbound TRC-20
// transfers to the merchant address. It is a read-only view of the chain:
// deduplication against already-credited transfers is the reconciler's job.
package tronscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/MyBlackCandy/TG-Bot/internal/logging"
	"github.com/MyBlackCandy/TG-Bot/internal/models"
)

const transfersPath = "/api/token_trc20/transfers"

// ErrUnavailable marks transient failures: the explorer was unreachable,
// timed out or answered with a non-200 status. Retried on the next tick.
var ErrUnavailable = errors.New("tronscan unavailable")

// ErrMalformed marks an answer that came back 200 but could not be decoded.
var ErrMalformed = errors.New("tronscan response malformed")

// Config holds explorer client configuration.
type Config struct {
	BaseURL     string
	Address     string
	TokenSymbol string
	PageSize    int
	Timeout     time.Duration
}

// DefaultConfig returns the public TronScan endpoint with the page size and
// timeout the reconciler expects.
func DefaultConfig(address string) Config {
	return Config{
		BaseURL:     "https://apilist.tronscan.org",
		Address:     address,
		TokenSymbol: "USDT",
		PageSize:    20,
		Timeout:     10 * time.Second,
	}
}

// Client fetches recent transfers from TronScan.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger logging.Logger
}

// NewClient creates an explorer client.
func NewClient(cfg Config, logger logging.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)
	return &Client{http: httpClient, cfg: cfg, logger: logger}
}

type transfersResponse struct {
	TokenTransfers []struct {
		TransactionID string `json:"transaction_id"`
		FromAddress   string `json:"from_address"`
		ToAddress     string `json:"to_address"`
		Quant         string `json:"quant"`
		TokenInfo     struct {
			Symbol   string `json:"symbol"`
			Decimals int    `json:"decimals"`
		} `json:"tokenInfo"`
	} `json:"token_transfers"`
}

// RecentTransfers returns the newest inbound transfers to the merchant
// address, filtered to the expected token. Transfers in other tokens or to
// other addresses are dropped; a transfer with an unparseable amount is
// logged and skipped rather than failing the whole page.
func (c *Client) RecentTransfers(ctx context.Context) ([]models.Transfer, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":          strconv.Itoa(c.cfg.PageSize),
			"start":          "0",
			"direction":      "in",
			"relatedAddress": c.cfg.Address,
		}).
		Get(transfersPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	var payload transfersResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	transfers := make([]models.Transfer, 0, len(payload.TokenTransfers))
	for _, raw := range payload.TokenTransfers {
		if raw.TokenInfo.Symbol != c.cfg.TokenSymbol {
			continue
		}
		if raw.ToAddress != c.cfg.Address {
			continue
		}

		// quant is an integer string in the token's smallest unit.
		quant, err := decimal.NewFromString(raw.Quant)
		if err != nil {
			c.logger.WithFields(logging.Fields{
				"transfer_id": raw.TransactionID,
				"quant":       raw.Quant,
			}).Warn("Skipping transfer with unparseable amount")
			continue
		}
		amount := quant.Shift(int32(-raw.TokenInfo.Decimals))

		transfers = append(transfers, models.Transfer{
			ID:          raw.TransactionID,
			ToAddress:   raw.ToAddress,
			FromAddress: raw.FromAddress,
			Amount:      amount,
			TokenSymbol: raw.TokenInfo.Symbol,
		})
	}
	return transfers, nil
}
