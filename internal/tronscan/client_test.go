package tronscan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const merchantAddr = "TMerchantAddr111111111111111111111"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig(merchantAddr)
	cfg.BaseURL = server.URL
	cfg.Timeout = 2 * time.Second
	return NewClient(cfg, logrus.New())
}

func TestRecentTransfersParsesAndFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("relatedAddress"); got != merchantAddr {
			t.Errorf("expected relatedAddress %q, got %q", merchantAddr, got)
		}
		if got := r.URL.Query().Get("direction"); got != "in" {
			t.Errorf("expected direction=in, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_transfers": [
			{"transaction_id": "tx-usdt", "from_address": "TSender", "to_address": "` + merchantAddr + `",
			 "quant": "100001000", "tokenInfo": {"symbol": "USDT", "decimals": 6}},
			{"transaction_id": "tx-other-token", "from_address": "TSender", "to_address": "` + merchantAddr + `",
			 "quant": "100001000", "tokenInfo": {"symbol": "TRX", "decimals": 6}},
			{"transaction_id": "tx-other-addr", "from_address": "TSender", "to_address": "TSomeoneElse",
			 "quant": "100001000", "tokenInfo": {"symbol": "USDT", "decimals": 6}},
			{"transaction_id": "tx-bad-quant", "from_address": "TSender", "to_address": "` + merchantAddr + `",
			 "quant": "not-a-number", "tokenInfo": {"symbol": "USDT", "decimals": 6}}
		]}`))
	})

	transfers, err := client.RecentTransfers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer after filtering, got %d", len(transfers))
	}
	if transfers[0].ID != "tx-usdt" {
		t.Fatalf("unexpected transfer id %q", transfers[0].ID)
	}
	// 100001000 base units at 6 decimals = 100.001
	if !transfers[0].Amount.Equal(decimal.RequireFromString("100.001")) {
		t.Fatalf("expected amount 100.001, got %s", transfers[0].Amount)
	}
}

func TestRecentTransfersServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.RecentTransfers(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRecentTransfersMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_transfers": "nope"`))
	})

	_, err := client.RecentTransfers(context.Background())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRecentTransfersTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"token_transfers": []}`))
	})
	client.http.SetTimeout(50 * time.Millisecond)

	_, err := client.RecentTransfers(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
	}
}

func TestRecentTransfersEmptyPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_transfers": []}`))
	})

	transfers, err := client.RecentTransfers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transfers) != 0 {
		t.Fatalf("expected no transfers, got %d", len(transfers))
	}
}
