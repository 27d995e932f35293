package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalmarket/internal/cache"
)

// priceServer serves /simple/price for a fixed id -> usd table and counts
// upstream hits.
func priceServer(t *testing.T, prices map[string]string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/simple/price") {
			http.NotFound(w, r)
			return
		}
		ids, err := url.QueryUnescape(r.URL.Query().Get("ids"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload := map[string]map[string]json.Number{}
		for _, id := range strings.Split(ids, ",") {
			if usd, ok := prices[id]; ok {
				payload[id] = map[string]json.Number{"usd": json.Number(usd)}
			}
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		HTTP:    srv.Client(),
		BaseURL: srv.URL,
		Cache:   cache.NewMemoryStore(),
		TTL:     time.Minute,
	}
}

func TestGetPriceServesFromCacheWithinTTL(t *testing.T) {
	var hits atomic.Int64
	srv := priceServer(t, map[string]string{"bitcoin": "43210.55"}, &hits)
	defer srv.Close()

	client := newTestClient(srv)
	ctx := context.Background()

	price, ok := client.GetPrice(ctx, "BTC/USDT")
	if !ok {
		t.Fatalf("expected a price")
	}
	want, _ := decimal.NewFromString("43210.55")
	if !price.Equal(want) {
		t.Fatalf("price = %s, want %s", price, want)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want 1", hits.Load())
	}

	// Second lookup inside the TTL must not go upstream.
	if _, ok := client.GetPrice(ctx, "btc/usdt"); !ok {
		t.Fatalf("cached lookup failed")
	}
	if hits.Load() != 1 {
		t.Fatalf("cached lookup went upstream, hits = %d", hits.Load())
	}
}

func TestGetManyPricesFetchesOnlyMissing(t *testing.T) {
	var hits atomic.Int64
	srv := priceServer(t, map[string]string{
		"bitcoin":  "43000",
		"ethereum": "2300",
		"solana":   "150",
	}, &hits)
	defer srv.Close()

	client := newTestClient(srv)
	ctx := context.Background()

	if _, ok := client.GetPrice(ctx, "BTC/USDT"); !ok {
		t.Fatalf("warm-up fetch failed")
	}

	prices := client.GetManyPrices(ctx, []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"})
	if len(prices) != 3 {
		t.Fatalf("resolved %d pairs, want 3", len(prices))
	}
	// One warm-up request plus one batch for the two uncached ids.
	if hits.Load() != 2 {
		t.Fatalf("upstream hits = %d, want 2", hits.Load())
	}
}

func TestUnknownPairAbsentFromResult(t *testing.T) {
	var hits atomic.Int64
	srv := priceServer(t, map[string]string{"bitcoin": "43000"}, &hits)
	defer srv.Close()

	client := newTestClient(srv)
	prices := client.GetManyPrices(context.Background(), []string{"BTC/USDT", "EUR/USD", "XAU/USD"})
	if len(prices) != 1 {
		t.Fatalf("resolved %d pairs, want 1", len(prices))
	}
	if _, ok := prices["EUR/USD"]; ok {
		t.Fatalf("unmapped pair must be absent, not zero")
	}
	if _, ok := client.GetPrice(context.Background(), "EUR/USD"); ok {
		t.Fatalf("unmapped pair must report !ok")
	}
}

func TestUpstreamFailureYieldsNoPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv)
	prices := client.GetManyPrices(context.Background(), []string{"BTC/USDT"})
	if len(prices) != 0 {
		t.Fatalf("failed fetch must resolve nothing, got %v", prices)
	}
	if _, ok := client.GetPrice(context.Background(), "BTC/USDT"); ok {
		t.Fatalf("failed fetch must report !ok")
	}
}

func TestDuplicatePairsSingleUpstreamCall(t *testing.T) {
	var hits atomic.Int64
	srv := priceServer(t, map[string]string{"bitcoin": "43000"}, &hits)
	defer srv.Close()

	client := newTestClient(srv)
	prices := client.GetManyPrices(context.Background(), []string{"BTC/USDT", "btc/usdt", " BTC/USDT "})
	if hits.Load() != 1 {
		t.Fatalf("duplicate pairs must collapse to one request, hits = %d", hits.Load())
	}
	if len(prices) != 3 {
		t.Fatalf("each caller spelling gets its price back, got %d", len(prices))
	}
}
