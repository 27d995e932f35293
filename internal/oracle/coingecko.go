// Package oracle maps trading-pair symbols to current prices via the
// CoinGecko simple-price API, with short-lived caching to bound upstream
// call volume.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// pairInstrumentIDs is the fixed pair -> CoinGecko instrument-id table.
// Pairs outside it (and all non-crypto categories) have no price here.
var pairInstrumentIDs = map[string]string{
	"BTC/USDT":   "bitcoin",
	"ETH/USDT":   "ethereum",
	"SOL/USDT":   "solana",
	"XRP/USDT":   "ripple",
	"BNB/USDT":   "binancecoin",
	"ADA/USDT":   "cardano",
	"DOGE/USDT":  "dogecoin",
	"DOT/USDT":   "polkadot",
	"MATIC/USDT": "matic-network",
	"TRX/USDT":   "tron",
	"AVAX/USDT":  "avalanche-2",
	"LINK/USDT":  "chainlink",
	"SHIB/USDT":  "shiba-inu",
	"LTC/USDT":   "litecoin",
	"BCH/USDT":   "bitcoin-cash",
	"UNI/USDT":   "uniswap",
	"NEAR/USDT":  "near",
	"APT/USDT":   "aptos",
	"ARB/USDT":   "arbitrum",
	"OP/USDT":    "optimism",
}

// Cache is the TTL store backing price lookups. Production wires the Redis
// store; tests use an in-memory map.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Client struct {
	HTTP    *http.Client
	Logger  *zap.Logger
	BaseURL string
	Cache   Cache
	TTL     time.Duration
}

func (c *Client) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return 60 * time.Second
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// GetPrice returns the current price for a pair, or ok=false when the pair
// has no instrument mapping or the upstream lookup failed.
func (c *Client) GetPrice(ctx context.Context, pair string) (decimal.Decimal, bool) {
	prices := c.GetManyPrices(ctx, []string{pair})
	price, ok := prices[strings.ToUpper(strings.TrimSpace(pair))]
	if !ok {
		// The map is keyed by the caller's spelling too.
		price, ok = prices[pair]
	}
	return price, ok
}

// GetManyPrices resolves a batch of pairs. Cached instruments are served
// locally; only the uncached remainder goes upstream, in one request. Pairs
// that cannot be resolved are absent from the result, never an error.
func (c *Client) GetManyPrices(ctx context.Context, pairs []string) map[string]decimal.Decimal {
	ids := make([]string, 0, len(pairs))
	seen := map[string]struct{}{}
	for _, pair := range pairs {
		id, ok := pairInstrumentIDs[strings.ToUpper(strings.TrimSpace(pair))]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	byID := map[string]decimal.Decimal{}
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if price, ok := c.cachedPrice(ctx, id); ok {
			byID[id] = price
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := c.fetchPrices(ctx, missing)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Warn("price fetch failed", zap.Error(err))
			}
		} else {
			for id, price := range fetched {
				byID[id] = price
				c.storePrice(ctx, id, price)
			}
		}
	}

	out := map[string]decimal.Decimal{}
	for _, pair := range pairs {
		key := strings.ToUpper(strings.TrimSpace(pair))
		id, ok := pairInstrumentIDs[key]
		if !ok {
			continue
		}
		if price, ok := byID[id]; ok {
			out[pair] = price
		}
	}
	return out
}

func (c *Client) cachedPrice(ctx context.Context, id string) (decimal.Decimal, bool) {
	if c.Cache == nil {
		return decimal.Decimal{}, false
	}
	raw, ok, err := c.Cache.Get(ctx, cacheKey(id))
	if err != nil || !ok {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}

func (c *Client) storePrice(ctx context.Context, id string, price decimal.Decimal) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Set(ctx, cacheKey(id), []byte(price.String()), c.ttl()); err != nil && c.Logger != nil {
		c.Logger.Warn("price cache write failed", zap.String("id", id), zap.Error(err))
	}
}

func (c *Client) fetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "https://api.coingecko.com/api/v3"
	}
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		base, url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	out := map[string]decimal.Decimal{}
	for id, quotes := range payload {
		if price, ok := quotes["usd"]; ok && price.IsPositive() {
			out[id] = price
		}
	}
	return out, nil
}

func cacheKey(id string) string {
	return "price:" + id
}
