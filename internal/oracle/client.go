package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"upirails/internal/escrow"
)

// NativeTokenAddress is the pseudo-address the price proxy uses for the
// chain's native currency.
const NativeTokenAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// Rates maps lowercase token addresses to fiat-per-token quotes.
type Rates map[string]float64

// Rate returns the quote for a token, zero when absent. Addresses compare
// case-insensitively.
func (r Rates) Rate(token string) float64 {
	return r[strings.ToLower(token)]
}

type Config struct {
	BaseURL        string
	Currency       string        // fiat currency code, e.g. INR
	CacheTTL       time.Duration // zero means 60s
	StableToken    string        // address used by the dedicated stable-rate endpoint
	StableChainID  int64         // chain the stable-rate endpoint is queried on
	FallbackNative float64       // substituted when the native rate is absent or non-positive
	FallbackStable float64       // substituted when the stable rate is absent or non-positive
}

// Client fetches token→fiat rates, gas tiers and balances from the price
// proxy, with a per-chain rate cache and graceful degradation: a fetch
// failure yields the stale cached value, never an error.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[int64]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	rates     Rates
	fetchedAt time.Time
}

func New(cfg Config) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[int64]cacheEntry),
		now:        time.Now,
	}
}

// Rates returns the batched quotes for a chain. Within the TTL the cached map
// is served without a network call. On fetch failure the last cached value is
// returned regardless of staleness; with no cache at all the map is empty and
// callers apply their own fallback constants.
func (c *Client) Rates(ctx context.Context, chainID int64) Rates {
	c.mu.RLock()
	entry, ok := c.cache[chainID]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.cfg.CacheTTL {
		return entry.rates
	}

	fresh, err := c.fetchRates(ctx, chainID)
	if err != nil {
		log.Printf("oracle: rate fetch for chain %d failed: %v", chainID, err)
		if ok {
			return entry.rates
		}
		return Rates{}
	}

	c.mu.Lock()
	c.cache[chainID] = cacheEntry{rates: fresh, fetchedAt: c.now()}
	c.mu.Unlock()
	return fresh
}

func (c *Client) fetchRates(ctx context.Context, chainID int64) (Rates, error) {
	endpoint := fmt.Sprintf("%s/price/v1.1/%d?currency=%s", c.baseURL(), chainID, c.cfg.Currency)
	var raw map[string]float64
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	rates := make(Rates, len(raw))
	for addr, rate := range raw {
		rates[strings.ToLower(addr)] = rate
	}
	return rates, nil
}

// NativeRate returns the fiat quote for the chain's native currency, falling
// back to the configured constant when the batched rate is absent or
// non-positive. A zero rate means unavailable, not free.
func (c *Client) NativeRate(ctx context.Context, chainID int64) float64 {
	rate := c.Rates(ctx, chainID).Rate(NativeTokenAddress)
	if rate > 0 {
		return rate
	}
	return c.cfg.FallbackNative
}

// StableRate quotes the deposit stable token through the dedicated
// single-token endpoint, which is more reliable for that asset than the
// batched one. Any failure resolves to the fallback constant.
func (c *Client) StableRate(ctx context.Context) float64 {
	endpoint := fmt.Sprintf("%s/price/v1.1/%d/%s", c.baseURL(), c.cfg.StableChainID, c.cfg.StableToken)
	var raw map[string]float64
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		log.Printf("oracle: stable rate fetch failed: %v", err)
		return c.cfg.FallbackStable
	}
	for addr, rate := range raw {
		if strings.EqualFold(addr, c.cfg.StableToken) && rate > 0 {
			return rate
		}
	}
	return c.cfg.FallbackStable
}

// ClearCache drops all cached rates.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[int64]cacheEntry)
	c.mu.Unlock()
}

// CacheAge reports how old the cached rates for a chain are, and false when
// nothing is cached.
func (c *Client) CacheAge(chainID int64) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[chainID]
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.fetchedAt), true
}

// GasTiers holds tiered max-fee estimates in gwei.
type GasTiers struct {
	Standard float64 `json:"standard"`
	Fast     float64 `json:"fast"`
	Instant  float64 `json:"instant"`
}

func (c *Client) GasPrice(ctx context.Context, chainID int64) (GasTiers, error) {
	endpoint := fmt.Sprintf("%s/gas-price/v1.6/%d", c.baseURL(), chainID)
	var raw struct {
		Low     gasTier `json:"low"`
		Medium  gasTier `json:"medium"`
		Instant gasTier `json:"instant"`
	}
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return GasTiers{}, fmt.Errorf("fetch gas price: %w", err)
	}
	return GasTiers{
		Standard: weiToGwei(raw.Low.MaxFeePerGas),
		Fast:     weiToGwei(raw.Medium.MaxFeePerGas),
		Instant:  weiToGwei(raw.Instant.MaxFeePerGas),
	}, nil
}

// The proxy serialises wei amounts as decimal strings.
type gasTier struct {
	MaxFeePerGas string `json:"maxFeePerGas"`
}

func weiToGwei(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f / 1e9
}

// TokenBalance is a wallet holding with its fiat valuation attached when a
// rate is known.
type TokenBalance struct {
	TokenAddress string  `json:"tokenAddress"`
	Symbol       string  `json:"symbol"`
	Decimals     int     `json:"decimals"`
	Raw          string  `json:"raw"`
	Amount       float64 `json:"amount"`
	Rate         float64 `json:"rate,omitempty"`
	ValueFiat    float64 `json:"valueFiat,omitempty"`
}

// Balances lists non-zero token holdings for a wallet, valued in fiat and
// sorted by descending value, then descending amount.
func (c *Client) Balances(ctx context.Context, chainID int64, wallet string) ([]TokenBalance, error) {
	endpoint := fmt.Sprintf("%s/balance/v1.2/%d/balances/%s", c.baseURL(), chainID, wallet)
	var raw map[string]string
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}

	rates := c.Rates(ctx, chainID)

	out := make([]TokenBalance, 0, len(raw))
	for addr, balance := range raw {
		decimals := escrow.LedgerDecimals
		amount := parseRawBalance(balance, decimals)
		if amount <= 0 {
			continue
		}
		symbol := "UNKNOWN"
		if strings.EqualFold(addr, NativeTokenAddress) {
			symbol = "ETH"
		}
		b := TokenBalance{
			TokenAddress: strings.ToLower(addr),
			Symbol:       symbol,
			Decimals:     decimals,
			Raw:          balance,
			Amount:       amount,
		}
		if rate := rates.Rate(addr); rate > 0 {
			b.Rate = rate
			b.ValueFiat = amount * rate
		}
		out = append(out, b)
	}

	sortBalances(out)
	return out, nil
}

func (c *Client) baseURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/")
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("oracle http status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("oracle http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
