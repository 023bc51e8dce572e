package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRatesServedFromCacheWithinTTL(t *testing.T) {
	var calls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]float64{
			NativeTokenAddress: 250000,
			"0xDAI0000000000000000000000000000000000000": 84.5,
		})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, CacheTTL: time.Minute})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	ctx := context.Background()
	first := client.Rates(ctx, 8453)
	if got := first.Rate(NativeTokenAddress); got != 250000 {
		t.Fatalf("native rate: got %v", got)
	}
	// Addresses compare case-insensitively.
	if got := first.Rate("0xdai0000000000000000000000000000000000000"); got != 84.5 {
		t.Fatalf("stable rate: got %v", got)
	}

	now = now.Add(30 * time.Second)
	client.Rates(ctx, 8453)
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected single fetch within TTL, got %d", calls)
	}

	now = now.Add(45 * time.Second)
	client.Rates(ctx, 8453)
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("expected refetch after TTL, got %d", calls)
	}
}

func TestRatesStaleCacheOnFailure(t *testing.T) {
	var fail atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{NativeTokenAddress: 200000})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, CacheTTL: time.Second})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	ctx := context.Background()
	client.Rates(ctx, 8453)

	fail.Store(true)
	now = now.Add(time.Minute)

	stale := client.Rates(ctx, 8453)
	if got := stale.Rate(NativeTokenAddress); got != 200000 {
		t.Fatalf("expected stale rate 200000, got %v", got)
	}

	age, ok := client.CacheAge(8453)
	if !ok || age != time.Minute {
		t.Fatalf("expected cache age 1m, got %v ok=%v", age, ok)
	}
}

func TestRatesEmptyWhenNoCacheAndFetchFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL})
	rates := client.Rates(context.Background(), 8453)
	if len(rates) != 0 {
		t.Fatalf("expected empty rates, got %v", rates)
	}
	if _, ok := client.CacheAge(8453); ok {
		t.Fatalf("expected no cache entry")
	}
}

func TestNativeRateFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]float64{})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, FallbackNative: 200000})
	if got := client.NativeRate(context.Background(), 8453); got != 200000 {
		t.Fatalf("expected fallback 200000, got %v", got)
	}
}

func TestStableRate(t *testing.T) {
	stable := "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price/v1.1/8453/"+stable {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{stable: 84.2})
	}))
	defer ts.Close()

	client := New(Config{
		BaseURL:        ts.URL,
		StableToken:    stable,
		StableChainID:  8453,
		FallbackStable: 83,
	})
	if got := client.StableRate(context.Background()); got != 84.2 {
		t.Fatalf("expected 84.2, got %v", got)
	}
}

func TestStableRateFallsBack(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, StableToken: "0xdai", StableChainID: 8453, FallbackStable: 83})
	if got := client.StableRate(context.Background()); got != 83 {
		t.Fatalf("expected fallback 83, got %v", got)
	}
}

func TestGasPrice(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gas-price/v1.6/8453" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{
			"low": {"maxFeePerGas": "1000000000"},
			"medium": {"maxFeePerGas": "2000000000"},
			"instant": {"maxFeePerGas": "3500000000"}
		}`))
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL})
	tiers, err := client.GasPrice(context.Background(), 8453)
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if tiers.Standard != 1 || tiers.Fast != 2 || tiers.Instant != 3.5 {
		t.Fatalf("unexpected tiers %+v", tiers)
	}
}

func TestBalances(t *testing.T) {
	wallet := "0xWallet"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/balance/v1.2/8453/balances/"+wallet:
			_ = json.NewEncoder(w).Encode(map[string]string{
				NativeTokenAddress: "2000000000000000000",
				"0xdai0000000000000000000000000000000000000": "5000000000000000000",
				"0xdust000000000000000000000000000000000000": "0",
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]float64{
				NativeTokenAddress: 200000,
				"0xdai0000000000000000000000000000000000000": 83,
			})
		}
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL})
	balances, err := client.Balances(context.Background(), 8453, wallet)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected zero balances dropped, got %d entries", len(balances))
	}
	// Sorted by fiat value: 2 ETH at 200000 outranks 5 DAI at 83.
	if balances[0].Symbol != "ETH" || balances[0].ValueFiat != 400000 {
		t.Fatalf("unexpected top balance %+v", balances[0])
	}
	if balances[1].Amount != 5 || balances[1].ValueFiat != 415 {
		t.Fatalf("unexpected second balance %+v", balances[1])
	}
}
