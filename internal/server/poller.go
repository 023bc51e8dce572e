package server

import (
	"context"
	"log"
	"time"

	"upirails/internal/oracle"
)

// RateRefresher keeps the price cache warm so request valuations never block
// on a cold oracle call.
type RateRefresher struct {
	prices   *oracle.Client
	chainID  int64
	interval time.Duration
	metrics  *metricsRegistry
}

// NewRateRefresher builds a refresher that reports cache age through the
// server's metrics registry.
func (s *Server) NewRateRefresher(interval time.Duration) *RateRefresher {
	return &RateRefresher{
		prices:   s.prices,
		chainID:  s.cfg.Oracle.PriceChainID,
		interval: interval,
		metrics:  s.metrics,
	}
}

// Run refreshes rates on a fixed interval until the context is cancelled.
// It performs one refresh immediately so the first request after startup is
// served from cache.
func (rr *RateRefresher) Run(ctx context.Context) {
	rr.refresh(ctx)

	ticker := time.NewTicker(rr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rr.refresh(ctx)
		}
	}
}

func (rr *RateRefresher) refresh(ctx context.Context) {
	rates := rr.prices.Rates(ctx, rr.chainID)
	if len(rates) == 0 {
		log.Printf("rate refresh: no prices for chain %d", rr.chainID)
	}
	if rr.metrics != nil {
		if age, ok := rr.prices.CacheAge(rr.chainID); ok {
			rr.metrics.setPriceCacheAge(age.Seconds())
		}
	}
}
