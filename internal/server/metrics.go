package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry          *prometheus.Registry
	createsTotal      *prometheus.CounterVec
	commitsTotal      *prometheus.CounterVec
	fulfillmentsTotal *prometheus.CounterVec
	priceCacheAge     prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	creates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upirails_requests_created_total",
		Help: "Total number of payment request creations",
	}, []string{"status"})

	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upirails_commitments_total",
		Help: "Total number of commitment attempts",
	}, []string{"status"})

	fulfillments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upirails_fulfillments_total",
		Help: "Total number of fulfillment attempts",
	}, []string{"status"})

	cacheAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "upirails_price_cache_age_seconds",
		Help: "Age of the cached oracle rates for the active chain",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(creates, commits, fulfillments, cacheAge)

	return &metricsRegistry{
		registry:          r,
		createsTotal:      creates,
		commitsTotal:      commits,
		fulfillmentsTotal: fulfillments,
		priceCacheAge:     cacheAge,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incCreate(status string) {
	m.createsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incCommit(status string) {
	m.commitsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incFulfill(status string) {
	m.fulfillmentsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) setPriceCacheAge(seconds float64) {
	m.priceCacheAge.Set(seconds)
}
