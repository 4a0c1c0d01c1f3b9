package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	purchaseTotal       *prometheus.CounterVec
	purchaseDuration    *prometheus.HistogramVec
	purchasedUnits      *prometheus.CounterVec
	allocationConflicts prometheus.Counter
	txRetries           *prometheus.CounterVec
	promoRedemptions    prometheus.Counter
	topupDecisions      *prometheus.CounterVec
	stockIngested       prometheus.Counter
	auditDropped        *prometheus.CounterVec

	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on reg
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		purchaseTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_total",
			Help:      "Purchase attempts by outcome",
		}, []string{"outcome"}),
		purchaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purchase_duration_seconds",
			Help:      "Time spent in the purchase transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		purchasedUnits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchased_units_total",
			Help:      "Credential units sold, by product kind",
		}, []string{"kind"}),
		allocationConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_allocation_conflicts_total",
			Help:      "Stock claims lost to a concurrent transaction",
		}),
		txRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_retries_total",
			Help:      "Transactions re-run after a retryable failure",
		}, []string{"operation"}),
		promoRedemptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_redemptions_total",
			Help:      "Committed promo code redemptions",
		}),
		topupDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topup_decisions_total",
			Help:      "Admin decisions on top-up requests",
		}, []string{"decision"}),
		stockIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_ingested_total",
			Help:      "Stock records added through ingestion",
		}),
		auditDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events a sink failed to record",
		}, []string{"sink"}),
		httpRequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ObservePurchase records one finished purchase attempt
func (m *Metrics) ObservePurchase(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.purchaseTotal.WithLabelValues(outcome).Inc()
	m.purchaseDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) AddPurchasedUnits(kind string, n int) {
	if m == nil {
		return
	}
	m.purchasedUnits.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncAllocationConflict() {
	if m == nil {
		return
	}
	m.allocationConflicts.Inc()
}

func (m *Metrics) IncTxRetry(operation string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncPromoRedemption() {
	if m == nil {
		return
	}
	m.promoRedemptions.Inc()
}

func (m *Metrics) IncTopupDecision(decision string) {
	if m == nil {
		return
	}
	m.topupDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) AddStockIngested(n int) {
	if m == nil {
		return
	}
	m.stockIngested.Add(float64(n))
}

func (m *Metrics) IncAuditDropped(sink string) {
	if m == nil {
		return
	}
	m.auditDropped.WithLabelValues(sink).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
