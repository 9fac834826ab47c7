package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoverageMetrics tracks request application and the coverage book.
type CoverageMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	transfers     *prometheus.CounterVec
	poolNative    prometheus.Gauge
	poolReserved  prometheus.Gauge
	agreements    prometheus.Gauge
	openClaims    prometheus.Gauge
	outboxPending prometheus.Gauge
}

var (
	coverageOnce     sync.Once
	coverageRegistry *CoverageMetrics
)

// Coverage returns the lazily-initialised coverage metrics registered with
// the default prometheus registry.
func Coverage() *CoverageMetrics {
	coverageOnce.Do(func() {
		coverageRegistry = newCoverageMetrics()
		prometheus.MustRegister(coverageRegistry.collectors()...)
	})
	return coverageRegistry
}

func newCoverageMetrics() *CoverageMetrics {
	return &CoverageMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peershield",
			Subsystem: "coverage",
			Name:      "requests_total",
			Help:      "Applied requests segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "peershield",
			Subsystem: "coverage",
			Name:      "request_duration_seconds",
			Help:      "Time spent applying a request, including the state commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peershield",
			Subsystem: "coverage",
			Name:      "transfers_total",
			Help:      "Outbound transfer instructions by kind.",
		}, []string{"kind"}),
		poolNative: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peershield",
			Subsystem: "coverage",
			Name:      "pool_native",
			Help:      "Native balance of the coverage pool.",
		}),
		poolReserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peershield",
			Subsystem: "coverage",
			Name:      "pool_reserved",
			Help:      "Native pool amount reserved for live agreements.",
		}),
		agreements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peershield",
			Subsystem: "coverage",
			Name:      "agreements",
			Help:      "Number of live agreements.",
		}),
		openClaims: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peershield",
			Subsystem: "coverage",
			Name:      "open_claims",
			Help:      "Number of agreements with a pending claim.",
		}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peershield",
			Subsystem: "outbox",
			Name:      "pending",
			Help:      "Transfer instructions not yet acknowledged.",
		}),
	}
}

func (m *CoverageMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests,
		m.latency,
		m.transfers,
		m.poolNative,
		m.poolReserved,
		m.agreements,
		m.openClaims,
		m.outboxPending,
	}
}

// ObserveRequest records the outcome and duration of one applied request.
func (m *CoverageMetrics) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveTransfer counts an emitted transfer instruction.
func (m *CoverageMetrics) ObserveTransfer(kind string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(kind).Inc()
}

// SetBook publishes the current pool and registry sizes. Amounts beyond
// float64 precision are approximated.
func (m *CoverageMetrics) SetBook(poolNative, poolReserved float64, agreements, claims int) {
	if m == nil {
		return
	}
	m.poolNative.Set(poolNative)
	m.poolReserved.Set(poolReserved)
	m.agreements.Set(float64(agreements))
	m.openClaims.Set(float64(claims))
}

// SetOutboxPending publishes the number of unacknowledged transfers.
func (m *CoverageMetrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}
