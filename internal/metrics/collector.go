package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the gateway's Prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry prometheus.Gatherer

	// Resolution
	resolutionsTotal  *prometheus.CounterVec
	resolveDuration   *prometheus.HistogramVec
	cacheLookupsTotal *prometheus.CounterVec
	storeErrorsTotal  prometheus.Counter
	invalidations     *prometheus.CounterVec

	// Middleware
	requestsTotal *prometheus.CounterVec

	// Verification lifecycle
	verificationChecks *prometheus.CounterVec
	certificateChecks  *prometheus.CounterVec
	queueSize          prometheus.Gauge
}

// NewCollector registers all instruments on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests independent of the global registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_resolutions_total",
				Help: "Host resolutions by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		resolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenant_resolve_duration_seconds",
				Help:    "Time spent resolving a host to a tenant",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"strategy"},
		),
		cacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_cache_lookups_total",
				Help: "Cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		storeErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tenant_store_errors_total",
				Help: "Persistent store failures that halted a resolution",
			},
		),
		invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_cache_invalidations_total",
				Help: "Cache invalidations by tier and result",
			},
			[]string{"tier", "result"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_gateway_requests_total",
				Help: "Requests seen by the tenant middleware by decision",
			},
			[]string{"decision"},
		),
		verificationChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_domain_verification_checks_total",
				Help: "DNS ownership verification checks by outcome",
			},
			[]string{"outcome"},
		),
		certificateChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_domain_certificate_checks_total",
				Help: "Certificate status checks by outcome",
			},
			[]string{"outcome"},
		),
		queueSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenant_domain_jobs_queued",
				Help: "Lifecycle jobs waiting in the queue",
			},
		),
	}
}

// Gatherer exposes the registry for /metrics and remote write.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

func (c *Collector) RecordResolution(strategy, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.resolutionsTotal.WithLabelValues(strategy, outcome).Inc()
	c.resolveDuration.WithLabelValues(strategy).Observe(took.Seconds())
}

func (c *Collector) RecordCacheLookup(tier, result string) {
	if c == nil {
		return
	}
	c.cacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

func (c *Collector) RecordStoreError() {
	if c == nil {
		return
	}
	c.storeErrorsTotal.Inc()
}

func (c *Collector) RecordInvalidation(tier, result string) {
	if c == nil {
		return
	}
	c.invalidations.WithLabelValues(tier, result).Inc()
}

func (c *Collector) RecordRequest(decision string) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(decision).Inc()
}

func (c *Collector) RecordVerificationCheck(outcome string) {
	if c == nil {
		return
	}
	c.verificationChecks.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCertificateCheck(outcome string) {
	if c == nil {
		return
	}
	c.certificateChecks.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetQueueSize(n int64) {
	if c == nil {
		return
	}
	c.queueSize.Set(float64(n))
}
