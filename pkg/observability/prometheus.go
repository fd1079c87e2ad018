package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unfazed-dev/genui/pkg/models"
)

// PrometheusAdapter feeds the metrics bus into Prometheus collectors.
type PrometheusAdapter struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	retriesTotal     prometheus.Counter
	rateLimitWaits   prometheus.Counter
	breakerState     *prometheus.CounterVec
	streamInactivity prometheus.Counter
}

// NewPrometheusAdapter registers the genui metric family on the given
// registerer. Pass prometheus.DefaultRegisterer for the process default,
// or a fresh registry in tests.
func NewPrometheusAdapter(serviceName string, reg prometheus.Registerer) *PrometheusAdapter {
	factory := promauto.With(reg)

	p := &PrometheusAdapter{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genui_requests_total",
				Help: "Total LLM requests by outcome",
			},
			[]string{"status", "error_kind"},
		),
		requestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "genui_request_duration_seconds",
				Help:    "Duration of successful LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		retriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "genui_retries_total",
				Help: "Total retry attempts",
			},
		),
		rateLimitWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "genui_rate_limit_waits_total",
				Help: "Total rate-limit admission waits",
			},
		),
		breakerState: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genui_circuit_breaker_transitions_total",
				Help: "Circuit breaker transitions by target state",
			},
			[]string{"breaker", "to"},
		),
		streamInactivity: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "genui_stream_inactivity_total",
				Help: "Streams terminated for inactivity",
			},
		),
	}
	return p
}

// Attach subscribes to the collector and updates Prometheus collectors on
// every event.
func (p *PrometheusAdapter) Attach(c *Collector) {
	events := c.Subscribe()
	go func() {
		for event := range events {
			p.observe(event)
		}
	}()
}

func (p *PrometheusAdapter) observe(event models.MetricsEvent) {
	switch e := event.(type) {
	case models.RequestSuccess:
		p.requestsTotal.WithLabelValues("success", "").Inc()
		p.requestDuration.Observe(e.Duration.Seconds())
	case models.RequestFailure:
		p.requestsTotal.WithLabelValues("failure", string(e.ErrorKind)).Inc()
	case models.RetryAttempt:
		p.retriesTotal.Inc()
	case models.RateLimit:
		p.rateLimitWaits.Inc()
	case models.CircuitBreakerStateChange:
		p.breakerState.WithLabelValues(e.Name, string(e.To)).Inc()
	case models.StreamInactivity:
		p.streamInactivity.Inc()
	}
}
