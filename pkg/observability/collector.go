// Package observability provides the metrics event bus that every
// resilience component reports into, plus pluggable delivery adapters.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/unfazed-dev/genui/pkg/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind loses events rather than blocking the producer.
const subscriberBuffer = 256

// latencyReservoirSize bounds the rolling latency sample.
const latencyReservoirSize = 1024

// CollectorConfig configures a metrics collector.
type CollectorConfig struct {
	// Aggregate enables rolling counters and the latency reservoir.
	Aggregate bool
}

// Collector is a broadcast bus for metrics events. Emit never blocks on
// slow subscribers.
type Collector struct {
	mu          sync.Mutex
	subscribers []chan models.MetricsEvent
	aggregate   bool
	closed      bool

	totalRequests    int64
	successCount     int64
	failureCount     int64
	rateLimitCount   int64
	breakerOpenCount int64
	inactivityCount  int64
	retryCount       int64

	latencies []time.Duration
	latencyAt int
}

// NewCollector creates a collector.
func NewCollector(config CollectorConfig) *Collector {
	return &Collector{aggregate: config.Aggregate}
}

var (
	defaultMu        sync.Mutex
	defaultCollector *Collector
)

// Default returns the optional process-wide collector, creating it on
// first use.
func Default() *Collector {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCollector == nil {
		defaultCollector = NewCollector(CollectorConfig{Aggregate: true})
	}
	return defaultCollector
}

// SetDefault replaces the process-wide collector.
func SetDefault(c *Collector) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCollector = c
}

// Subscribe registers a new subscriber channel. The channel is closed by
// Close.
func (c *Collector) Subscribe() <-chan models.MetricsEvent {
	ch := make(chan models.MetricsEvent, subscriberBuffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Emit publishes an event to all subscribers and folds it into the
// aggregation when enabled. Slow subscribers drop events.
func (c *Collector) Emit(event models.MetricsEvent) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.aggregate {
		c.fold(event)
	}
	subscribers := c.subscribers
	c.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// fold updates the rolling aggregation. Must be called with the lock held.
func (c *Collector) fold(event models.MetricsEvent) {
	switch e := event.(type) {
	case models.RequestStart:
		c.totalRequests++
	case models.RequestSuccess:
		c.successCount++
		c.recordLatency(e.Duration)
	case models.RequestFailure:
		c.failureCount++
	case models.RateLimit:
		c.rateLimitCount++
	case models.CircuitBreakerStateChange:
		if e.To == models.CircuitOpen {
			c.breakerOpenCount++
		}
	case models.StreamInactivity:
		c.inactivityCount++
	case models.RetryAttempt:
		c.retryCount++
	case models.Latency:
		c.recordLatency(e.Duration)
	}
}

// recordLatency writes into the bounded reservoir. Must be called with
// the lock held.
func (c *Collector) recordLatency(d time.Duration) {
	if len(c.latencies) < latencyReservoirSize {
		c.latencies = append(c.latencies, d)
		return
	}
	c.latencies[c.latencyAt%latencyReservoirSize] = d
	c.latencyAt++
}

// Stats is an aggregation snapshot.
type Stats struct {
	TotalRequests    int64
	SuccessCount     int64
	FailureCount     int64
	SuccessRate      float64
	RetryCount       int64
	RateLimitCount   int64
	BreakerOpenCount int64
	InactivityCount  int64
	LatencyP50       time.Duration
	LatencyP95       time.Duration
	LatencyP99       time.Duration
}

// Stats returns the current aggregation. Zero-valued when aggregation is
// disabled.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		TotalRequests:    c.totalRequests,
		SuccessCount:     c.successCount,
		FailureCount:     c.failureCount,
		RetryCount:       c.retryCount,
		RateLimitCount:   c.rateLimitCount,
		BreakerOpenCount: c.breakerOpenCount,
		InactivityCount:  c.inactivityCount,
	}
	if finished := c.successCount + c.failureCount; finished > 0 {
		stats.SuccessRate = float64(c.successCount) / float64(finished)
	}
	if len(c.latencies) > 0 {
		sorted := make([]time.Duration, len(c.latencies))
		copy(sorted, c.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.LatencyP50 = percentile(sorted, 0.50)
		stats.LatencyP95 = percentile(sorted, 0.95)
		stats.LatencyP99 = percentile(sorted, 0.99)
	}
	return stats
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

// Close closes all subscriber channels. Further Emit calls are dropped.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = nil
}
