package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/unfazed-dev/genui/pkg/models"
)

// Sink delivers one formatted event payload to a platform back-end.
type Sink func(payload map[string]any)

// Adapter subscribes to a collector, formats each event into a
// platform-neutral map, and hands it to a user-supplied sink. A panicking
// sink is contained; it never kills the bus.
type Adapter struct {
	ServiceName string
	Environment string
	Tags        map[string]string
	Sink        Sink
	Logger      *slog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Attach starts forwarding events from the collector to the sink until
// Detach is called or the collector closes.
func (a *Adapter) Attach(c *Collector) {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	events := c.Subscribe()

	go func() {
		defer close(a.done)
		for {
			select {
			case <-a.stop:
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				a.deliver(event)
			}
		}
	}()
}

func (a *Adapter) deliver(event models.MetricsEvent) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Warn("metrics sink panicked", "panic", r)
		}
	}()
	if a.Sink != nil {
		a.Sink(a.FormatEvent(event))
	}
}

// Detach stops the forwarding goroutine and waits for it to exit.
func (a *Adapter) Detach() {
	a.once.Do(func() {
		if a.stop != nil {
			close(a.stop)
			<-a.done
		}
	})
}

// FormatEvent renders an event as a platform-neutral payload carrying the
// adapter's service name, environment, and tags.
func (a *Adapter) FormatEvent(event models.MetricsEvent) map[string]any {
	payload := map[string]any{
		"service":     a.ServiceName,
		"environment": a.Environment,
		"timestamp":   event.At(),
	}
	for k, v := range a.Tags {
		payload["tag."+k] = v
	}

	switch e := event.(type) {
	case models.RequestStart:
		payload["event"] = "request_start"
		payload["request_id"] = e.RequestID
	case models.RequestSuccess:
		payload["event"] = "request_success"
		payload["request_id"] = e.RequestID
		payload["duration_ms"] = e.Duration.Milliseconds()
	case models.RequestFailure:
		payload["event"] = "request_failure"
		payload["request_id"] = e.RequestID
		payload["error_kind"] = string(e.ErrorKind)
		payload["retryable"] = e.Retryable
	case models.CircuitBreakerStateChange:
		payload["event"] = "circuit_breaker_state_change"
		payload["breaker"] = e.Name
		payload["from"] = string(e.From)
		payload["to"] = string(e.To)
	case models.RetryAttempt:
		payload["event"] = "retry_attempt"
		payload["request_id"] = e.RequestID
		payload["attempt"] = e.Attempt
		payload["max_attempts"] = e.Max
		payload["delay_ms"] = e.Delay.Milliseconds()
		payload["reason"] = e.Reason
	case models.RateLimit:
		payload["event"] = "rate_limit"
		payload["request_id"] = e.RequestID
		payload["wait_ms"] = e.WaitTime.Milliseconds()
		payload["scope"] = e.Scope
	case models.Latency:
		payload["event"] = "latency"
		payload["operation"] = e.Operation
		payload["duration_ms"] = e.Duration.Milliseconds()
	case models.StreamInactivity:
		payload["event"] = "stream_inactivity"
		payload["request_id"] = e.RequestID
		payload["timeout_ms"] = e.Timeout.Milliseconds()
	default:
		payload["event"] = "unknown"
	}
	return payload
}

// NewConsoleAdapter returns an adapter that logs every event through the
// given structured logger.
func NewConsoleAdapter(serviceName string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		ServiceName: serviceName,
		Logger:      logger,
	}
	a.Sink = func(payload map[string]any) {
		args := make([]any, 0, len(payload)*2)
		for k, v := range payload {
			args = append(args, k, v)
		}
		logger.Info("metrics", args...)
	}
	return a
}

// BatchingAdapter wraps another adapter's sink, buffering payloads until
// the batch size or flush interval is reached, whichever comes first.
type BatchingAdapter struct {
	mu      sync.Mutex
	inner   *Adapter
	deliver func(batch []map[string]any)
	buffer  []map[string]any
	size    int
	ticker  *time.Ticker
	stop    chan struct{}
	once    sync.Once
}

// NewBatchingAdapter wraps inner so its sink receives batches through
// deliver. size is the flush threshold and interval the flush period.
func NewBatchingAdapter(inner *Adapter, size int, interval time.Duration, deliver func(batch []map[string]any)) *BatchingAdapter {
	if size <= 0 {
		size = 50
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	b := &BatchingAdapter{
		inner:   inner,
		deliver: deliver,
		size:    size,
		ticker:  time.NewTicker(interval),
		stop:    make(chan struct{}),
	}

	inner.Sink = func(payload map[string]any) {
		b.add(payload)
	}

	go func() {
		for {
			select {
			case <-b.stop:
				return
			case <-b.ticker.C:
				b.Flush()
			}
		}
	}()

	return b
}

func (b *BatchingAdapter) add(payload map[string]any) {
	b.mu.Lock()
	b.buffer = append(b.buffer, payload)
	full := len(b.buffer) >= b.size
	b.mu.Unlock()
	if full {
		b.Flush()
	}
}

// Flush delivers any buffered payloads immediately.
func (b *BatchingAdapter) Flush() {
	b.mu.Lock()
	batch := b.buffer
	b.buffer = nil
	b.mu.Unlock()
	if len(batch) > 0 && b.deliver != nil {
		b.deliver(batch)
	}
}

// Close stops the flush timer and delivers the remaining buffer.
func (b *BatchingAdapter) Close() {
	b.once.Do(func() {
		b.ticker.Stop()
		close(b.stop)
		b.Flush()
	})
}
