package models

import "time"

// StreamEvent is one item of the per-request output sequence. Events are
// emitted in framing-event arrival order; exactly one terminal event
// (Complete or ErrorEvent) closes the sequence.
type StreamEvent interface {
	streamEvent()
}

// TextDelta carries an incremental slice of free-form assistant text.
type TextDelta struct {
	Text string
}

func (TextDelta) streamEvent() {}

// WidgetMessageEvent carries one decoded surface mutation.
type WidgetMessageEvent struct {
	Message WidgetMessage
}

func (WidgetMessageEvent) streamEvent() {}

// RawDelta forwards the unmodified framing delta for callers that want the
// wire-level view.
type RawDelta struct {
	Raw map[string]any
}

func (RawDelta) streamEvent() {}

// Thinking carries extended-thinking content. IsComplete marks the end of
// a thinking block (with empty Content).
type Thinking struct {
	Content    string
	IsComplete bool
}

func (Thinking) streamEvent() {}

// Complete signals successful end of the response stream.
type Complete struct{}

func (Complete) streamEvent() {}

// ErrorEvent is the terminal error of a stream.
type ErrorEvent struct {
	Err *GenUIError
}

func (ErrorEvent) streamEvent() {}

// CircuitState is the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// MetricsEvent is one observation on the metrics bus. Every event carries
// a timestamp and, when scoped to a request, the request id.
type MetricsEvent interface {
	metricsEvent()
	At() time.Time
}

// MetricsBase holds the fields shared by all metrics events.
type MetricsBase struct {
	Timestamp time.Time
	RequestID string
}

func (b MetricsBase) At() time.Time { return b.Timestamp }

// RequestStart marks the admission of a request into the pipeline.
type RequestStart struct{ MetricsBase }

func (RequestStart) metricsEvent() {}

// RequestSuccess marks a request that drained to Complete.
type RequestSuccess struct {
	MetricsBase
	Duration time.Duration
}

func (RequestSuccess) metricsEvent() {}

// RequestFailure marks a request that ended in a terminal error.
type RequestFailure struct {
	MetricsBase
	ErrorKind ErrorKind
	Retryable bool
}

func (RequestFailure) metricsEvent() {}

// CircuitBreakerStateChange records a breaker transition.
type CircuitBreakerStateChange struct {
	MetricsBase
	Name string
	From CircuitState
	To   CircuitState
}

func (CircuitBreakerStateChange) metricsEvent() {}

// RetryAttempt records one backoff-and-retry cycle.
type RetryAttempt struct {
	MetricsBase
	Attempt int
	Max     int
	Delay   time.Duration
	Reason  string
}

func (RetryAttempt) metricsEvent() {}

// RateLimit records a proactive or reactive rate-limit wait.
type RateLimit struct {
	MetricsBase
	WaitTime time.Duration
	Scope    string
}

func (RateLimit) metricsEvent() {}

// Latency records the duration of a named operation.
type Latency struct {
	MetricsBase
	Operation string
	Duration  time.Duration
}

func (Latency) metricsEvent() {}

// StreamInactivity records a stream terminated for silence.
type StreamInactivity struct {
	MetricsBase
	Timeout time.Duration
}

func (StreamInactivity) metricsEvent() {}
