package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// DefaultGateDelay is used when a 429 response carries no usable
// Retry-After header.
const DefaultGateDelay = 60 * time.Second

// Gate is the reactive counterpart of the limiter: when the server
// returns 429, the gate closes for the retry-after period and queues new
// calls. When the timer fires, queued calls are released in FIFO order;
// a failing queued call never stops the drain.
type Gate struct {
	mu     sync.Mutex
	closed bool
	queue  []chan struct{}
	timer  *time.Timer
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// ParseRetryAfter interprets a Retry-After header value as integer
// seconds. A missing or malformed value yields the default delay.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return DefaultGateDelay
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return DefaultGateDelay
	}
	return time.Duration(secs) * time.Second
}

// Close shuts the gate for the given duration. Calling Close while the
// gate is already closed extends or shortens the timer to the new delay.
func (g *Gate) Close(delay time.Duration) {
	if delay <= 0 {
		delay = DefaultGateDelay
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(delay, g.open)
}

// open releases queued waiters in FIFO order and reopens the gate.
func (g *Gate) open() {
	g.mu.Lock()
	waiters := g.queue
	g.queue = nil
	g.closed = false
	g.timer = nil
	g.mu.Unlock()

	for _, release := range waiters {
		close(release)
	}
}

// Execute runs op immediately when the gate is open, otherwise queues
// behind the timer. Each released caller runs its own op, so a panic or
// error in one queued call cannot stall the others.
func (g *Gate) Execute(ctx context.Context, op func(context.Context) error) error {
	g.mu.Lock()
	if !g.closed {
		g.mu.Unlock()
		return op(ctx)
	}

	release := make(chan struct{})
	g.queue = append(g.queue, release)
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-release:
	}
	return op(ctx)
}

// IsClosed reports whether calls are currently being queued.
func (g *Gate) IsClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// QueueLen returns the number of callers waiting on the gate.
func (g *Gate) QueueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Stop cancels the pending timer, releasing any queued waiters so they
// can fail fast against a closing client.
func (g *Gate) Stop() {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.mu.Unlock()
	g.open()
}
