// Package retry implements the exponential-backoff retry envelope used
// around LLM requests.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/unfazed-dev/genui/pkg/models"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts bounds the total number of calls, the first included:
	// no retry follows once the 1-based attempt reaches it, so 0 and 1
	// both mean a single call.
	MaxAttempts int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
	// JitterFactor randomizes each delay by ±JitterFactor.
	JitterFactor float64

	// OnRetry, when set, observes every backoff-and-retry cycle.
	OnRetry func(attempt, max int, delay time.Duration, reason string)

	// rand is replaceable for tests; nil uses the package source.
	rand func() float64
}

// DefaultPolicy returns the default retry parameters.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// normalized fills non-positive delays and multiplier with defaults and
// clamps negative MaxAttempts and JitterFactor to zero.
func (p Policy) normalized() Policy {
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	return p
}

// ShouldRetry reports whether the error warrants another attempt.
// Attempts are 1-based: once attempt reaches MaxAttempts, the answer is
// always no. Retryable GenUI errors, network I/O errors, timeouts, and
// transport-level failures retry; everything else surfaces immediately.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}

	var ge *models.GenUIError
	if errors.As(err, &ge) {
		// An open breaker only recovers after its deadline; backing off
		// inside this envelope cannot help.
		if ge.Kind == models.ErrorCircuitOpen {
			return false
		}
		return ge.Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// GetDelay computes the backoff before the given 1-based attempt:
// min(initial * multiplier^(attempt-1), max), then jittered by
// 1 + jitter*rand(-1, 1).
func (p Policy) GetDelay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		r := p.rand
		if r == nil {
			r = rand.Float64 // #nosec G404 -- jitter does not require cryptographic randomness
		}
		delay *= 1 + p.JitterFactor*(2*r()-1)
	}
	return time.Duration(delay)
}

// Do invokes op, retrying per the policy. An op that succeeds on the
// first call runs exactly once with no sleep. Context cancellation during
// a backoff short-circuits the wait and fails the call.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	p = p.normalized()

	attempt := 1
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			return err
		}

		delay := p.GetDelay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, p.MaxAttempts, delay, err.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		attempt++
	}
}
