package executor

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// ExponentialRetryPolicy implements jittered exponential backoff.
type ExponentialRetryPolicy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewExponentialRetryPolicy builds a policy with the given bounds, falling
// back to sane defaults on zero values.
func NewExponentialRetryPolicy(base, max time.Duration) *ExponentialRetryPolicy {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	return &ExponentialRetryPolicy{
		baseDelay: base,
		maxDelay:  max,
	}
}

// Retryable decides whether the error class is worth another attempt.
// Context cancellation is never retried.
func (p *ExponentialRetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
