// Package throttle adapts the inter-request delay to observed latency.
//
// The control loop targets one in-flight request per observed round trip
// (scaled by TargetConcurrency): after each successful response the delay
// moves halfway toward latency divided by the target, clamped between the
// configured base delay and the ceiling. Failed responses never shrink the
// delay, so a burst of block signals slows the crawl instead of feeding it.
package throttle

import (
	"sync"
	"time"
)

// Config controls the adaptive delay controller.
type Config struct {
	Enabled           bool
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	TargetConcurrency float64
}

// Controller is safe for concurrent use by the worker pool.
type Controller struct {
	cfg Config

	mu    sync.Mutex
	delay time.Duration
}

// New builds a Controller starting at the base delay.
func New(cfg Config) *Controller {
	if cfg.TargetConcurrency <= 0 {
		cfg.TargetConcurrency = 1.0
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &Controller{
		cfg:   cfg,
		delay: cfg.BaseDelay,
	}
}

// Delay returns the wait to apply before the next request.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// Observe feeds one completed request into the control loop. Latency zero
// (connection-level failure, no round trip measured) leaves the delay as is.
func (c *Controller) Observe(latency time.Duration, ok bool) {
	if !c.cfg.Enabled || latency <= 0 {
		return
	}

	target := time.Duration(float64(latency) / c.cfg.TargetConcurrency)

	c.mu.Lock()
	defer c.mu.Unlock()
	next := (c.delay + target) / 2
	if !ok && next < c.delay {
		// Errors may only slow us down.
		return
	}
	c.delay = clamp(next, c.cfg.BaseDelay, c.cfg.MaxDelay)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
