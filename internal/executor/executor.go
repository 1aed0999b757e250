// Package executor runs logical fetches through the retry state machine:
// PENDING -> IN_FLIGHT -> {SUCCESS, RETRYABLE_FAILURE, TERMINAL_FAILURE}.
//
// Each attempt applies the identity rotator, the egress rotator, the fixed
// pacing floor, and the adaptive throttle. Block signals (403/429) and
// connection-level failures are retryable until the budget runs out; budget
// exhaustion surfaces as catalog.TerminalFetchError, which is local to the
// work item.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
	"github.com/JakeFAU/imdb-chart-crawler/internal/egress"
	"github.com/JakeFAU/imdb-chart-crawler/internal/identity"
	"github.com/JakeFAU/imdb-chart-crawler/internal/metrics"
	"github.com/JakeFAU/imdb-chart-crawler/internal/throttle"
)

// Config controls Executor behavior.
type Config struct {
	// MaxAttempts bounds the retry budget per logical request.
	MaxAttempts int
	// Delay is the fixed inter-request floor applied across all workers.
	Delay time.Duration
}

// Executor coordinates a fetch attempt with its resilience collaborators.
type Executor struct {
	cfg        Config
	fetcher    catalog.Fetcher
	identities *identity.Rotator
	routes     *egress.Rotator
	throttle   *throttle.Controller
	limiter    *rate.Limiter
	retry      *ExponentialRetryPolicy
	logger     *zap.Logger

	retries atomic.Int64
}

// New constructs an Executor.
func New(
	cfg Config,
	fetcher catalog.Fetcher,
	identities *identity.Rotator,
	routes *egress.Rotator,
	throttleCtl *throttle.Controller,
	retry *ExponentialRetryPolicy,
	logger *zap.Logger,
) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Executor{
		cfg:        cfg,
		fetcher:    fetcher,
		identities: identities,
		routes:     routes,
		throttle:   throttleCtl,
		limiter:    rate.NewLimiter(limit, 1),
		retry:      retry,
		logger:     logger,
	}
}

// Do fetches url, retrying block signals and connection failures until the
// budget is exhausted. On success it returns the raw payload.
func (e *Executor) Do(ctx context.Context, url string) (catalog.FetchResponse, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		attempts++
		if err := e.pace(ctx); err != nil {
			return catalog.FetchResponse{}, err
		}

		route := e.routes.Assign()
		request := catalog.FetchRequest{
			URL:       url,
			UserAgent: e.identities.Next(),
		}
		if route != nil {
			request.Proxy = route.URL()
		}

		metrics.RequestsTotal.Inc()
		resp, err := e.fetcher.Fetch(ctx, request)
		if err != nil {
			// Connection-level failure: timeout, refused, reset.
			metrics.RequestErrorsTotal.Inc()
			lastErr = err
			if !e.retry.Retryable(err) {
				break
			}
			e.routes.OnFailure(route, err)
			e.logger.Warn("fetch attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if !e.awaitRetry(ctx, attempt) {
				break
			}
			continue
		}

		if isBlockSignal(resp.StatusCode) {
			e.countBlock(resp.StatusCode)
			e.throttle.Observe(resp.Duration, false)
			lastErr = fmt.Errorf("blocked with status %d", resp.StatusCode)
			e.routes.OnFailure(route, lastErr)
			e.logger.Warn("block signal received",
				zap.String("url", url),
				zap.Int("status_code", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			if !e.awaitRetry(ctx, attempt) {
				break
			}
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			e.throttle.Observe(resp.Duration, false)
			lastErr = fmt.Errorf("server error status %d", resp.StatusCode)
			if !e.awaitRetry(ctx, attempt) {
				break
			}
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			// Non-block client error: retrying will not change it.
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			break
		}

		e.throttle.Observe(resp.Duration, true)
		return resp, nil
	}

	metrics.TerminalFailuresTotal.Inc()
	return catalog.FetchResponse{}, &catalog.TerminalFetchError{
		URL:      url,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// pace enforces the fixed floor plus whatever extra delay the adaptive
// throttle has accumulated.
func (e *Executor) pace(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	extra := e.throttle.Delay() - e.cfg.Delay
	if extra <= 0 {
		return nil
	}
	return sleep(ctx, extra)
}

// awaitRetry charges the retry counter and sleeps the backoff. Returns false
// when the context ended during the wait.
func (e *Executor) awaitRetry(ctx context.Context, attempt int) bool {
	e.retries.Add(1)
	metrics.RetriesTotal.Inc()
	return sleep(ctx, e.retry.Backoff(attempt)) == nil
}

// Retries reports how many retry waits this executor has charged so far.
func (e *Executor) Retries() int {
	return int(e.retries.Load())
}

func (e *Executor) countBlock(status int) {
	if status == http.StatusTooManyRequests {
		metrics.RateLimitHitsTotal.Inc()
		return
	}
	metrics.ForbiddenHitsTotal.Inc()
}

func isBlockSignal(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
