package egress

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/metrics"
)

const ipLookupURL = "https://api.ipify.org"

// Rotator owns the pool of egress routes and the current-route state cell.
// The current route is advisory (logging, best-effort routing); readers get
// last-writer-wins consistency, which is all the pipeline needs.
type Rotator struct {
	routes   []Route
	cooldown time.Duration
	logger   *zap.Logger
	lookup   *http.Client

	emptyOnce sync.Once

	mu       sync.Mutex
	current  *Route
	failedAt map[string]time.Time
	rng      *rand.Rand
}

// New builds a Rotator over the configured route pool. An empty pool is
// valid: rotation is disabled and Assign returns nil.
func New(routes []Route, cooldown time.Duration, logger *zap.Logger) *Rotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{
		routes:   routes,
		cooldown: cooldown,
		logger:   logger,
		lookup:   &http.Client{Timeout: 5 * time.Second},
		failedAt: make(map[string]time.Time),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Assign picks a route for the next request, uniformly at random among
// routes not in the failure cooldown window. Returns nil when no routes are
// configured; that condition is logged once, not per request.
func (r *Rotator) Assign() *Route {
	if len(r.routes) == 0 {
		r.emptyOnce.Do(func() {
			r.logger.Warn("egress route pool is empty; requests go out without a proxy")
		})
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	route := r.pickLocked(nil)
	r.setCurrentLocked(route)
	return &route
}

// OnFailure records a connection-level failure for the route and hands back a
// different one (best effort; with a single-route pool the same route comes
// back). The failed route sits out Assign for the cooldown window.
func (r *Rotator) OnFailure(failed *Route, cause error) *Route {
	if len(r.routes) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if failed != nil {
		r.failedAt[failed.String()] = time.Now()
		r.logger.Warn("egress route failed; rotating",
			zap.String("route", failed.String()),
			zap.Error(cause))
	}
	route := r.pickLocked(failed)
	r.setCurrentLocked(route)
	return &route
}

// Current returns the route most recently handed out, or nil before the
// first assignment. Advisory only.
func (r *Rotator) Current() *Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	route := *r.current
	return &route
}

// pickLocked chooses among routes outside the cooldown window, excluding
// avoid when an alternative exists. Falls back to the whole pool if every
// route is cooling down.
func (r *Rotator) pickLocked(avoid *Route) Route {
	now := time.Now()
	candidates := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		if avoid != nil && route == *avoid {
			continue
		}
		if failed, ok := r.failedAt[route.String()]; ok && now.Sub(failed) < r.cooldown {
			continue
		}
		candidates = append(candidates, route)
	}
	if len(candidates) == 0 {
		candidates = r.routes
	}
	return candidates[r.rng.Intn(len(candidates))]
}

func (r *Rotator) setCurrentLocked(route Route) {
	if r.current != nil && *r.current == route {
		return
	}
	r.current = &route
	metrics.EgressRotationsTotal.Inc()
	r.logger.Info("egress route changed", zap.String("route", route.String()))
	go r.announceIP(route)
}

// announceIP looks up the public IP after a route change, purely for
// observability. Lookup failures are swallowed.
func (r *Rotator) announceIP(route Route) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ipLookupURL, nil)
	if err != nil {
		return
	}
	resp, err := r.lookup.Do(req)
	if err != nil {
		r.logger.Debug("public ip lookup failed", zap.String("route", route.String()), zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	ip, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return
	}
	r.logger.Info("public ip after route change",
		zap.String("ip", string(ip)),
		zap.String("route", route.String()))
}
