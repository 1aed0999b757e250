// Package identity supplies per-request client identity strings.
package identity

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// fallbackAgents is used whenever no identity pool is configured. The strings
// are realistic desktop browser identities so a fetch never goes out with an
// obviously synthetic one.
var fallbackAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/114.0.5735.198 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:115.0) Gecko/20100101 Firefox/115.0",
}

// Rotator hands out a user agent per request, uniformly at random from a
// fixed pool. Next never fails; an empty or unusable pool means the embedded
// fallback list is used instead.
type Rotator struct {
	pool []string

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Rotator from the configured pool. Blank entries are dropped;
// if nothing usable remains the embedded fallback list takes over (logged
// once at construction, never per request).
func New(pool []string, logger *zap.Logger) *Rotator {
	cleaned := make([]string, 0, len(pool))
	for _, ua := range pool {
		if ua != "" {
			cleaned = append(cleaned, ua)
		}
	}
	if len(cleaned) == 0 {
		if logger != nil {
			logger.Info("no user agents configured; using embedded fallback list",
				zap.Int("fallback_size", len(fallbackAgents)))
		}
		cleaned = append(cleaned, fallbackAgents...)
	}
	return &Rotator{
		pool: cleaned,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the identity string for the next request.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool[r.rng.Intn(len(r.pool))]
}

// PoolSize reports how many identities the rotator draws from.
func (r *Rotator) PoolSize() int {
	return len(r.pool)
}
