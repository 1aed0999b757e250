// Package catalog defines core types shared across subsystems.
package catalog

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// CatalogEntry is the record persisted for one ranked movie. The natural key
// is (Title, Year); every other field is optional and nil when the source
// page did not expose it.
type CatalogEntry struct {
	Title           string
	Year            *int
	Rating          *float64
	DurationMinutes *int
	Metascore       *int
}

// CastEntry links an actor to a catalog entry by title. PositionOrder is the
// 1-based position of the actor within the detail page's cast section.
type CastEntry struct {
	MovieTitle    string
	ActorName     string
	PositionOrder int
}

// Record is the variant over the two persisted record kinds. The unexported
// marker method keeps the set closed so sink dispatch stays exhaustive.
type Record interface {
	record()
}

func (CatalogEntry) record() {}
func (CastEntry) record()    {}

// WorkItem carries one index listing entry into the detail-fetch phase.
// Fields already known from the index (title, aggregate rating, raw ISO
// duration) ride along so the detail parse never re-derives them.
type WorkItem struct {
	DetailURL   string
	Title       string
	Rating      *float64
	DurationRaw string
}

// FetchRequest captures everything needed for a single HTTP fetch.
type FetchRequest struct {
	URL       string
	UserAgent string
	Proxy     *url.URL
	Headers   http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// RunCounters tracks per-run success/failure stats.
type RunCounters struct {
	ItemsProcessed int
	ItemsFailed    int
	CastSkipped    int
	Retries        int
}

// Summary is reported (and optionally published) when a run finishes.
type Summary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Counters  RunCounters   `json:"counters"`
}

// Fetcher performs exactly one HTTP attempt for a request. Retry and
// throttling live above it, in the executor.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Sink consumes typed records. Open must be called before the first write and
// Close on every exit path; writes must be safe under concurrent callers.
type Sink interface {
	Open(ctx context.Context) error
	WriteCatalogEntry(ctx context.Context, entry CatalogEntry) error
	WriteCastEntry(ctx context.Context, entry CastEntry) error
	Close(ctx context.Context) error
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for snapshot object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
