package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
	"github.com/JakeFAU/imdb-chart-crawler/internal/egress"
	"github.com/JakeFAU/imdb-chart-crawler/internal/executor"
	collyfetcher "github.com/JakeFAU/imdb-chart-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/imdb-chart-crawler/internal/identity"
	"github.com/JakeFAU/imdb-chart-crawler/internal/publisher/memory"
	csvsink "github.com/JakeFAU/imdb-chart-crawler/internal/sink/csv"
	"github.com/JakeFAU/imdb-chart-crawler/internal/throttle"
)

type stubIDs struct{}

func (stubIDs) NewID() (string, error) { return "run-test", nil }

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

const detailPage = `<html><body>
<li data-testid="title-details-releasedate">October 14, %d</li>
<span class="metacritic-score-box">%d</span>
<section data-testid="title-cast">
  <div data-testid="title-cast-item"><a data-testid="title-cast-item__actor">Actor One</a></div>
  <div data-testid="title-cast-item"><a data-testid="title-cast-item__actor">Actor Two</a></div>
  <div data-testid="title-cast-item"><a data-testid="title-cast-item__actor">Actor Three</a></div>
</section>
</body></html>`

// newChartServer serves an index of three titles; the third detail page is
// permanently blocked.
func newChartServer(t *testing.T) *httptest.Server {
	t.Helper()

	var baseURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/chart/", func(w http.ResponseWriter, _ *http.Request) {
		listing := fmt.Sprintf(`<html><head><script type="application/ld+json">
{"@type":"ItemList","itemListElement":[
  {"item":{"name":"First Film","url":"%s/title/tt1/","duration":"PT2H22M","aggregateRating":{"ratingValue":9.3}}},
  {"item":{"name":"Second Film","url":"%s/title/tt2/","duration":"PT1H30M","aggregateRating":{"ratingValue":8.8}}},
  {"item":{"name":"Blocked Film","url":"%s/title/tt3/","duration":"PT2H","aggregateRating":{"ratingValue":8.5}}}
]}</script></head><body></body></html>`, baseURL, baseURL, baseURL)
		_, _ = w.Write([]byte(listing))
	})
	mux.HandleFunc("/title/tt1/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, detailPage, 1994, 82)
	})
	mux.HandleFunc("/title/tt2/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, detailPage, 1999, 73)
	})
	mux.HandleFunc("/title/tt3/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	srv := httptest.NewServer(mux)
	baseURL = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func newTestExecutor() *executor.Executor {
	return executor.New(
		executor.Config{MaxAttempts: 2},
		collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}),
		identity.New([]string{"test-agent"}, zap.NewNop()),
		egress.New(nil, time.Second, zap.NewNop()),
		throttle.New(throttle.Config{}),
		executor.NewExponentialRetryPolicy(time.Millisecond, 2*time.Millisecond),
		zap.NewNop(),
	)
}

func TestRunCrawlsChartAndContainsFailures(t *testing.T) {
	srv := newChartServer(t)
	dir := t.TempDir()
	sink := csvsink.New(dir, zap.NewNop())
	pub := memory.New()

	p := New(
		Config{
			IndexURL:    srv.URL + "/chart/",
			TopK:        50,
			CastLimit:   3,
			Concurrency: 2,
			Topic:       "crawl-runs",
		},
		newTestExecutor(),
		[]catalog.Sink{sink},
		nil,
		pub,
		stubClock{now: time.Unix(1700000000, 0).UTC()},
		stubIDs{},
		zap.NewNop(),
	)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, "run-test", summary.RunID)
	require.Equal(t, 2, summary.Counters.ItemsProcessed)
	require.Equal(t, 1, summary.Counters.ItemsFailed)
	require.Equal(t, 2, summary.Counters.Retries)
	require.Zero(t, summary.Counters.CastSkipped)

	movies := readCSV(t, filepath.Join(dir, csvsink.MovieFileName))
	require.Len(t, movies, 3)
	titles := map[string]bool{}
	for _, row := range movies[1:] {
		titles[row[0]] = true
	}
	require.True(t, titles["First Film"])
	require.True(t, titles["Second Film"])
	require.False(t, titles["Blocked Film"])

	actors := readCSV(t, filepath.Join(dir, csvsink.ActorFileName))
	require.Len(t, actors, 7, "three cast rows per successful title plus header")

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "crawl-runs", msgs[0].Topic)
	published, ok := msgs[0].Payload.(catalog.Summary)
	require.True(t, ok)
	require.Equal(t, "run-test", published.RunID)
}

func TestRunTopKLimitsDetailFetches(t *testing.T) {
	srv := newChartServer(t)
	dir := t.TempDir()
	sink := csvsink.New(dir, zap.NewNop())

	p := New(
		Config{IndexURL: srv.URL + "/chart/", TopK: 1, CastLimit: 3, Concurrency: 2},
		newTestExecutor(),
		[]catalog.Sink{sink},
		nil,
		nil,
		stubClock{now: time.Unix(1700000000, 0).UTC()},
		stubIDs{},
		zap.NewNop(),
	)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Counters.ItemsProcessed)
	require.Zero(t, summary.Counters.ItemsFailed)

	movies := readCSV(t, filepath.Join(dir, csvsink.MovieFileName))
	require.Len(t, movies, 2)
	require.Equal(t, "First Film", movies[1][0])
	require.Equal(t, "1994", movies[1][1])
	require.Equal(t, "9.3", movies[1][2])
	require.Equal(t, "142", movies[1][3])
	require.Equal(t, "82", movies[1][4])
}

func TestRunFailsOnMissingListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>not a chart</body></html>"))
	}))
	t.Cleanup(srv.Close)

	p := New(
		Config{IndexURL: srv.URL, TopK: 50, CastLimit: 3, Concurrency: 2},
		newTestExecutor(),
		[]catalog.Sink{csvsink.New(t.TempDir(), zap.NewNop())},
		nil,
		nil,
		stubClock{now: time.Unix(1700000000, 0).UTC()},
		stubIDs{},
		zap.NewNop(),
	)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var formatErr *catalog.FormatError
	require.ErrorAs(t, err, &formatErr)
}

type failingSink struct{}

func (failingSink) Open(context.Context) error { return errors.New("disk full") }

func (failingSink) WriteCatalogEntry(context.Context, catalog.CatalogEntry) error { return nil }

func (failingSink) WriteCastEntry(context.Context, catalog.CastEntry) error { return nil }

func (failingSink) Close(context.Context) error { return nil }

func TestRunFailsWhenSinkCannotOpen(t *testing.T) {
	srv := newChartServer(t)

	p := New(
		Config{IndexURL: srv.URL + "/chart/", TopK: 50, CastLimit: 3, Concurrency: 2},
		newTestExecutor(),
		[]catalog.Sink{failingSink{}},
		nil,
		nil,
		stubClock{now: time.Unix(1700000000, 0).UTC()},
		stubIDs{},
		zap.NewNop(),
	)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "open sink")
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
