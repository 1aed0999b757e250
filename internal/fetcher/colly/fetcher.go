// Package collyfetcher implements catalog.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
)

// Config controls collector behavior.
type Config struct {
	Timeout        time.Duration
	DefaultHeaders http.Header
}

// Fetcher performs exactly one HTTP GET per call via a cloned Colly
// collector. Retries, throttling, and block handling belong to the executor.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Non-2xx statuses are returned as
// responses, not errors, so the caller can classify block signals.
func (f *Fetcher) Fetch(ctx context.Context, request catalog.FetchRequest) (catalog.FetchResponse, error) {
	var (
		result   catalog.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return catalog.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request catalog.FetchRequest,
	start time.Time,
	result *catalog.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	// Error statuses (403/429/5xx) must reach OnResponse so the executor can
	// see the status code.
	collector.ParseHTTPErrorResponse = true
	// Retries re-fetch the same URL; colly's visited-URL dedupe would turn
	// the second attempt into an error.
	collector.AllowURLRevisit = true
	if request.UserAgent != "" {
		collector.UserAgent = request.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(newHTTPTransport(request.Proxy))

	collector.OnRequest(func(r *colly.Request) {
		f.copyHeaders(f.cfg.DefaultHeaders, r)
		f.copyHeaders(request.Headers, r)
	})

	collector.OnResponse(func(r *colly.Response) {
		*result = catalog.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})

	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Set(key, v)
		}
	}
}

func newHTTPTransport(proxy *url.URL) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return transport
}
