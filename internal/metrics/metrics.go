// Package metrics holds the Prometheus counters shared by the crawl pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks the number of HTTP requests dispatched.
	RequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_requests_total",
		Help: "The total number of HTTP requests sent.",
	})
	// RequestErrorsTotal tracks requests that failed at the connection level.
	RequestErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_request_errors_total",
		Help: "The total number of HTTP requests that failed with a connection error.",
	})
	// RetriesTotal tracks retried fetch attempts.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_retries_total",
		Help: "The total number of fetch retries.",
	})
	// RateLimitHitsTotal tracks HTTP 429 block signals.
	RateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_rate_limit_hits_total",
		Help: "The total number of times the crawler was rate limited.",
	})
	// ForbiddenHitsTotal tracks HTTP 403 block signals.
	ForbiddenHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_forbidden_hits_total",
		Help: "The total number of forbidden responses received.",
	})
	// TerminalFailuresTotal tracks work items lost to exhausted retry budgets.
	TerminalFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_terminal_failures_total",
		Help: "The total number of work items dropped after the retry budget ran out.",
	})
	// RecordsWrittenTotal tracks records accepted by the sinks, by kind.
	RecordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartcrawler_records_written_total",
		Help: "The total number of records written to sinks.",
	}, []string{"kind"})
	// CastSkippedTotal tracks cast writes dropped for a missing catalog entry.
	CastSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_cast_skipped_total",
		Help: "The total number of cast records skipped because the catalog entry was missing.",
	})
	// EgressRotationsTotal tracks egress route changes.
	EgressRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartcrawler_egress_rotations_total",
		Help: "The total number of egress route rotations.",
	})
)
