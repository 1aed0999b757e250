// Package cmd defines and implements the CLI commands for the chartcrawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/api"
	"github.com/JakeFAU/imdb-chart-crawler/internal/archive"
	archivegcs "github.com/JakeFAU/imdb-chart-crawler/internal/archive/gcs"
	archivelocal "github.com/JakeFAU/imdb-chart-crawler/internal/archive/local"
	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
	systemclock "github.com/JakeFAU/imdb-chart-crawler/internal/clock/system"
	"github.com/JakeFAU/imdb-chart-crawler/internal/config"
	"github.com/JakeFAU/imdb-chart-crawler/internal/egress"
	"github.com/JakeFAU/imdb-chart-crawler/internal/executor"
	collyfetcher "github.com/JakeFAU/imdb-chart-crawler/internal/fetcher/colly"
	sha256hash "github.com/JakeFAU/imdb-chart-crawler/internal/hash/sha256"
	uuidgen "github.com/JakeFAU/imdb-chart-crawler/internal/id/uuid"
	"github.com/JakeFAU/imdb-chart-crawler/internal/identity"
	"github.com/JakeFAU/imdb-chart-crawler/internal/pipeline"
	pubsubpublisher "github.com/JakeFAU/imdb-chart-crawler/internal/publisher/pubsub"
	csvsink "github.com/JakeFAU/imdb-chart-crawler/internal/sink/csv"
	pgsink "github.com/JakeFAU/imdb-chart-crawler/internal/sink/postgres"
	"github.com/JakeFAU/imdb-chart-crawler/internal/throttle"
)

// newCrawlCmd creates and configures the 'crawl' subcommand, which runs one
// full crawl of the configured chart and exits.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the chart and persists the extracted records",
		Long: `Fetches the configured chart index once, selects the leading titles,
and crawls each title's detail page under the configured concurrency,
identity rotation, and retry budget. Records are written to every enabled
sink as they are extracted.`,

		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	d, err := resolveDeps(cmd.Context())
	if err != nil {
		return err
	}
	cfg, logger := d.cfg, d.logger

	if cfg.Server.Enabled {
		ops := api.NewServer(cfg.Server.Port, logger)
		ops.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := ops.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("Failed to stop ops server", zap.Error(serr))
			}
		}()
	}

	publisher, err := buildPublisher(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	var pub catalog.Publisher
	if publisher != nil {
		pub = publisher
		defer func() {
			if cerr := publisher.Close(); cerr != nil {
				logger.Warn("Failed to close publisher", zap.Error(cerr))
			}
		}()
	}

	run, err := buildPipeline(cmd.Context(), cfg, pub, logger)
	if err != nil {
		return err
	}

	summary, err := run.Run(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	logger.Info("Crawl command finished.", zap.String("run_id", summary.RunID))
	return nil
}

// buildPipeline assembles the crawl collaborators from configuration.
func buildPipeline(ctx context.Context, cfg config.Config, publisher catalog.Publisher, logger *zap.Logger) (*pipeline.Pipeline, error) {
	routes, err := egress.ParseRoutes(cfg.Egress.Routes)
	if err != nil {
		return nil, fmt.Errorf("parse egress routes: %w", err)
	}
	cooldown := time.Duration(cfg.Egress.FailureCooldownSeconds) * time.Second

	fetcher := collyfetcher.New(collyfetcher.Config{
		Timeout:        cfg.RequestTimeout(),
		DefaultHeaders: defaultHeaders(),
	})

	throttleCtl := throttle.New(throttle.Config{
		Enabled:           cfg.Throttle.Enabled,
		BaseDelay:         cfg.RequestDelay(),
		MaxDelay:          time.Duration(cfg.Throttle.MaxDelaySeconds) * time.Second,
		TargetConcurrency: cfg.Throttle.TargetConcurrency,
	})

	exec := executor.New(
		executor.Config{
			MaxAttempts: cfg.HTTP.MaxRetries,
			Delay:       cfg.RequestDelay(),
		},
		fetcher,
		identity.New(cfg.Crawler.UserAgents, logger),
		egress.New(routes, cooldown, logger),
		throttleCtl,
		executor.NewExponentialRetryPolicy(
			time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
		),
		logger,
	)

	sinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	archiver, err := buildArchiver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return pipeline.New(
		pipeline.Config{
			IndexURL:    cfg.Crawler.IndexURL,
			TopK:        cfg.Crawler.TopK,
			CastLimit:   cfg.Crawler.CastLimit,
			Concurrency: cfg.Crawler.Concurrency,
			Topic:       cfg.PubSub.TopicName,
		},
		exec,
		sinks,
		archiver,
		publisher,
		systemclock.New(),
		uuidgen.NewUUIDGenerator(),
		logger,
	), nil
}

func buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]catalog.Sink, error) {
	var sinks []catalog.Sink
	if cfg.Sink.CSVEnabled {
		sinks = append(sinks, csvsink.New(cfg.Sink.OutputDir, logger))
	}
	if cfg.DB.DSN != "" {
		pg, err := pgsink.New(ctx, pgsink.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
	}
	return sinks, nil
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*archive.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}

	var store catalog.BlobStore
	var err error
	if cfg.Archive.GCSBucket != "" {
		store, err = archivegcs.New(ctx, cfg.Archive.GCSBucket, logger)
	} else {
		store, err = archivelocal.New(cfg.Archive.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("init archive store: %w", err)
	}

	return archive.New(store, sha256hash.New(), systemclock.New(), logger), nil
}

func buildPublisher(ctx context.Context, cfg config.Config) (*pubsubpublisher.Publisher, error) {
	if cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	return pub, nil
}

// defaultHeaders mirrors a regular browser's baseline request headers so the
// rotated user agents are not the only identity signal.
func defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	return h
}
