// Package pipeline drives the two-phase crawl: one index fetch, then a
// bounded worker-pool fan-out over the per-title detail fetches, with
// extraction and persistence happening inline on each worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/archive"
	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
	"github.com/JakeFAU/imdb-chart-crawler/internal/executor"
	"github.com/JakeFAU/imdb-chart-crawler/internal/extract"
	"github.com/JakeFAU/imdb-chart-crawler/internal/metrics"
)

// Config controls Pipeline behavior.
type Config struct {
	IndexURL    string
	TopK        int
	CastLimit   int
	Concurrency int
	Topic       string
}

// Pipeline wires the executor, extractor, sinks, and optional collaborators
// into one run.
type Pipeline struct {
	cfg       Config
	executor  *executor.Executor
	sinks     []catalog.Sink
	archiver  *archive.Archiver
	publisher catalog.Publisher
	clock     catalog.Clock
	ids       catalog.IDGenerator
	logger    *zap.Logger

	mu       sync.Mutex
	counters catalog.RunCounters
}

// New constructs a Pipeline. archiver and publisher may be nil.
func New(
	cfg Config,
	exec *executor.Executor,
	sinks []catalog.Sink,
	archiver *archive.Archiver,
	publisher catalog.Publisher,
	clock catalog.Clock,
	ids catalog.IDGenerator,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		executor:  exec,
		sinks:     sinks,
		archiver:  archiver,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
}

// Run executes one full crawl. Only an index fetch/parse failure or a sink
// open failure is returned as an error; per-item failures are contained in
// the summary counters.
func (p *Pipeline) Run(ctx context.Context) (catalog.Summary, error) {
	runID, err := p.ids.NewID()
	if err != nil {
		return catalog.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := catalog.Summary{RunID: runID, StartedAt: p.clock.Now()}
	p.logger.Info("crawl run starting",
		zap.String("run_id", runID),
		zap.String("index_url", p.cfg.IndexURL))

	// Sinks are closed on every exit path, including mid-run failure.
	defer p.closeSinks()
	for _, sink := range p.sinks {
		if err := sink.Open(ctx); err != nil {
			return summary, fmt.Errorf("open sink: %w", err)
		}
	}

	items, err := p.fetchIndex(ctx)
	if err != nil {
		return summary, err
	}
	p.logger.Info("index parsed", zap.Int("work_items", len(items)))

	p.fanOut(ctx, items)

	p.mu.Lock()
	summary.Counters = p.counters
	p.mu.Unlock()
	summary.Counters.Retries = p.executor.Retries()
	summary.Duration = p.clock.Now().Sub(summary.StartedAt)

	p.publishSummary(ctx, summary)
	p.logger.Info("crawl run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("items_processed", summary.Counters.ItemsProcessed),
		zap.Int("items_failed", summary.Counters.ItemsFailed),
		zap.Int("cast_skipped", summary.Counters.CastSkipped),
		zap.Int("retries", summary.Counters.Retries),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// fetchIndex performs phase 1. A missing or malformed listing is fatal to
// the run: retrying will not conjure up the block.
func (p *Pipeline) fetchIndex(ctx context.Context) ([]catalog.WorkItem, error) {
	resp, err := p.executor.Do(ctx, p.cfg.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	items, err := extract.ParseIndex(resp.Body, p.cfg.TopK)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// fanOut runs phase 2 under the concurrency cap. Cancellation stops feeding
// new items; in-flight fetches finish or hit their own timeout.
func (p *Pipeline) fanOut(ctx context.Context, items []catalog.WorkItem) {
	work := make(chan catalog.WorkItem)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				p.processItem(ctx, item)
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break feed
		case work <- item:
		}
	}
	close(work)
	wg.Wait()
}

// processItem fetches one detail page, extracts its records, and persists
// them: catalog entry first, then cast, so the cast rows can resolve their
// reference. One bad item never aborts the batch.
func (p *Pipeline) processItem(ctx context.Context, item catalog.WorkItem) {
	resp, err := p.executor.Do(ctx, item.DetailURL)
	if err != nil {
		var terminal *catalog.TerminalFetchError
		if errors.As(err, &terminal) {
			p.logger.Error("detail fetch failed terminally",
				zap.String("title", item.Title),
				zap.String("url", item.DetailURL),
				zap.Int("attempts", terminal.Attempts),
				zap.Error(terminal.Err))
		} else {
			p.logger.Error("detail fetch failed",
				zap.String("title", item.Title),
				zap.String("url", item.DetailURL),
				zap.Error(err))
		}
		p.addFailed()
		return
	}

	doc, err := extract.NewDocument(resp.Body)
	if err != nil {
		p.logger.Error("unparsable detail payload",
			zap.String("title", item.Title),
			zap.Error(err))
		p.addFailed()
		return
	}

	p.archiver.Save(ctx, resp.URL, resp.Body)

	entry := extract.Entry(doc, item)
	cast := extract.ExtractCast(doc, item.Title, p.cfg.CastLimit)
	p.persist(ctx, entry, cast)
	p.addProcessed()
}

// persist writes the records for one item to every sink. Write failures are
// contained per record per sink; a skipped cast reference is counted, not
// logged as an error (the sink already warned).
func (p *Pipeline) persist(ctx context.Context, entry catalog.CatalogEntry, cast []catalog.CastEntry) {
	entryAccepted := false
	castAccepted := make([]bool, len(cast))

	for _, sink := range p.sinks {
		if err := catalog.Write(ctx, sink, entry); err != nil {
			p.logger.Error("write catalog entry failed",
				zap.String("title", entry.Title),
				zap.Error(err))
			continue
		}
		entryAccepted = true

		for i, c := range cast {
			if err := catalog.Write(ctx, sink, c); err != nil {
				if errors.Is(err, catalog.ErrMissingReference) {
					p.addCastSkipped()
					continue
				}
				p.logger.Error("write cast entry failed",
					zap.String("movie_title", c.MovieTitle),
					zap.String("actor_name", c.ActorName),
					zap.Error(err))
				continue
			}
			castAccepted[i] = true
		}
	}

	if entryAccepted {
		metrics.RecordsWrittenTotal.WithLabelValues("catalog").Inc()
	}
	for _, ok := range castAccepted {
		if ok {
			metrics.RecordsWrittenTotal.WithLabelValues("cast").Inc()
		}
	}
}

func (p *Pipeline) publishSummary(ctx context.Context, summary catalog.Summary) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, summary); err != nil {
		p.logger.Warn("publish run summary failed", zap.Error(err))
	}
}

func (p *Pipeline) closeSinks() {
	ctx := context.Background()
	for _, sink := range p.sinks {
		if err := sink.Close(ctx); err != nil {
			p.logger.Warn("close sink failed", zap.Error(err))
		}
	}
}

func (p *Pipeline) addProcessed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters.ItemsProcessed++
}

func (p *Pipeline) addFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters.ItemsFailed++
}

func (p *Pipeline) addCastSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters.CastSkipped++
}
