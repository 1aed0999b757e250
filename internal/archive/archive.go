// Package archive snapshots raw detail payloads to a blob store so a run
// leaves reproducible evidence of what was fetched.
package archive

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
)

// Archiver names and stores one snapshot per fetched detail page. Snapshot
// failures are logged and swallowed; the crawl result never depends on them.
type Archiver struct {
	store       catalog.BlobStore
	hasher      catalog.Hasher
	clock       catalog.Clock
	contentType string
	logger      *zap.Logger
}

// New constructs an Archiver.
func New(store catalog.BlobStore, hasher catalog.Hasher, clock catalog.Clock, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:       store,
		hasher:      hasher,
		clock:       clock,
		contentType: "text/html; charset=utf-8",
		logger:      logger,
	}
}

// Save writes the page body under pages/<date>/<urlhash>.html.
func (a *Archiver) Save(ctx context.Context, url string, body []byte) {
	if a == nil || a.store == nil {
		return
	}
	hash, err := a.hasher.Hash([]byte(url))
	if err != nil {
		a.logger.Warn("hash snapshot name", zap.String("url", url), zap.Error(err))
		return
	}
	objectName := path.Join(
		"pages",
		a.clock.Now().Format("2006-01-02"),
		fmt.Sprintf("%s.html", hash),
	)
	uri, err := a.store.PutObject(ctx, objectName, a.contentType, body)
	if err != nil {
		a.logger.Warn("archive snapshot failed", zap.String("url", url), zap.Error(err))
		return
	}
	a.logger.Debug("archived page snapshot", zap.String("url", url), zap.String("uri", uri))
}
