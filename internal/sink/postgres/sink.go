// Package pgsink provides the Postgres-backed persistence sink.
package pgsink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
	"github.com/JakeFAU/imdb-chart-crawler/internal/metrics"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Sink writes catalog records into Postgres with idempotent semantics: the
// movie upsert is a no-op on (title, year) conflict, and cast writes are
// skipped when the referenced movie row is absent.
type Sink struct {
	pool   pool
	logger *zap.Logger
}

const (
	createMoviesSQL = `
CREATE TABLE IF NOT EXISTS movies (
	id SERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	year INTEGER,
	rating NUMERIC(3,1),
	duration INTEGER,
	metascore INTEGER,
	CONSTRAINT uq_movie_title_year UNIQUE (title, year)
)`
	createActorsSQL = `
CREATE TABLE IF NOT EXISTS actors (
	id SERIAL PRIMARY KEY,
	movie_id INTEGER NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
	actor_name TEXT NOT NULL,
	position_order INTEGER
)`
	insertMovieSQL = `
INSERT INTO movies (title, year, rating, duration, metascore)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (title, year) DO NOTHING`
	selectMovieIDSQL = `SELECT id FROM movies WHERE title = $1 LIMIT 1`
	insertActorSQL   = `
INSERT INTO actors (movie_id, actor_name, position_order)
VALUES ($1, $2, $3)`
)

// New creates a Sink backed by a new pgx pool.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, logger)
}

// NewWithPool constructs a Sink from an existing pool (primarily for testing).
func NewWithPool(p pool, logger *zap.Logger) (*Sink, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pool: p, logger: logger}, nil
}

// Open ensures both tables exist. A failure here is run-fatal.
func (s *Sink) Open(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createMoviesSQL); err != nil {
		return fmt.Errorf("ensure movies table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, createActorsSQL); err != nil {
		return fmt.Errorf("ensure actors table: %w", err)
	}
	return nil
}

// WriteCatalogEntry upserts one movie keyed on (title, year). A conflicting
// duplicate is a no-op: the first writer wins and no field is overwritten.
func (s *Sink) WriteCatalogEntry(ctx context.Context, entry catalog.CatalogEntry) error {
	tag, err := s.pool.Exec(ctx, insertMovieSQL,
		entry.Title,
		entry.Year,
		entry.Rating,
		entry.DurationMinutes,
		entry.Metascore,
	)
	if err != nil {
		return fmt.Errorf("insert movie %q: %w", entry.Title, err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("duplicate catalog entry; keeping first write",
			zap.String("title", entry.Title))
	}
	return nil
}

// WriteCastEntry resolves the referenced movie by title and inserts one
// actor row. A missing movie row yields catalog.ErrMissingReference so the
// caller can count the skip; it is never fatal.
func (s *Sink) WriteCastEntry(ctx context.Context, entry catalog.CastEntry) error {
	var movieID int
	err := s.pool.QueryRow(ctx, selectMovieIDSQL, entry.MovieTitle).Scan(&movieID)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.CastSkippedTotal.Inc()
		s.logger.Warn("cast entry references a missing catalog entry; skipping",
			zap.String("movie_title", entry.MovieTitle),
			zap.String("actor_name", entry.ActorName))
		return fmt.Errorf("%w: %s", catalog.ErrMissingReference, entry.MovieTitle)
	}
	if err != nil {
		return fmt.Errorf("look up movie %q: %w", entry.MovieTitle, err)
	}

	if _, err := s.pool.Exec(ctx, insertActorSQL,
		movieID,
		entry.ActorName,
		entry.PositionOrder,
	); err != nil {
		return fmt.Errorf("insert actor %q for movie %q: %w", entry.ActorName, entry.MovieTitle, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
