// Package csvsink writes catalog records to delimited files.
package csvsink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
)

// Fixed output column order; consumers parse by position.
var (
	movieHeader = []string{"title", "year", "rating", "duration", "metascore"}
	actorHeader = []string{"movie_title", "actor_name", "position_order"}
)

// MovieFileName and ActorFileName are the files created under the output dir.
const (
	MovieFileName = "movies.csv"
	ActorFileName = "actors.csv"
)

// Sink appends records to two CSV files. Open writes the headers; a rerun
// overwrites the previous files. Writes are serialized with a mutex so the
// worker pool can interleave freely.
type Sink struct {
	dir    string
	logger *zap.Logger

	mu          sync.Mutex
	movieFile   *os.File
	actorFile   *os.File
	movieWriter *csv.Writer
	actorWriter *csv.Writer
}

// New returns a Sink rooted at dir.
func New(dir string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{dir: dir, logger: logger}
}

// Open creates the output directory and both files, and writes the headers.
func (s *Sink) Open(_ context.Context) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create sink dir %s: %w", s.dir, err)
	}

	moviePath := filepath.Join(s.dir, MovieFileName)
	movieFile, err := os.Create(moviePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", moviePath, err)
	}

	actorPath := filepath.Join(s.dir, ActorFileName)
	actorFile, err := os.Create(actorPath)
	if err != nil {
		cerr := movieFile.Close()
		if cerr != nil {
			s.logger.Warn("close movie file after actor open failure", zap.Error(cerr))
		}
		return fmt.Errorf("create %s: %w", actorPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.movieFile = movieFile
	s.actorFile = actorFile
	s.movieWriter = csv.NewWriter(movieFile)
	s.actorWriter = csv.NewWriter(actorFile)

	if err := s.movieWriter.Write(movieHeader); err != nil {
		return fmt.Errorf("write movie header: %w", err)
	}
	if err := s.actorWriter.Write(actorHeader); err != nil {
		return fmt.Errorf("write actor header: %w", err)
	}
	s.movieWriter.Flush()
	s.actorWriter.Flush()
	return errors.Join(s.movieWriter.Error(), s.actorWriter.Error())
}

// WriteCatalogEntry appends one movie row. Optional fields render as empty
// cells.
func (s *Sink) WriteCatalogEntry(_ context.Context, entry catalog.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.movieWriter == nil {
		return fmt.Errorf("csv sink is not open")
	}
	row := []string{
		entry.Title,
		formatInt(entry.Year),
		formatFloat(entry.Rating),
		formatInt(entry.DurationMinutes),
		formatInt(entry.Metascore),
	}
	if err := s.movieWriter.Write(row); err != nil {
		return fmt.Errorf("write movie row: %w", err)
	}
	s.movieWriter.Flush()
	return s.movieWriter.Error()
}

// WriteCastEntry appends one actor row.
func (s *Sink) WriteCastEntry(_ context.Context, entry catalog.CastEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actorWriter == nil {
		return fmt.Errorf("csv sink is not open")
	}
	row := []string{
		entry.MovieTitle,
		entry.ActorName,
		strconv.Itoa(entry.PositionOrder),
	}
	if err := s.actorWriter.Write(row); err != nil {
		return fmt.Errorf("write actor row: %w", err)
	}
	s.actorWriter.Flush()
	return s.actorWriter.Error()
}

// Close flushes and closes both files. Safe to call once on any exit path.
func (s *Sink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.movieWriter != nil {
		s.movieWriter.Flush()
		errs = append(errs, s.movieWriter.Error())
	}
	if s.actorWriter != nil {
		s.actorWriter.Flush()
		errs = append(errs, s.actorWriter.Error())
	}
	if s.movieFile != nil {
		errs = append(errs, s.movieFile.Close())
		s.movieFile = nil
		s.movieWriter = nil
	}
	if s.actorFile != nil {
		errs = append(errs, s.actorFile.Close())
		s.actorFile = nil
		s.actorWriter = nil
	}
	return errors.Join(errs...)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
