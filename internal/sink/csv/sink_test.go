package csvsink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
)

func TestSinkWritesHeadersAndRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink := New(dir, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sink.Open(ctx))

	year := 1994
	rating := 9.3
	duration := 142
	metascore := 82
	require.NoError(t, sink.WriteCatalogEntry(ctx, catalog.CatalogEntry{
		Title:           "The Shawshank Redemption",
		Year:            &year,
		Rating:          &rating,
		DurationMinutes: &duration,
		Metascore:       &metascore,
	}))
	require.NoError(t, sink.WriteCatalogEntry(ctx, catalog.CatalogEntry{
		Title: "Mystery Film",
	}))
	require.NoError(t, sink.WriteCastEntry(ctx, catalog.CastEntry{
		MovieTitle:    "The Shawshank Redemption",
		ActorName:     "Tim Robbins",
		PositionOrder: 1,
	}))
	require.NoError(t, sink.Close(ctx))

	movies := readCSV(t, filepath.Join(dir, MovieFileName))
	require.Equal(t, [][]string{
		{"title", "year", "rating", "duration", "metascore"},
		{"The Shawshank Redemption", "1994", "9.3", "142", "82"},
		{"Mystery Film", "", "", "", ""},
	}, movies)

	actors := readCSV(t, filepath.Join(dir, ActorFileName))
	require.Equal(t, [][]string{
		{"movie_title", "actor_name", "position_order"},
		{"The Shawshank Redemption", "Tim Robbins", "1"},
	}, actors)
}

func TestOpenOverwritesPreviousRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	first := New(dir, zap.NewNop())
	require.NoError(t, first.Open(ctx))
	require.NoError(t, first.WriteCatalogEntry(ctx, catalog.CatalogEntry{Title: "Stale"}))
	require.NoError(t, first.Close(ctx))

	second := New(dir, zap.NewNop())
	require.NoError(t, second.Open(ctx))
	require.NoError(t, second.Close(ctx))

	movies := readCSV(t, filepath.Join(dir, MovieFileName))
	require.Len(t, movies, 1, "rerun should start from a fresh file")
}

func TestWriteBeforeOpenFails(t *testing.T) {
	t.Parallel()

	sink := New(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	require.Error(t, sink.WriteCatalogEntry(ctx, catalog.CatalogEntry{Title: "X"}))
	require.Error(t, sink.WriteCastEntry(ctx, catalog.CastEntry{MovieTitle: "X"}))
}

func TestCloseWithoutOpenIsSafe(t *testing.T) {
	t.Parallel()

	sink := New(t.TempDir(), zap.NewNop())
	require.NoError(t, sink.Close(context.Background()))
}

func TestTitlesWithCommasSurviveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink := New(dir, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sink.Open(ctx))
	require.NoError(t, sink.WriteCatalogEntry(ctx, catalog.CatalogEntry{
		Title: `The Good, the Bad and the "Ugly"`,
	}))
	require.NoError(t, sink.Close(ctx))

	movies := readCSV(t, filepath.Join(dir, MovieFileName))
	require.Equal(t, `The Good, the Bad and the "Ugly"`, movies[1][0])
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
