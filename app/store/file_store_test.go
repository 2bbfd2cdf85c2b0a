package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/wokeometro/app/scoring"
)

const sampleStore = `[
  {
    "id": "tmdb_movie_603",
    "tmdb_id": 603,
    "type": "movie",
    "title": "Matrix",
    "year": 1999,
    "overview": "Un hacker descubre la verdad.",
    "woke_score": 2.5,
    "flags": ["Tema religioso presente"],
    "notes": "",
    "score_source": "auto",
    "tmdb_popularity": 80.5
  },
  {
    "tmdb_id": 1399,
    "type": "series",
    "title": "Juego de Tronos",
    "year": 2011,
    "woke_score": 0,
    "flags": null,
    "tmdb_popularity": 120
  },
  {
    "type": "documentary",
    "title": "Niños del Sur",
    "year": 2020,
    "woke_score": 6,
    "flags": ["Activismo explícito"],
    "score_source": "manual"
  },
  {
    "year": 2018,
    "woke_score": 1
  }
]`

func writeStore(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wokeometro_base.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, filepath.Join(dir, "backups")
}

func openStore(t *testing.T, content string) *FileStore {
	t.Helper()
	path, backups := writeStore(t, content)
	s, err := NewFileStore(path, backups)
	require.NoError(t, err)
	return s
}

func TestFileStore_LoadNormalizesRecords(t *testing.T) {
	s := openStore(t, sampleStore)

	titles := s.All()
	require.Len(t, titles, 4)

	assert.Equal(t, "tmdb_movie_603", titles[0].ID)
	assert.Equal(t, "tmdb_series_1399", titles[1].ID)
	assert.Equal(t, []string{}, titles[1].Flags)
	assert.Equal(t, KindMovie, titles[2].Type)
	assert.Equal(t, "local_movie_2020_ninos-del-sur", titles[2].ID)
	assert.Equal(t, DefaultTitle, titles[3].Title)
	assert.Equal(t, "local_movie_2018_untitled", titles[3].ID)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "missing.json"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, filepath.Join(dir, "backups"), s.BackupDir())
}

func TestFileStore_MalformedStore(t *testing.T) {
	for _, content := range []string{`{"id": "x"}`, `"text"`, `[1]`, `["x"]`, `[null]`, ``} {
		path, backups := writeStore(t, content)
		_, err := NewFileStore(path, backups)
		assert.ErrorIs(t, err, ErrMalformedStore, "content %q", content)
	}
}

func TestFileStore_WrongTypedFieldsFallBackToDefaults(t *testing.T) {
	s := openStore(t, `[
  {"id": 1, "type": "series", "title": "Serie", "year": "2020", "woke_score": "alto", "flags": "a,b", "notes": "ok"},
  {"id": "b", "type": "movie", "title": 7, "year": 2001, "woke_score": 3.5, "flags": ["x"]}
]`)

	titles := s.All()
	require.Len(t, titles, 2)

	assert.Equal(t, "local_series_0_serie", titles[0].ID)
	assert.Equal(t, 0, titles[0].Year)
	assert.Equal(t, 0.0, titles[0].Score)
	assert.Equal(t, []string{}, titles[0].Flags)
	assert.Equal(t, "ok", titles[0].Notes)
	assert.Empty(t, titles[0].Extra)

	assert.Equal(t, DefaultTitle, titles[1].Title)
	assert.Equal(t, 2001, titles[1].Year)
	assert.Equal(t, []string{"x"}, titles[1].Flags)
}

func TestFileStore_WritesKeepUnknownKeys(t *testing.T) {
	s := openStore(t, `[
  {"id": "a", "type": "movie", "title": "Aa", "year": 2001, "woke_score": 1, "flags": [], "imdb_id": "tt123", "backdrop_path": "/b.jpg"},
  {"id": "b", "type": "movie", "title": "Bee", "year": 2002, "woke_score": 2, "flags": [], "original_title": "Bee <&>", "cast": [{"name": "X"}]}
]`)

	_, err := s.Update(context.Background(), "a", func(t *Title) error {
		t.Score = 5
		return nil
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var written []map[string]any
	require.NoError(t, json.Unmarshal(raw, &written))
	require.Len(t, written, 2)

	assert.Equal(t, 5.0, written[0]["woke_score"])
	assert.Equal(t, "tt123", written[0]["imdb_id"])
	assert.Equal(t, "/b.jpg", written[0]["backdrop_path"])
	assert.Equal(t, "Bee <&>", written[1]["original_title"])
	assert.Equal(t, []any{map[string]any{"name": "X"}}, written[1]["cast"])
	assert.Contains(t, string(raw), `"original_title": "Bee <&>"`)

	require.NoError(t, s.Reload())
	b, err := s.Get("b")
	require.NoError(t, err)
	assert.JSONEq(t, `"Bee <&>"`, string(b.Extra["original_title"]))
}

func TestFileStore_GetAndFind(t *testing.T) {
	s := openStore(t, sampleStore)

	title, err := s.Get("tmdb_movie_603")
	require.NoError(t, err)
	assert.Equal(t, "Matrix", title.Title)

	_, err = s.Get(" tmdb_movie_603 ")
	assert.ErrorIs(t, err, ErrNotFound)

	title, err = s.Find(" TMDB_Movie_603 ")
	require.NoError(t, err)
	assert.Equal(t, "tmdb_movie_603", title.ID)

	_, err = s.Find("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_ReturnedRecordsAreCopies(t *testing.T) {
	s := openStore(t, sampleStore)

	title, err := s.Get("tmdb_movie_603")
	require.NoError(t, err)
	title.Flags[0] = "mutated"
	title.Score = 9

	again, err := s.Get("tmdb_movie_603")
	require.NoError(t, err)
	assert.Equal(t, "Tema religioso presente", again.Flags[0])
	assert.Equal(t, 2.5, again.Score)
}

func TestFileStore_UpdateWritesAtomicallyWithBackup(t *testing.T) {
	s := openStore(t, sampleStore)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	original, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), "tmdb_movie_603", func(t *Title) error {
		t.Score = 7
		t.ScoreSource = scoring.SourceManual
		t.ID = "attempted-rename"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "tmdb_movie_603", updated.ID)
	assert.Equal(t, 7.0, updated.Score)

	backups, err := os.ReadDir(s.BackupDir())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "wokeometro_base.20261019T120000.000000000Z.json", backups[0].Name())

	backup, err := os.ReadFile(filepath.Join(s.BackupDir(), backups[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, original, backup)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temporary file left behind")
	}

	reopened, err := NewFileStore(s.Path(), s.BackupDir())
	require.NoError(t, err)
	title, err := reopened.Get("tmdb_movie_603")
	require.NoError(t, err)
	assert.Equal(t, 7.0, title.Score)
	assert.Equal(t, scoring.SourceManual, title.ScoreSource)
	assert.Equal(t, 4, reopened.Count())
}

func TestFileStore_UpdateNotFound(t *testing.T) {
	s := openStore(t, sampleStore)

	_, err := s.Update(context.Background(), "nope", func(t *Title) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(s.BackupDir())
	assert.True(t, os.IsNotExist(err), "no backup expected when nothing was written")
}

func TestFileStore_UpdateFuncErrorAbortsWrite(t *testing.T) {
	s := openStore(t, sampleStore)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Update(context.Background(), "tmdb_movie_603", func(t *Title) error {
		t.Score = 10
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	title, err := s.Get("tmdb_movie_603")
	require.NoError(t, err)
	assert.Equal(t, 2.5, title.Score)
}

func TestFileStore_UpdateRespectsCancelledContext(t *testing.T) {
	s := openStore(t, sampleStore)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Update(ctx, "tmdb_movie_603", func(t *Title) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStore_UpdatePicksUpExternalChanges(t *testing.T) {
	s := openStore(t, sampleStore)

	external := `[{"id": "tmdb_movie_603", "type": "movie", "title": "Matrix Reloaded", "year": 2003, "woke_score": 3, "flags": []}]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(external), 0o644))

	updated, err := s.Update(context.Background(), "tmdb_movie_603", func(t *Title) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "Matrix Reloaded", updated.Title)
	assert.Equal(t, 1, s.Count())
}

func TestFileStore_BackupsSortChronologically(t *testing.T) {
	s := openStore(t, sampleStore)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stamps := []time.Time{base, base.Add(999 * time.Millisecond), base.Add(10 * time.Second), base.Add(48 * time.Hour)}
	for _, stamp := range stamps {
		s.now = func() time.Time { return stamp }
		_, err := s.Update(context.Background(), "tmdb_movie_603", func(t *Title) error { return nil })
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(s.BackupDir())
	require.NoError(t, err)
	require.Len(t, entries, len(stamps))

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, "wokeometro_base.20260104T030405.000000000Z.json", names[len(names)-1])
}

func TestFileStore_MutateAppendsAndNormalizes(t *testing.T) {
	s := openStore(t, sampleStore)

	err := s.Mutate(context.Background(), func(titles []Title) ([]Title, bool, error) {
		return append(titles, Title{TMDBID: int64Ptr(42), Type: KindSeries, Title: "Nueva"}), true, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 5, s.Count())
	title, err := s.Get("tmdb_series_42")
	require.NoError(t, err)
	assert.Equal(t, []string{}, title.Flags)

	require.NoError(t, s.Reload())
	assert.Equal(t, 5, s.Count())
}

func TestFileStore_MutateWorksOnLatestDocument(t *testing.T) {
	s := openStore(t, sampleStore)

	external := `[{"id": "tmdb_movie_603", "type": "movie", "title": "Matrix", "year": 1999, "woke_score": 8, "flags": [], "score_source": "manual"}]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(external), 0o644))

	var seen []Title
	err := s.Mutate(context.Background(), func(titles []Title) ([]Title, bool, error) {
		seen = titles
		return titles, false, nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.True(t, seen[0].IsManual())
	assert.Equal(t, 1, s.Count())

	_, err = os.Stat(s.BackupDir())
	assert.True(t, os.IsNotExist(err), "unchanged mutate must not write")
}

func TestFileStore_MutateErrorAborts(t *testing.T) {
	s := openStore(t, sampleStore)
	boom := errors.New("boom")

	err := s.Mutate(context.Background(), func(titles []Title) ([]Title, bool, error) {
		return nil, true, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, s.Count())
}

func TestTitle_IsEnriched(t *testing.T) {
	es, en := "es", "en"
	var votes int64 = 10

	title := Title{OverviewES: &es, OverviewEN: &en, Genres: []string{}, Keywords: []string{}, VoteCount: &votes}
	assert.True(t, title.IsEnriched())

	title.Keywords = nil
	assert.False(t, title.IsEnriched())
}

func TestDeriveID(t *testing.T) {
	assert.Equal(t, "tmdb_series_7", DeriveID(&Title{TMDBID: int64Ptr(7), Type: KindSeries}))
	assert.Equal(t, "tmdb_movie_7", DeriveID(&Title{TMDBID: int64Ptr(7), Type: "bogus"}))
	assert.Equal(t, "local_series_2001_el-nino", DeriveID(&Title{Type: KindSeries, Year: 2001, Title: "El Niño"}))
	assert.Equal(t, "local_movie_0_untitled", DeriveID(&Title{}))
}

func int64Ptr(v int64) *int64 {
	return &v
}
