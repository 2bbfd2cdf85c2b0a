package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/wokeometro/app/store"
	"github.com/lysyi3m/wokeometro/app/tmdb"
)

const (
	DefaultStartYear       = 2015
	DefaultEndYear         = 2025
	DefaultMinVoteCount    = 200
	DefaultMinVoteAverage  = 5.0
	DefaultMaxPagesPerYear = 10
)

type DiscoverOptions struct {
	StartYear       int
	EndYear         int
	MinVoteCount    int
	MinVoteAverage  float64
	MaxPagesPerYear int
}

func (o DiscoverOptions) withDefaults() DiscoverOptions {
	if o.StartYear == 0 {
		o.StartYear = DefaultStartYear
	}
	if o.EndYear == 0 {
		o.EndYear = DefaultEndYear
	}
	if o.MinVoteCount == 0 {
		o.MinVoteCount = DefaultMinVoteCount
	}
	if o.MinVoteAverage == 0 {
		o.MinVoteAverage = DefaultMinVoteAverage
	}
	if o.MaxPagesPerYear <= 0 {
		o.MaxPagesPerYear = DefaultMaxPagesPerYear
	}
	return o
}

// DiscoverTask pages through popular movies and series per year and adds the
// ones the catalog does not know yet. Existing records are never replaced.
type DiscoverTask struct {
	Task
	Options  DiscoverOptions
	provider MetadataProvider
	titles   store.TitleRepository
}

func NewDiscoverTask(opts DiscoverOptions, provider MetadataProvider, titles store.TitleRepository) *DiscoverTask {
	return &DiscoverTask{
		Task:     NewTask(TaskTypeDiscover),
		Options:  opts.withDefaults(),
		provider: provider,
		titles:   titles,
	}
}

func (t *DiscoverTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.Options.StartYear > t.Options.EndYear {
		return fmt.Errorf("invalid year range %d-%d", t.Options.StartYear, t.Options.EndYear)
	}

	found := make([]store.Title, 0)
	for year := t.Options.StartYear; year <= t.Options.EndYear; year++ {
		for _, kind := range []store.Kind{store.KindMovie, store.KindSeries} {
			titles, err := t.discoverYear(ctx, kind, year)
			if err != nil {
				return fmt.Errorf("failed to discover %s for %d: %w", kind, year, err)
			}
			slog.Debug("Discovered titles", "kind", string(kind), "year", year, "count", len(titles))
			found = append(found, titles...)
		}
	}

	added := 0
	err := t.titles.Mutate(ctx, func(current []store.Title) ([]store.Title, bool, error) {
		var merged []store.Title
		merged, added = mergeNew(current, found)
		return merged, added > 0, nil
	})
	if err != nil {
		return fmt.Errorf("failed to store discovered titles: %w", err)
	}

	slog.Info("Task completed",
		"type", "Discover",
		"duration", t.GetDuration(),
		"years", fmt.Sprintf("%d-%d", t.Options.StartYear, t.Options.EndYear),
		"found", len(found),
		"added", added)

	return nil
}

func (t *DiscoverTask) discoverYear(ctx context.Context, kind store.Kind, year int) ([]store.Title, error) {
	media := mediaFor(kind)
	titles := make([]store.Title, 0)

	for page := 1; page <= t.Options.MaxPagesPerYear; page++ {
		result, err := t.provider.Discover(ctx, media, tmdb.DiscoverFilter{
			Year:           year,
			Page:           page,
			Language:       tmdb.LanguageES,
			MinVoteCount:   t.Options.MinVoteCount,
			MinVoteAverage: t.Options.MinVoteAverage,
		})
		if err != nil {
			return nil, err
		}

		for _, r := range result.Results {
			titles = append(titles, rawTitle(kind, media, r))
		}

		if result.TotalPages == 0 || page >= result.TotalPages {
			break
		}
	}

	return titles, nil
}

// rawTitle builds an unscored record: score 0, no flags, no source.
func rawTitle(kind store.Kind, media tmdb.MediaType, r tmdb.DiscoverResult) store.Title {
	id := r.ID
	t := store.Title{
		TMDBID:     &id,
		Type:       kind,
		Title:      r.DisplayTitle(media),
		Year:       r.Year(media),
		Overview:   r.Overview,
		Popularity: r.Popularity,
		Flags:      []string{},
	}
	if t.Title == "" {
		t.Title = store.DefaultTitle
	}
	if r.PosterPath != "" {
		poster := r.PosterPath
		t.PosterPath = &poster
	}
	t.ID = store.DeriveID(&t)
	return t
}

// mergeNew appends the records of found whose identifier is not present yet.
// The first occurrence of a duplicated identifier wins.
func mergeNew(current, found []store.Title) ([]store.Title, int) {
	known := make(map[string]struct{}, len(current)+len(found))
	for i := range current {
		known[current[i].ID] = struct{}{}
	}

	added := 0
	for _, t := range found {
		if _, ok := known[t.ID]; ok {
			continue
		}
		known[t.ID] = struct{}{}
		current = append(current, t)
		added++
	}
	return current, added
}

func mediaFor(kind store.Kind) tmdb.MediaType {
	if kind == store.KindSeries {
		return tmdb.MediaTV
	}
	return tmdb.MediaMovie
}
