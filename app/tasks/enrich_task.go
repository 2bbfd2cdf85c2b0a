package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/wokeometro/app/scoring"
	"github.com/lysyi3m/wokeometro/app/store"
	"github.com/lysyi3m/wokeometro/app/tmdb"
)

const DefaultCheckpointEvery = 25

type EnrichOptions struct {
	// Start and End bound the index window [Start, End). End <= 0 means the
	// end of the catalog.
	Start           int
	End             int
	CheckpointEvery int
}

// enrichment is the provider data fetched for one record, applied to the
// latest stored version at checkpoint time.
type enrichment struct {
	overview    string
	overviewES  string
	overviewEN  string
	genres      []string
	keywords    []string
	posterPath  string
	popularity  *float64
	voteCount   int64
	voteAverage *float64
	auto        scoring.Result
}

// EnrichTask fetches Spanish and English details plus keywords for every
// record in the window that has a provider id and was not enriched before,
// and auto-scores it unless an editor already reviewed it.
type EnrichTask struct {
	Task
	Options  EnrichOptions
	provider MetadataProvider
	titles   store.TitleRepository
	scorer   *scoring.Scorer
}

func NewEnrichTask(opts EnrichOptions, provider MetadataProvider, titles store.TitleRepository, scorer *scoring.Scorer) *EnrichTask {
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}
	if opts.Start < 0 {
		opts.Start = 0
	}

	return &EnrichTask{
		Task:     NewTask(TaskTypeEnrich),
		Options:  opts,
		provider: provider,
		titles:   titles,
		scorer:   scorer,
	}
}

func (t *EnrichTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.titles.Reload(); err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	titles := t.titles.All()

	end := len(titles)
	if t.Options.End > 0 && t.Options.End < end {
		end = t.Options.End
	}

	pending := make(map[string]enrichment)
	changed, skipped, alreadyEnriched, failed := 0, 0, 0, 0

	checkpoint := func() error {
		if len(pending) == 0 {
			return nil
		}
		// The write itself must not be cut short by the cancellation that
		// triggered it.
		if err := t.titles.Mutate(context.WithoutCancel(ctx), applyEnrichments(pending)); err != nil {
			return fmt.Errorf("failed to checkpoint enrichment: %w", err)
		}
		slog.Info("Checkpoint saved", "type", "Enrich", "changed", changed)
		clear(pending)
		return nil
	}

	var runErr error
	for i := t.Options.Start; i < end; i++ {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		title := &titles[i]
		if title.TMDBID == nil {
			slog.Debug("Skipping title without provider id", "index", i, "id", title.ID)
			skipped++
			continue
		}
		if title.IsEnriched() {
			alreadyEnriched++
			continue
		}

		e, err := t.fetch(ctx, title)
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			if isContextError(err) {
				runErr = err
				break
			}
			slog.Error("Failed to enrich title", "index", i, "id", title.ID, "title", title.Title, "error", err)
			failed++
			continue
		}

		pending[title.ID] = e
		changed++
		slog.Debug("Title enriched", "index", i, "id", title.ID, "score", e.auto.Score)

		if len(pending) >= t.Options.CheckpointEvery {
			if err := checkpoint(); err != nil {
				return err
			}
		}
	}

	if err := checkpoint(); err != nil {
		return errors.Join(runErr, err)
	}

	slog.Info("Task completed",
		"type", "Enrich",
		"duration", t.GetDuration(),
		"window", fmt.Sprintf("%d-%d", t.Options.Start, end),
		"changed", changed,
		"already_enriched", alreadyEnriched,
		"skipped", skipped,
		"errors", failed)

	return runErr
}

func (t *EnrichTask) fetch(ctx context.Context, title *store.Title) (enrichment, error) {
	media := mediaFor(title.Type)
	id := *title.TMDBID

	es, err := t.provider.Details(ctx, media, id, tmdb.LanguageES)
	if err != nil {
		return enrichment{}, fmt.Errorf("failed to fetch %s details: %w", tmdb.LanguageES, err)
	}
	en, err := t.provider.Details(ctx, media, id, tmdb.LanguageEN)
	if err != nil {
		return enrichment{}, fmt.Errorf("failed to fetch %s details: %w", tmdb.LanguageEN, err)
	}

	keywords, err := t.provider.Keywords(ctx, media, id)
	if err != nil {
		if ctx.Err() != nil {
			return enrichment{}, ctx.Err()
		}
		if isContextError(err) {
			return enrichment{}, err
		}
		slog.Warn("Keywords unavailable, continuing without them", "id", title.ID, "error", err)
		keywords = []string{}
	}

	overviewES := es.Overview
	if overviewES == "" {
		overviewES = title.Overview
	}

	e := enrichment{
		overview:    overviewES,
		overviewES:  overviewES,
		overviewEN:  en.Overview,
		genres:      nonNil(es.Genres),
		keywords:    nonNil(keywords),
		posterPath:  es.PosterPath,
		popularity:  es.Popularity,
		voteAverage: es.VoteAverage,
	}
	if es.VoteCount != nil {
		e.voteCount = *es.VoteCount
	}

	e.auto = t.scorer.Run(scoring.Input{
		SynopsisPrimary:   e.overviewES,
		SynopsisSecondary: e.overviewEN,
		Genres:            e.genres,
		Keywords:          e.keywords,
	})

	return e, nil
}

// applyEnrichments writes fetched metadata into the latest stored records.
// Score and flags are only replaced on records that are not manual at write
// time, so a review that landed during the run is never overwritten.
func applyEnrichments(pending map[string]enrichment) store.MutateFunc {
	return func(titles []store.Title) ([]store.Title, bool, error) {
		changed := false
		for i := range titles {
			e, ok := pending[titles[i].ID]
			if !ok {
				continue
			}
			e.applyTo(&titles[i])
			changed = true
		}
		return titles, changed, nil
	}
}

func (e enrichment) applyTo(t *store.Title) {
	overviewES, overviewEN := e.overviewES, e.overviewEN
	voteCount := e.voteCount

	t.Overview = e.overview
	t.OverviewES = &overviewES
	t.OverviewEN = &overviewEN
	t.Genres = append([]string{}, e.genres...)
	t.Keywords = append([]string{}, e.keywords...)
	t.Popularity = e.popularity
	t.VoteCount = &voteCount
	t.VoteAverage = e.voteAverage
	if e.posterPath != "" && t.PosterPath == nil {
		poster := e.posterPath
		t.PosterPath = &poster
	}

	if t.IsManual() {
		return
	}
	t.Score = e.auto.Score
	t.Flags = append([]string{}, e.auto.Flags...)
	t.ScoreSource = e.auto.Source
}

// isContextError reports errors caused by the run's context, including a
// deadline the provider knows it cannot meet before the context expires.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
