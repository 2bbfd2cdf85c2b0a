package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/wokeometro/app/scoring"
)

type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

func (k Kind) Valid() bool {
	return k == KindMovie || k == KindSeries
}

const DefaultTitle = "Sin título"

// Title is one catalogued film or series as persisted in the JSON datastore.
type Title struct {
	ID     string `json:"id"`
	TMDBID *int64 `json:"tmdb_id,omitempty"`
	Type   Kind   `json:"type"`
	Title  string `json:"title"`
	Year   int    `json:"year"`

	Overview   string  `json:"overview"`
	OverviewES *string `json:"overview_es,omitempty"`
	OverviewEN *string `json:"overview_en,omitempty"`
	PosterPath *string `json:"poster_path,omitempty"`

	Genres   []string `json:"genres"`
	Keywords []string `json:"keywords"`

	Popularity  *float64 `json:"tmdb_popularity,omitempty"`
	VoteCount   *int64   `json:"tmdb_vote_count,omitempty"`
	VoteAverage *float64 `json:"tmdb_vote_average,omitempty"`

	Score          float64        `json:"woke_score"`
	Flags          []string       `json:"flags"`
	Notes          string         `json:"notes"`
	ScoreSource    scoring.Source `json:"score_source,omitempty"`
	Reviewed       bool           `json:"reviewed,omitempty"`
	LastReviewedAt *time.Time     `json:"last_reviewed_at,omitempty"`

	// Extra holds keys the catalog carries but this type does not model. They
	// are written back unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

// EffectiveSource reads an unscored record as auto.
func (t *Title) EffectiveSource() scoring.Source {
	if t.ScoreSource == "" {
		return scoring.SourceAuto
	}
	return t.ScoreSource
}

func (t *Title) IsManual() bool {
	return t.ScoreSource == scoring.SourceManual
}

func (t *Title) IsReviewed() bool {
	return t.Reviewed || t.IsManual()
}

// IsEnriched reports whether provider metadata has already been fetched.
// Genres and keywords are decoded as nil when absent from the document.
func (t *Title) IsEnriched() bool {
	return t.OverviewES != nil &&
		t.OverviewEN != nil &&
		t.Genres != nil &&
		t.Keywords != nil &&
		t.VoteCount != nil
}

// ScoringInput exposes the fields the auto-scorer reads.
func (t *Title) ScoringInput() scoring.Input {
	in := scoring.Input{
		SynopsisPrimary: t.Overview,
		Genres:          t.Genres,
		Keywords:        t.Keywords,
	}
	if t.OverviewES != nil {
		in.SynopsisPrimary = *t.OverviewES
	}
	if t.OverviewEN != nil {
		in.SynopsisSecondary = *t.OverviewEN
	}
	return in
}

// DeriveID builds the identifier assigned at first ingestion: the provider id
// when available, otherwise a slug of kind, year and title.
func DeriveID(t *Title) string {
	kind := t.Type
	if !kind.Valid() {
		kind = KindMovie
	}

	if t.TMDBID != nil {
		return fmt.Sprintf("tmdb_%s_%d", kind, *t.TMDBID)
	}

	title := t.Title
	if strings.TrimSpace(title) == "" {
		title = "untitled"
	}
	return fmt.Sprintf("local_%s_%d_%s", kind, t.Year, scoring.Slug(title))
}

// normalizeLoaded fills defaults on a record read from disk. An existing id is
// kept as is; an id is only derived when the record never had one.
func normalizeLoaded(t *Title) {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		t.ID = DeriveID(t)
	}
	if !t.Type.Valid() {
		t.Type = KindMovie
	}
	if t.Title == "" {
		t.Title = DefaultTitle
	}
	if t.Flags == nil {
		t.Flags = []string{}
	}
}
