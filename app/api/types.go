package api

import (
	"context"

	"github.com/lysyi3m/wokeometro/app/database"
	"github.com/lysyi3m/wokeometro/app/feed"
	"github.com/lysyi3m/wokeometro/app/review"
	"github.com/lysyi3m/wokeometro/app/scoring"
	"github.com/lysyi3m/wokeometro/app/store"
)

const (
	AdminPINHeader = "X-Admin-Pin"

	MsgNotFound      = "No encontrado"
	MsgInternalError = "Error interno"
	MsgInvalidJSON   = "JSON inválido"
)

type GeneratorInterface interface {
	Run(entries []feed.Entry) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type ReviewApplier interface {
	Apply(ctx context.Context, u review.Update) (*store.Title, error)
}

var _ ReviewApplier = (*review.Reconciler)(nil)

// SearchResult is the public projection of a title: editorial fields such as
// notes and flags are never exposed by search.
type SearchResult struct {
	ID          string     `json:"id"`
	Type        store.Kind `json:"type"`
	Title       string     `json:"title"`
	Year        int        `json:"year"`
	WokeScore   float64    `json:"woke_score"`
	ScoreSource string     `json:"score_source"`
}

type previewRequest struct {
	Flags []string `json:"flags"`
	Value *float64 `json:"value"`
}

type Handler struct {
	titles    store.TitleRepository
	reviews   ReviewApplier
	history   database.HistoryRepository
	generator GeneratorInterface
	flags     *scoring.FlagCatalog
	scorer    *scoring.Scorer
	version   string
}
