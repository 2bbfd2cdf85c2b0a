package review

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lysyi3m/wokeometro/app/scoring"
	"github.com/lysyi3m/wokeometro/app/store"
)

const MaxNotesLength = 2000

var (
	ErrPINNotConfigured = errors.New("ADMIN_PIN no configurado")
	ErrInvalidPIN       = errors.New("PIN incorrecto")
	ErrMissingID        = errors.New("Falta id")
)

// Update is an editor submission. A nil field means the field was absent from
// the request and the stored value is kept. A non-nil Flags pointing at an
// empty slice clears the stored flags.
type Update struct {
	ID    string
	PIN   string
	Score *float64
	Flags *[]string
	Notes *string
}

// Entry describes one accepted review, handed to the history recorder after
// the store write succeeded.
type Entry struct {
	TitleID        string
	PreviousScore  float64
	Score          float64
	PreviousSource scoring.Source
	Flags          []string
	Notes          string
	ReviewedAt     time.Time
}

type HistoryRecorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Reconciler struct {
	titles  store.TitleRepository
	pin     string
	history HistoryRecorder
	now     func() time.Time
}

func NewReconciler(titles store.TitleRepository, pin string, history HistoryRecorder) *Reconciler {
	return &Reconciler{
		titles:  titles,
		pin:     pin,
		history: history,
		now:     time.Now,
	}
}

// Apply authorizes the submission, merges it field by field into the stored
// record and persists the result. Checks run in order: PIN configured, PIN
// matches, id present, id exists.
func (r *Reconciler) Apply(ctx context.Context, u Update) (*store.Title, error) {
	if r.pin == "" {
		return nil, ErrPINNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(u.PIN), []byte(r.pin)) != 1 {
		return nil, ErrInvalidPIN
	}

	id := strings.TrimSpace(u.ID)
	if id == "" {
		return nil, ErrMissingID
	}

	var previousScore float64
	var previousSource scoring.Source
	reviewedAt := r.now().UTC()

	updated, err := r.titles.Update(ctx, id, func(t *store.Title) error {
		previousScore = t.Score
		previousSource = t.EffectiveSource()

		Merge(t, u)

		t.ScoreSource = scoring.SourceManual
		t.LastReviewedAt = &reviewedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Review applied",
		"id", updated.ID,
		"score", updated.Score,
		"flags", len(updated.Flags),
		"previous_source", string(previousSource))

	if r.history != nil {
		entry := Entry{
			TitleID:        updated.ID,
			PreviousScore:  previousScore,
			Score:          updated.Score,
			PreviousSource: previousSource,
			Flags:          updated.Flags,
			Notes:          updated.Notes,
			ReviewedAt:     reviewedAt,
		}
		if err := r.history.Record(ctx, entry); err != nil {
			slog.Error("Failed to record review history", "id", updated.ID, "error", err)
		}
	}

	return updated, nil
}

// Merge applies the present fields of u to t. Source stamping is left to the
// caller.
func Merge(t *store.Title, u Update) {
	if u.Score != nil && !math.IsNaN(*u.Score) && !math.IsInf(*u.Score, 0) {
		t.Score = scoring.Clamp(*u.Score)
	}
	if u.Flags != nil {
		t.Flags = NormalizeFlags(*u.Flags)
	}
	if u.Notes != nil {
		t.Notes = NormalizeNotes(*u.Notes)
	}
}

// NormalizeFlags trims labels, drops blanks and duplicates and keeps at most
// scoring.MaxFlags entries. The result is never nil.
func NormalizeFlags(flags []string) []string {
	out := make([]string, 0, min(len(flags), scoring.MaxFlags))
	seen := make(map[string]struct{}, len(flags))

	for _, f := range flags {
		if len(out) == scoring.MaxFlags {
			break
		}
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}

// NormalizeNotes trims the text and truncates it to MaxNotesLength characters.
func NormalizeNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) <= MaxNotesLength {
		return notes
	}
	runes := []rune(notes)
	return string(runes[:MaxNotesLength])
}
