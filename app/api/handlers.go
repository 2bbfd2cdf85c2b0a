package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/wokeometro/app/database"
	"github.com/lysyi3m/wokeometro/app/feed"
	"github.com/lysyi3m/wokeometro/app/review"
	"github.com/lysyi3m/wokeometro/app/scoring"
	"github.com/lysyi3m/wokeometro/app/store"
)

const DefaultFeedItems = 30

func NewHandler(titles store.TitleRepository, reviews ReviewApplier, history database.HistoryRepository,
	generator GeneratorInterface, flags *scoring.FlagCatalog, scorer *scoring.Scorer, version string) *Handler {
	return &Handler{
		titles:    titles,
		reviews:   reviews,
		history:   history,
		generator: generator,
		flags:     flags,
		scorer:    scorer,
		version:   version,
	}
}

// ApplyReview accepts an editor submission. Fields of the wrong JSON type are
// treated as absent rather than rejected.
func (h *Handler) ApplyReview(c *gin.Context) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": MsgInvalidJSON})
		return
	}

	update := parseUpdate(body)

	if _, err := h.reviews.Apply(c.Request.Context(), update); err != nil {
		status, message := reviewErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Review update failed", "operation", "apply_review", "id", update.ID, "error", err)
		} else {
			slog.Warn("Review update rejected", "id", update.ID, "status", status, "reason", message)
		}
		c.JSON(status, gin.H{"ok": false, "error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func parseUpdate(body map[string]json.RawMessage) review.Update {
	var u review.Update

	decodeField(body, "id", &u.ID)
	decodeField(body, "pin", &u.PIN)

	var score float64
	if decodeField(body, "woke_score", &score) {
		u.Score = &score
	}

	var rawFlags []any
	if decodeField(body, "flags", &rawFlags) && rawFlags != nil {
		flags := make([]string, 0, len(rawFlags))
		for _, f := range rawFlags {
			if s, ok := flagText(f); ok {
				flags = append(flags, s)
			}
		}
		u.Flags = &flags
	}

	var notes string
	if decodeField(body, "notes", &notes) {
		u.Notes = &notes
	}

	return u
}

// flagText coerces a scalar flag element to its text form. Objects and nested
// arrays carry no usable label and are dropped.
func flagText(v any) (string, bool) {
	switch f := v.(type) {
	case string:
		return f, true
	case float64:
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(f), true
	default:
		return "", false
	}
}

// decodeField reports whether key is present, not null and of the target type.
func decodeField(body map[string]json.RawMessage, key string, target any) bool {
	raw, ok := body[key]
	if !ok || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}

func reviewErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, review.ErrPINNotConfigured):
		return http.StatusInternalServerError, review.ErrPINNotConfigured.Error()
	case errors.Is(err, review.ErrInvalidPIN):
		return http.StatusUnauthorized, review.ErrInvalidPIN.Error()
	case errors.Is(err, review.ErrMissingID):
		return http.StatusBadRequest, review.ErrMissingID.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, MsgNotFound
	default:
		return http.StatusInternalServerError, MsgInternalError
	}
}

func (h *Handler) Search(c *gin.Context) {
	opts := store.SearchOptions{
		Kind:         parseKindFilter(c.Query("type")),
		ReviewedOnly: c.Query("reviewed") == "1",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		opts.Limit = limit
	}

	titles := h.titles.Search(c.Query("q"), opts)

	results := make([]SearchResult, 0, len(titles))
	for i := range titles {
		t := &titles[i]
		results = append(results, SearchResult{
			ID:          t.ID,
			Type:        t.Type,
			Title:       t.Title,
			Year:        t.Year,
			WokeScore:   t.Score,
			ScoreSource: string(t.EffectiveSource()),
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func parseKindFilter(value string) store.KindFilter {
	switch kind := store.Kind(strings.ToLower(strings.TrimSpace(value))); kind {
	case store.KindMovie, store.KindSeries:
		return store.KindFilter(kind)
	default:
		return store.KindAll
	}
}

func (h *Handler) GetTitle(c *gin.Context) {
	title, err := h.titles.Find(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": MsgNotFound})
			return
		}
		slog.Error("Store error", "operation", "find_title", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgInternalError})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"title":        title,
		"score_source": string(title.EffectiveSource()),
		"bucket":       scoring.BucketFor(title.Score),
	})
}

func (h *Handler) ListFlags(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"groups": h.flags.Grouped(),
		"total":  len(h.flags.All()),
	})
}

// PreviewScore computes the score an editor would submit: from a flag
// selection when flags are given, otherwise from a free-form value.
func (h *Handler) PreviewScore(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidJSON})
		return
	}

	switch {
	case req.Flags != nil:
		score := h.flags.WeightedScore(req.Flags)
		c.JSON(http.StatusOK, gin.H{"score": score, "bucket": scoring.BucketFor(score)})
	case req.Value != nil:
		score := scoring.ManualScore(*req.Value)
		c.JSON(http.StatusOK, gin.H{"score": score, "bucket": scoring.BucketFor(score)})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Se requiere flags o value"})
	}
}

func (h *Handler) ListTitleReviews(c *gin.Context) {
	title, err := h.titles.Find(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": MsgNotFound})
			return
		}
		slog.Error("Store error", "operation", "find_title", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgInternalError})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.history.ListByTitle(c.Request.Context(), title.ID, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_reviews", "id", title.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgInternalError})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      title.ID,
		"reviews": records,
		"total":   len(records),
	})
}

func (h *Handler) GetReviewedFeed(c *gin.Context) {
	records, err := h.history.ListRecent(c.Request.Context(), DefaultFeedItems)
	if err != nil {
		slog.Error("Database error", "operation", "list_recent_reviews", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	entries := make([]feed.Entry, 0, len(records))
	for _, record := range records {
		entry := feed.Entry{Review: record}
		if title, err := h.titles.Get(record.TitleID); err == nil {
			entry.Title = title
		}
		entries = append(entries, entry)
	}

	rss, err := h.generator.Run(entries)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(entries)))
	if len(records) > 0 {
		c.Header("X-Last-Updated", records[0].ReviewedAt.In(time.Local).Format(time.RFC3339))
	}

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":        "ok",
		"timestamp":     time.Now().In(time.Local).Format(time.RFC3339),
		"titles":        h.titles.Count(),
		"rules_version": h.scorer.Rules().Version,
		"version":       h.version,
	}

	if count, err := h.history.Count(c.Request.Context()); err == nil {
		health["reviews"] = count
	}

	c.JSON(http.StatusOK, health)
}
