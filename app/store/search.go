package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lysyi3m/wokeometro/app/scoring"
)

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 100
)

// KindFilter restricts search results to one kind; empty or "all" matches both.
type KindFilter string

const KindAll KindFilter = "all"

type SearchOptions struct {
	Kind         KindFilter
	ReviewedOnly bool
	Limit        int
}

// EffectiveLimit applies the default and the hard cap.
func (o SearchOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultSearchLimit
	}
	if o.Limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return o.Limit
}

// Search matches the normalized query as a substring of "title year kind".
// An empty query returns no results. Results are ordered by popularity, then
// year, both descending.
func (s *FileStore) Search(query string, opts SearchOptions) []Title {
	q := scoring.Normalize(query)
	if q == "" {
		return []Title{}
	}

	s.mu.RLock()
	matches := make([]Title, 0)
	for i := range s.titles {
		t := &s.titles[i]
		if !matchesFilters(t, opts) {
			continue
		}
		if strings.Contains(searchHaystack(t), q) {
			matches = append(matches, t.clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		pi, pj := popularityOf(&matches[i]), popularityOf(&matches[j])
		if pi != pj {
			return pi > pj
		}
		return matches[i].Year > matches[j].Year
	})

	if limit := opts.EffectiveLimit(); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func matchesFilters(t *Title, opts SearchOptions) bool {
	if opts.Kind != "" && opts.Kind != KindAll && string(t.Type) != string(opts.Kind) {
		return false
	}
	if opts.ReviewedOnly && !t.IsReviewed() {
		return false
	}
	return true
}

func searchHaystack(t *Title) string {
	return scoring.Normalize(fmt.Sprintf("%s %d %s", t.Title, t.Year, t.Type))
}

// popularityOf ranks titles without a popularity value below every scored one.
func popularityOf(t *Title) float64 {
	if t.Popularity == nil {
		return -1
	}
	return *t.Popularity
}
