package tmdb

import (
	"fmt"
	"strconv"
)

type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

const (
	LanguageES = "es-ES"
	LanguageEN = "en-US"
)

// StatusError is returned when the API answers with a non-2xx status after the
// retry budget is spent, or immediately for statuses that are never retried.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: %s -> %s", e.Status, e.Body)
}

type Details struct {
	Overview    string
	Genres      []string
	PosterPath  string
	Popularity  *float64
	VoteCount   *int64
	VoteAverage *float64
}

type DiscoverFilter struct {
	Year           int
	Page           int
	Language       string
	MinVoteCount   int
	MinVoteAverage float64
}

type DiscoverPage struct {
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
	Results    []DiscoverResult `json:"results"`
}

type DiscoverResult struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Name         string   `json:"name"`
	ReleaseDate  string   `json:"release_date"`
	FirstAirDate string   `json:"first_air_date"`
	Overview     string   `json:"overview"`
	PosterPath   string   `json:"poster_path"`
	Popularity   *float64 `json:"popularity"`
	VoteCount    *int64   `json:"vote_count"`
	VoteAverage  *float64 `json:"vote_average"`
}

// DisplayTitle picks title for movies and name for TV.
func (r DiscoverResult) DisplayTitle(media MediaType) string {
	if media == MediaTV {
		return r.Name
	}
	return r.Title
}

// Year is the release (or first air) year, 0 when unknown.
func (r DiscoverResult) Year(media MediaType) int {
	date := r.ReleaseDate
	if media == MediaTV {
		date = r.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

type detailsResponse struct {
	Overview string `json:"overview"`
	Genres   []struct {
		Name string `json:"name"`
	} `json:"genres"`
	PosterPath  string   `json:"poster_path"`
	Popularity  *float64 `json:"popularity"`
	VoteCount   *int64   `json:"vote_count"`
	VoteAverage *float64 `json:"vote_average"`
}

type keywordName struct {
	Name string `json:"name"`
}

// Movies list keywords under "keywords", TV under "results".
type keywordsResponse struct {
	Keywords []keywordName `json:"keywords"`
	Results  []keywordName `json:"results"`
}
