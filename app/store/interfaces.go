package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("title not found")
	ErrMalformedStore = errors.New("malformed store: expected a JSON array of titles")
)

// UpdateFunc mutates a copy of the stored record. Returning an error aborts the
// write and leaves the store untouched.
type UpdateFunc func(t *Title) error

// MutateFunc receives the full catalog read from disk and returns the catalog
// to persist and whether anything changed.
type MutateFunc func(titles []Title) ([]Title, bool, error)

// TitleRepository is the record store contract consumed by the review policy
// and the batch tasks.
type TitleRepository interface {
	All() []Title
	Count() int
	Get(id string) (*Title, error)
	Find(id string) (*Title, error)
	Search(query string, opts SearchOptions) []Title

	Update(ctx context.Context, id string, fn UpdateFunc) (*Title, error)
	Mutate(ctx context.Context, fn MutateFunc) error
	Reload() error
}
