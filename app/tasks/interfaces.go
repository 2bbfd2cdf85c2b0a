package tasks

import (
	"context"

	"github.com/lysyi3m/wokeometro/app/tmdb"
)

// MetadataProvider is the part of the TMDb client the tasks depend on.
type MetadataProvider interface {
	Details(ctx context.Context, media tmdb.MediaType, id int64, language string) (*tmdb.Details, error)
	Keywords(ctx context.Context, media tmdb.MediaType, id int64) ([]string, error)
	Discover(ctx context.Context, media tmdb.MediaType, filter tmdb.DiscoverFilter) (*tmdb.DiscoverPage, error)
}

var _ MetadataProvider = (*tmdb.Client)(nil)

// TaskRunnerInterface runs batch tasks one after another.
// Example usage:
//
//	runner := NewRunner()
//	err := runner.Run(ctx, NewDiscoverTask(...), NewEnrichTask(...))
type TaskRunnerInterface interface {
	Run(ctx context.Context, tasks ...TaskInterface) error
}
