package database

import (
	"context"

	"github.com/lysyi3m/wokeometro/app/review"
)

type HistoryRepository interface {
	Record(ctx context.Context, entry review.Entry) error
	ListByTitle(ctx context.Context, titleID string, limit int) ([]ReviewRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ReviewRecord, error)
	Count(ctx context.Context) (int, error)
}

var _ review.HistoryRecorder = (HistoryRepository)(nil)
