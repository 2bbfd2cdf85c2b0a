package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/wokeometro/app/review"
)

var _ HistoryRepository = (*historyRepository)(nil)

// Fixed-width UTC layout so that reviewed_at orders lexically.
const reviewedAtLayout = "2006-01-02T15:04:05.000000000Z"

const DefaultHistoryLimit = 50

type historyRepository struct {
	db *DB
}

func NewHistoryRepository(db *DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Record(ctx context.Context, entry review.Entry) error {
	flags := entry.Flags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}

	reviewedAt := entry.ReviewedAt
	if reviewedAt.IsZero() {
		reviewedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO review_history (
			id, title_id, previous_score, score, previous_source, flags, notes, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), entry.TitleID, entry.PreviousScore, entry.Score,
		string(entry.PreviousSource), string(flagsJSON), entry.Notes,
		reviewedAt.UTC().Format(reviewedAtLayout))
	if err != nil {
		return fmt.Errorf("failed to insert review history: %w", err)
	}

	return nil
}

func (r *historyRepository) ListByTitle(ctx context.Context, titleID string, limit int) ([]ReviewRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title_id, previous_score, score, previous_source, flags, notes, reviewed_at
		FROM review_history
		WHERE title_id = ?
		ORDER BY reviewed_at DESC, id
		LIMIT ?
	`, titleID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list review history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *historyRepository) ListRecent(ctx context.Context, limit int) ([]ReviewRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title_id, previous_score, score, previous_source, flags, notes, reviewed_at
		FROM review_history
		ORDER BY reviewed_at DESC, id
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reviews: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *historyRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM review_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count review history: %w", err)
	}
	return count, nil
}

func scanRecords(rows *sql.Rows) ([]ReviewRecord, error) {
	records := make([]ReviewRecord, 0)
	for rows.Next() {
		var rec ReviewRecord
		var flagsJSON, reviewedAt string

		err := rows.Scan(&rec.ID, &rec.TitleID, &rec.PreviousScore, &rec.Score,
			&rec.PreviousSource, &flagsJSON, &rec.Notes, &reviewedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}

		if err := json.Unmarshal([]byte(flagsJSON), &rec.Flags); err != nil {
			return nil, fmt.Errorf("failed to decode flags for review %s: %w", rec.ID, err)
		}
		if rec.Flags == nil {
			rec.Flags = []string{}
		}

		rec.ReviewedAt, err = time.Parse(reviewedAtLayout, reviewedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reviewed_at for review %s: %w", rec.ID, err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review rows: %w", err)
	}

	return records, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
