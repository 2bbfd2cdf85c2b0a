package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lysyi3m/wokeometro/app/scoring"
	"github.com/lysyi3m/wokeometro/app/store"
)

// RescoreTask recomputes auto scores from stored metadata after the rule set
// changed. It makes no network calls and leaves manual records alone.
type RescoreTask struct {
	Task
	titles store.TitleRepository
	scorer *scoring.Scorer
}

func NewRescoreTask(titles store.TitleRepository, scorer *scoring.Scorer) *RescoreTask {
	return &RescoreTask{
		Task:   NewTask(TaskTypeRescore),
		titles: titles,
		scorer: scorer,
	}
}

func (t *RescoreTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	updatedCount, manualCount, pendingCount := 0, 0, 0

	err := t.titles.Mutate(ctx, func(titles []store.Title) ([]store.Title, bool, error) {
		updatedCount, manualCount, pendingCount = 0, 0, 0

		for i := range titles {
			title := &titles[i]
			switch {
			case title.IsManual():
				manualCount++
				continue
			case !title.IsEnriched():
				pendingCount++
				continue
			}

			result := t.scorer.Run(title.ScoringInput())
			if title.Score == result.Score &&
				slices.Equal(title.Flags, result.Flags) &&
				title.ScoreSource == result.Source {
				continue
			}

			title.Score = result.Score
			title.Flags = result.Flags
			title.ScoreSource = result.Source
			updatedCount++
		}

		return titles, updatedCount > 0, nil
	})
	if err != nil {
		return fmt.Errorf("failed to rescore catalog: %w", err)
	}

	slog.Info("Task completed",
		"type", "Rescore",
		"duration", t.GetDuration(),
		"rules_version", t.scorer.Rules().Version,
		"updated", updatedCount,
		"manual", manualCount,
		"not_enriched", pendingCount)

	return nil
}
