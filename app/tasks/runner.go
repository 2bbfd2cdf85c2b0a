package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var _ TaskRunnerInterface = (*Runner)(nil)

const maxRetryDelay = 30 * time.Second

// Runner executes tasks sequentially. A failing task is retried with
// exponential backoff until its retry budget is spent; the first task that
// still fails stops the run.
type Runner struct {
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner() *Runner {
	return &Runner{sleep: sleepContext}
}

func (r *Runner) Run(ctx context.Context, tasks ...TaskInterface) error {
	for _, task := range tasks {
		if err := r.execute(ctx, task); err != nil {
			return fmt.Errorf("task %s failed: %w", task.GetType(), err)
		}
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, task TaskInterface) error {
	for {
		task.Start()

		err := task.Execute(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Task interrupted", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration())
			return err
		}

		slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if !task.CanRetry() {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
			return err
		}

		task.IncrementRetryCount()
		retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}

		slog.Warn("Task retry scheduled", "type", string(task.GetType()), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

		if err := r.sleep(ctx, retryDelay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
