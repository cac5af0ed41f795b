// Package worker runs background jobs from the SQLite job queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/mockmate/internal/history"
	"github.com/kalambet/mockmate/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// StatsApplier folds an interview score into a user's statistics.
type StatsApplier interface {
	ApplyScore(ctx context.Context, userID string, score float64) (history.Stats, error)
}

// Worker processes user_stats jobs.
type Worker struct {
	store  JobStore
	stats  StatsApplier
	poll   time.Duration
	logger *slog.Logger
}

// New creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func New(store JobStore, stats StatsApplier, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		stats:  stats,
		poll:   pollInterval,
		logger: logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{history.JobUserStats})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload history.UserStatsPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.UserID == "" {
		return fmt.Errorf("payload has no user_id")
	}

	st, err := w.stats.ApplyScore(ctx, payload.UserID, payload.Score)
	if err != nil {
		return fmt.Errorf("applying score: %w", err)
	}
	w.logger.Debug("user stats updated", "user_id", payload.UserID, "interviews", st.InterviewCount, "average", st.AverageScore)
	return nil
}
