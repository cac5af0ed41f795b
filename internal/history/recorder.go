// Package history keeps a bounded per-user log of finished interviews and
// the user's running score statistics.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mockmate/internal/interview"
	"github.com/kalambet/mockmate/internal/storage"
)

// MaxRecords caps each user's log. The oldest record is evicted first.
const MaxRecords = 50

// JobUserStats is the job type that folds a score into the user's stats.
const JobUserStats = "user_stats"

const keyUserStats = "mockmate_user_stats"

func historyKey(userID string) string {
	return "mockmate_history_" + userID
}

// JobQueue is where stats updates are deferred to. Implemented by
// storage.Store.
type JobQueue interface {
	EnqueueJob(job storage.Job) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Recorder reads and writes history logs and user stats in a KV store.
type Recorder struct {
	kv     storage.KV
	jobs   JobQueue
	clock  Clock
	logger *slog.Logger

	mu sync.Mutex
}

// NewRecorder creates a Recorder. With a nil jobs queue, stats are
// updated inline by Record.
func NewRecorder(kv storage.KV, jobs JobQueue, logger *slog.Logger) *Recorder {
	return NewRecorderWithClock(kv, jobs, logger, realClock{})
}

// NewRecorderWithClock creates a Recorder with a custom clock (for testing).
func NewRecorderWithClock(kv storage.KV, jobs JobQueue, logger *slog.Logger, clock Clock) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{kv: kv, jobs: jobs, clock: clock, logger: logger}
}

// Record stores a history entry for a finished session and schedules the
// stats update when the score is positive.
func (r *Recorder) Record(ctx context.Context, userID string, s *interview.Session, eval interview.SessionEvaluation) (Record, error) {
	if s == nil {
		return Record{}, interview.ErrNoActiveSession
	}

	rec := newRecord(s, eval, r.clock.Now())

	r.mu.Lock()
	records, err := r.list(ctx, userID)
	if err == nil {
		records = append([]Record{rec}, records...)
		if len(records) > MaxRecords {
			records = records[:MaxRecords]
		}
		err = r.write(ctx, historyKey(userID), records)
	}
	r.mu.Unlock()
	if err != nil {
		return Record{}, err
	}

	r.logger.Info("interview recorded", "user_id", userID, "record_id", rec.ID, "session_id", s.ID, "score", rec.OverallScore)

	if rec.OverallScore > 0 {
		r.scheduleStats(ctx, userID, rec.OverallScore)
	}
	return rec, nil
}

func (r *Recorder) scheduleStats(ctx context.Context, userID string, score float64) {
	if r.jobs != nil {
		payload, err := json.Marshal(UserStatsPayload{UserID: userID, Score: score})
		if err == nil {
			err = r.jobs.EnqueueJob(storage.Job{
				ID:          uuid.NewString(),
				Type:        JobUserStats,
				PayloadJSON: string(payload),
			})
		}
		if err == nil {
			return
		}
		r.logger.Warn("enqueueing stats update failed, applying inline", "user_id", userID, "error", err)
	}
	if _, err := r.ApplyScore(ctx, userID, score); err != nil {
		r.logger.Error("updating user stats", "user_id", userID, "error", err)
	}
}

// List returns the user's records, newest first.
func (r *Recorder) List(ctx context.Context, userID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(ctx, userID)
}

// Get returns one record. A missing record wraps storage.ErrNotFound.
func (r *Recorder) Get(ctx context.Context, userID, id string) (Record, error) {
	records, err := r.List(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("history record %s: %w", id, storage.ErrNotFound)
}

// Delete removes one record. Deleting an unknown id is not an error.
func (r *Recorder) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.list(ctx, userID)
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	return r.write(ctx, historyKey(userID), kept)
}

// Clear removes the user's whole log. Stats are kept.
func (r *Recorder) Clear(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.kv.Delete(ctx, historyKey(userID)); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Stats returns the user's running statistics.
func (r *Recorder) Stats(ctx context.Context, userID string) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return all[userID], nil
}

// ApplyScore folds score into the user's average and bumps the count.
func (r *Recorder) ApplyScore(ctx context.Context, userID string, score float64) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := all[userID]
	total := float64(st.AverageScore) * float64(st.InterviewCount)
	st.InterviewCount++
	st.AverageScore = int(math.Round((total + score) / float64(st.InterviewCount)))
	all[userID] = st

	if err := r.write(ctx, keyUserStats, all); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (r *Recorder) list(ctx context.Context, userID string) ([]Record, error) {
	records := []Record{}
	if err := r.read(ctx, historyKey(userID), &records); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return records, nil
}

func (r *Recorder) stats(ctx context.Context) (map[string]Stats, error) {
	all := map[string]Stats{}
	if err := r.read(ctx, keyUserStats, &all); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return all, nil
}

func (r *Recorder) read(ctx context.Context, key string, v any) error {
	data, err := r.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (r *Recorder) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return r.kv.Set(ctx, key, data)
}
