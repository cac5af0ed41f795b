package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested key or record does not exist.
var ErrNotFound = errors.New("not found")

// KV is the durable key-value contract the interview core persists through.
// Values are opaque JSON blobs. There is no multi-key atomicity; every Set
// must be durable by the time it returns.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Job is a unit of background work in the SQLite job queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
