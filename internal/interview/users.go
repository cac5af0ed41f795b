package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// StoreOpener opens the session store of one user.
type StoreOpener func(ctx context.Context, userID string) (SessionStore, error)

// Users hands out one Orchestrator per user id. Each user has their own
// current session, current resume and busy lock.
type Users struct {
	open    StoreOpener
	gateway Gateway
	logger  *slog.Logger

	mu     sync.Mutex
	byUser map[string]*Orchestrator
}

func NewUsers(open StoreOpener, gateway Gateway, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}
	return &Users{
		open:    open,
		gateway: gateway,
		logger:  logger,
		byUser:  make(map[string]*Orchestrator),
	}
}

// For returns the orchestrator of userID, opening its store on first use.
func (u *Users) For(ctx context.Context, userID string) (*Orchestrator, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if o, ok := u.byUser[userID]; ok {
		return o, nil
	}
	store, err := u.open(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("opening sessions of %q: %w", userID, err)
	}
	o := New(store, u.gateway, u.logger.With("user_id", userID))
	u.byUser[userID] = o
	return o, nil
}
