package workers

import (
	"context"
	"log/slog"
	"messenger/repositories"
	"time"
)

const (
	DefaultCleanupInterval = 24 * time.Hour
	DefaultTokenMaxAge     = 30 * 24 * time.Hour
)

// TokenCleanup removes device tokens not used for maxAge, once at start then every interval.
type TokenCleanup struct {
	log      *slog.Logger
	users    repositories.IUserRepository
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

func NewTokenCleanup(log *slog.Logger, users repositories.IUserRepository, interval, maxAge time.Duration) *TokenCleanup {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultTokenMaxAge
	}
	return &TokenCleanup{log: log, users: users, interval: interval, maxAge: maxAge, now: time.Now}
}

func (w *TokenCleanup) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Sweep(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep returns how many tokens were removed.
func (w *TokenCleanup) Sweep(ctx context.Context) (int, error) {
	users, err := w.users.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := w.now().Add(-w.maxAge)
	removed := 0
	for _, u := range users {
		stale := u.StaleTokens(cutoff)
		if len(stale) == 0 {
			continue
		}
		if err = w.users.UpdateFields(ctx, u.ID, repositories.RemoveDeviceTokensFields(stale...)); err != nil {
			return removed, err
		}
		removed += len(stale)
	}
	w.log.Info("Old device tokens removed", "count", removed)
	return removed, nil
}
