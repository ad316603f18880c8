package workers

import (
	"context"
	"log/slog"
	"messenger/repositories"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestTokenCleanup_Sweep(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	users := repositories.NewUserRepository(newTestStore(t), log)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Given one fresh and one forgotten device
	req.NoError(users.ClaimUsername(ctx, "u1", "u1@x.io", "user1"))
	req.NoError(users.UpdateFields(ctx, "u1", repositories.DeviceTokenFields("fresh", now.Add(-24*time.Hour))))
	req.NoError(users.UpdateFields(ctx, "u1", repositories.DeviceTokenFields("old", now.Add(-31*24*time.Hour))))

	cleanup := NewTokenCleanup(log, users, 0, 0)
	cleanup.now = func() time.Time { return now }

	removed, err := cleanup.Sweep(ctx)

	// Then only the forgotten one is gone
	req.NoError(err)
	req.Equal(1, removed)
	user, _, err := users.Get(ctx, "u1")
	req.NoError(err)
	req.Len(user.DeviceTokens, 1)
	req.Contains(user.DeviceTokens, "fresh")

	removed, err = cleanup.Sweep(ctx)
	req.NoError(err)
	req.Zero(removed)
}
