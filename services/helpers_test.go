package services

import (
	"context"
	"log/slog"
	"messenger/infrastructure/storage"
	"messenger/repositories"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store         *storage.Store
	log           *slog.Logger
	users         repositories.UserRepository
	groups        repositories.GroupRepository
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := storage.NewBadgerStore(db, log)
	return fixture{
		store:         store,
		log:           log,
		users:         repositories.NewUserRepository(store, log),
		groups:        repositories.NewGroupRepository(store, log),
		messages:      repositories.NewMessageRepository(store, log, 50),
		conversations: repositories.NewConversationRepository(store, log),
	}
}

// withProfiles creates a profile per id, the username being the id.
func (f fixture) withProfiles(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.users.ClaimUsername(context.Background(), id, id+"@x.io", id))
	}
}
