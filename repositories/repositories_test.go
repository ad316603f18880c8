package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/errors"
	"messenger/infrastructure/storage"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestMessageRepository_Recent_Is_Chronological_And_Limited(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repo := NewMessageRepository(newTestStore(t), log, 3)
	ref := domain.DirectRef("alice", "bob")

	// Given five messages written in a row
	for i := 1; i <= 5; i++ {
		_, err := repo.Append(ctx, ref, domain.Message{Text: fmt.Sprintf("m%d", i), SenderID: "alice", SenderName: "alice"})
		req.NoError(err)
	}

	// When reading the window
	messages, err := repo.Recent(ctx, ref, 0)

	// Then the three most recent come back oldest first
	req.NoError(err)
	req.Equal([]string{"m3", "m4", "m5"}, lo.Map(messages, func(m domain.Message, _ int) string { return m.Text }))
	req.NotNil(messages[0].CreatedAt)
	req.Equal("alice", messages[0].SenderID)
}

func TestMessageRepository_Append_Keeps_Given_ID(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	ref := domain.GroupRef("g1")

	id, err := repo.Append(ctx, ref, domain.Message{ID: "m-1", Text: "hello", SenderID: "alice"})

	req.NoError(err)
	req.Equal("m-1", id)
	messages, err := repo.Recent(ctx, ref, 10)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("m-1", messages[0].ID)
}

func TestMessageRepository_Listen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewMessageRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug), 50)
	ref := domain.DirectRef("alice", "bob")
	_, err := repo.Append(ctx, ref, domain.Message{Text: "first", SenderID: "alice"})
	req.NoError(err)
	_, err = repo.Append(ctx, ref, domain.Message{Text: "second", SenderID: "bob"})
	req.NoError(err)

	var mu sync.Mutex
	var batches []MessageBatch
	sub, err := repo.Listen(ref, func(b MessageBatch) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, b)
	}, nil)
	req.NoError(err)
	defer sub.Stop()
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(batches)
	}

	// Then the initial batch is oldest first
	req.Eventually(func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	req.True(batches[0].Initial)
	req.Equal([]string{"first", "second"}, lo.Map(batches[0].Messages, func(m domain.Message, _ int) string { return m.Text }))
	mu.Unlock()

	// When a new message arrives
	id, err := repo.Append(ctx, ref, domain.Message{Text: "third", SenderID: "alice"})
	req.NoError(err)

	// Then only the change is delivered
	req.Eventually(func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	req.False(batches[1].Initial)
	req.Len(batches[1].Changes, 1)
	req.Equal(document.Added, batches[1].Changes[0].Kind)
	req.Equal(id, batches[1].Changes[0].Message.ID)
}

func TestGroupRepository_Create_And_Mutate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewGroupRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))

	id, err := repo.Create(ctx, domain.Group{Name: "hikers", CreatedBy: "c", Members: []string{"c"}})
	req.NoError(err)

	// When adding a member
	req.NoError(repo.Mutate(ctx, id, func(g domain.Group) (document.Fields, error) {
		return AddMemberFields("m"), nil
	}))

	// Then the member is in with a 0 counter
	group, err := repo.Get(ctx, id)
	req.NoError(err)
	req.Equal([]string{"c", "m"}, group.Members)
	count, ok := group.Unread["m"]
	req.True(ok)
	req.Equal(0, count)
	req.NotNil(group.CreatedAt)

	// When the check inside the transaction fails nothing is written
	err = repo.Mutate(ctx, id, func(g domain.Group) (document.Fields, error) {
		return nil, errors.ErrPermissionDenied
	})
	req.ErrorIs(err, errors.ErrPermissionDenied)

	// When removing the member
	req.NoError(repo.Mutate(ctx, id, func(g domain.Group) (document.Fields, error) {
		return RemoveMemberFields("m"), nil
	}))
	group, err = repo.Get(ctx, id)
	req.NoError(err)
	req.Equal([]string{"c"}, group.Members)
	_, ok = group.Unread["m"]
	req.False(ok)
}

func TestGroupRepository_Mutate_Missing_Group(t *testing.T) {
	req := require.New(t)
	repo := NewGroupRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))

	err := repo.Mutate(context.Background(), "nope", func(domain.Group) (document.Fields, error) {
		return nil, nil
	})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestGroupRepository_ListForUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewGroupRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	_, err := repo.Create(ctx, domain.Group{Name: "one", CreatedBy: "a", Members: []string{"a", "b"}})
	req.NoError(err)
	_, err = repo.Create(ctx, domain.Group{Name: "two", CreatedBy: "b", Members: []string{"b"}})
	req.NoError(err)

	groups, err := repo.ListForUser(ctx, "a")

	req.NoError(err)
	req.Len(groups, 1)
	req.Equal("one", groups[0].Name)
}

func TestUserRepository_ClaimUsername(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given alice owns "alice"
	req.NoError(repo.ClaimUsername(ctx, "u1", "a@x.io", "alice"))

	// When someone else claims it
	err := repo.ClaimUsername(ctx, "u2", "b@x.io", "alice")

	// Then it is rejected
	req.ErrorIs(err, errors.ErrUsernameTaken)

	// And the profile carries default settings
	user, found, err := repo.Get(ctx, "u1")
	req.NoError(err)
	req.True(found)
	req.Equal("alice", user.Username)
	req.True(user.NotificationsEnabled)
	req.True(user.Settings.Enabled)
	req.NotNil(user.CreatedAt)

	// When alice renames herself the old name is released
	req.NoError(repo.ClaimUsername(ctx, "u1", "a@x.io", "alice2"))
	req.NoError(repo.ClaimUsername(ctx, "u2", "b@x.io", "alice"))
	found2, ok, err := repo.FindByUsername(ctx, "alice")
	req.NoError(err)
	req.True(ok)
	req.Equal("u2", found2.ID)
}

func TestUserRepository_Notification_Fields(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewUserRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(repo.ClaimUsername(ctx, "u1", "a@x.io", "alice"))
	now := time.UnixMilli(1_700_000_000_000).UTC()
	until := now.Add(time.Hour)

	req.NoError(repo.UpdateFields(ctx, "u1", MuteFields("a_b", until)))
	req.NoError(repo.UpdateFields(ctx, "u1", DoNotDisturbFields(true, nil)))
	req.NoError(repo.UpdateFields(ctx, "u1", DeviceTokenFields("tok-1", now)))

	user, _, err := repo.Get(ctx, "u1")
	req.NoError(err)
	req.Equal(until, user.Settings.ChatMuted["a_b"])
	req.True(user.Settings.DoNotDisturbActive(now))
	req.Nil(user.Settings.DoNotDisturbUntil)
	req.Equal(now, *user.DeviceTokens["tok-1"].LastUsed)

	req.NoError(repo.UpdateFields(ctx, "u1", UnmuteFields("a_b")))
	req.NoError(repo.UpdateFields(ctx, "u1", RemoveDeviceTokensFields("tok-1")))
	user, _, err = repo.Get(ctx, "u1")
	req.NoError(err)
	req.NotContains(user.Settings.ChatMuted, "a_b")
	req.Empty(user.DeviceTokens)
}

func TestAccountRepository_Create_Is_Unique_Per_Email(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewAccountRepository(newTestStore(t), logs.GetLoggerFromLevel(slog.LevelDebug))

	id, created, err := repo.Create(ctx, "a@x.io", "hash")
	req.NoError(err)
	req.True(created)
	req.NotEmpty(id)

	_, created, err = repo.Create(ctx, "a@x.io", "other")
	req.NoError(err)
	req.False(created)

	account, found, err := repo.GetByEmail(ctx, "a@x.io")
	req.NoError(err)
	req.True(found)
	req.Equal(id, account.UserID)
	req.Equal("hash", account.PasswordHash)
}

func TestConversationRepository_ListDirect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewConversationRepository(store, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(store.Set(ctx, domain.ChatsCollection, "a_b", document.Fields{
		"participants":    []string{"a", "b"},
		"lastMessage":     "old",
		"lastMessageTime": document.ServerTimestamp(),
		"unreadCount":     map[string]any{"a": 2, "b": 0},
	}, false))
	req.NoError(store.Set(ctx, domain.ChatsCollection, "a_c", document.Fields{
		"participants":    []string{"a", "c"},
		"lastMessage":     "new",
		"lastMessageTime": document.ServerTimestamp(),
	}, false))

	conversations, err := repo.ListDirect(ctx, "a")

	req.NoError(err)
	req.Len(conversations, 2)
	req.Equal("new", conversations[0].LastMessage)
	req.Equal(2, conversations[1].Unread.Get("a"))
	req.Equal(domain.Direct, conversations[1].Ref.Kind)

	conversation, found, err := repo.Get(ctx, domain.DirectRef("b", "a"))
	req.NoError(err)
	req.True(found)
	req.Equal([]string{"a", "b"}, conversation.Participants)
}
