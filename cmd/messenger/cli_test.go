package main

import (
	"bytes"
	"context"
	"log/slog"
	"messenger/auth"
	"messenger/domain/event"
	"messenger/errors"
	"messenger/infrastructure/search"
	"messenger/infrastructure/storage"
	"messenger/repositories"
	"messenger/runtime"
	"messenger/services"
	"messenger/sink"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// synchronous renders events as soon as they are published.
type synchronous struct {
	term *sink.Terminal
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (s synchronous) Publish(e event.DomainEvent) bool {
	_ = s.term.Consume(context.Background(), e)
	return true
}

func newTestCLI(t *testing.T) (*CLI, func() string) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := storage.NewBadgerStore(db, log)
	index, err := search.NewInMemoryUserIndex(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	users := repositories.NewUserRepository(store, log)
	groups := repositories.NewGroupRepository(store, log)
	messages := repositories.NewMessageRepository(store, log, repositories.DefaultMessageWindow)
	conversations := repositories.NewConversationRepository(store, log)
	profiles := services.NewProfileService(users, conversations, groups, index, log)
	authService := services.NewAuthService(repositories.NewAccountRepository(store, log), auth.NewTokenIssuer("test-secret", time.Hour), log)

	buf := &syncBuffer{}
	term := sink.NewTerminal(buf)
	app := runtime.NewApp(log, authService, runtime.SessionDeps{
		Chat:          services.NewChatService(messages, groups, services.NewUnreadTracker(store, log, services.ModeTransactional), log),
		Profiles:      profiles,
		Messages:      messages,
		Conversations: conversations,
		Groups:        groups,
		Users:         users,
		Events:        synchronous{term: term},
		Log:           log,
	})
	app.Start()
	t.Cleanup(app.Stop)

	cli := newCLI(app, authService,
		services.NewGroupService(groups, users, messages, log),
		services.NewNotificationSettingsService(users, log),
		profiles, users, term)
	return cli, buf.String
}

func TestCLI_Requires_A_Session(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	cli, _ := newTestCLI(t)

	req.ErrorIs(cli.Execute(ctx, "hello"), errors.ErrNotAuthenticated)
	req.ErrorIs(cli.Execute(ctx, "/dm bob"), errors.ErrNotAuthenticated)
	req.ErrorContains(cli.Execute(ctx, "/dance"), "unknown command")
	req.ErrorContains(cli.Execute(ctx, "/"), "empty command")
	req.ErrorContains(cli.Execute(ctx, "/login alice@x.io"), "usage")
	req.ErrorIs(cli.Execute(ctx, "/quit"), errQuit)
	req.NoError(cli.Execute(ctx, "   "))
}

func TestCLI_Group_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	cli, output := newTestCLI(t)

	// Given a signed in user with a username
	req.NoError(cli.Execute(ctx, "/register alice@x.io secret123"))
	req.Contains(output(), "Signed in as")
	req.NoError(cli.Execute(ctx, "/username Alice"))
	req.Contains(output(), "You are @alice")

	// When creating a group and writing in it
	req.NoError(cli.Execute(ctx, "/group create the crew"))
	req.Contains(output(), `Group "the crew" created`)
	req.NoError(cli.Execute(ctx, "hello crew"))

	// Then the message is rendered, first pending
	req.Contains(output(), "[sending] alice: hello crew")
	req.Eventually(func() bool { return strings.Contains(output(), "✓") }, 2*time.Second, 5*time.Millisecond)

	// And muting works on the open conversation
	req.NoError(cli.Execute(ctx, "/mute forever"))
	req.Contains(output(), "Muted until you unmute")
	req.ErrorIs(cli.Execute(ctx, "/mute 2y"), errors.ErrInvalidMute)
	req.NoError(cli.Execute(ctx, "/unmute"))

	req.NoError(cli.Execute(ctx, "/chats"))
	req.Contains(output(), "the crew")

	req.NoError(cli.Execute(ctx, "/logout"))
	req.Contains(output(), "Signed out")
	req.ErrorIs(cli.Execute(ctx, "/chats"), errors.ErrNotAuthenticated)
}

func TestCLI_Direct_Conversation_Needs_A_Known_Username(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	cli, output := newTestCLI(t)
	req.NoError(cli.Execute(ctx, "/register bob@x.io secret123"))
	req.NoError(cli.Execute(ctx, "/username bob"))
	req.NoError(cli.Execute(ctx, "/logout"))
	req.NoError(cli.Execute(ctx, "/register alice@x.io secret123"))
	req.NoError(cli.Execute(ctx, "/username alice"))

	req.ErrorIs(cli.Execute(ctx, "/dm @nobody"), errors.ErrNotFound)
	req.ErrorIs(cli.Execute(ctx, "/mute 1h"), errors.ErrNoOpenConversation)

	req.NoError(cli.Execute(ctx, "/users"))
	req.Contains(output(), "@bob")
	req.NoError(cli.Execute(ctx, "/dm @bob"))
	req.NoError(cli.Execute(ctx, "/send hi bob"))
	req.Contains(output(), "alice: hi bob")
}
