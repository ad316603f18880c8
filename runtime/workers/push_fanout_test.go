package workers

import (
	"context"
	"log/slog"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/infrastructure/storage"
	"messenger/notify"
	"messenger/repositories"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelDebug))
}

type recordingDispatcher struct {
	mu      sync.Mutex
	changes []document.Change
}

func (d *recordingDispatcher) HandleChange(_ context.Context, change document.Change) (notify.Report, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, change)
	return notify.Report{}, true, nil
}

func (d *recordingDispatcher) seen() []document.Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]document.Change(nil), d.changes...)
}

func TestPushFanout_Follows_New_Messages(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := newTestStore(t)
	messages := repositories.NewMessageRepository(store, log, 0)
	dispatcher := &recordingDispatcher{}
	worker := NewPushFanout(log, store, dispatcher, domain.GroupMessagesRoot+"/")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// When messages are written in a group and in a direct chat
	req.Eventually(func() bool {
		_, _ = messages.Append(context.Background(), domain.GroupRef("g1"), domain.Message{Text: "hi", SenderID: "u1"})
		return len(dispatcher.seen()) > 0
	}, 2*time.Second, 20*time.Millisecond)
	_, err := messages.Append(context.Background(), domain.DirectRef("u1", "u2"), domain.Message{Text: "psst", SenderID: "u1"})
	req.NoError(err)

	// Then only the group root is followed
	for _, c := range dispatcher.seen() {
		req.Equal("groupMessages/g1/messages", c.Doc.Collection)
		req.Equal(document.Added, c.Kind)
	}

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("Push fan-out did not stop")
	}
}
