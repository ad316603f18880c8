package storage

import (
	"context"
	"log/slog"
	"messenger/contract"
	"messenger/domain/document"
	"messenger/errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelDebug))
}

// recorder collects snapshots delivered to a live query.
type recorder struct {
	mu        sync.Mutex
	snapshots []document.Snapshot
}

func (r *recorder) onSnapshot(s document.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recorder) last() document.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

func TestStore_Get_Missing_Document(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	doc, err := store.Get(context.Background(), "users", "alice")

	req.NoError(err)
	req.False(doc.Exists)
	req.Equal("alice", doc.ID)
}

func TestStore_Set_Merge_And_Replace(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	// Given a document with two fields
	req.NoError(store.Set(ctx, "users", "alice", document.Fields{"username": "alice", "email": "a@x.io"}, false))
	first, err := store.Get(ctx, "users", "alice")
	req.NoError(err)

	// When merging a third one
	req.NoError(store.Set(ctx, "users", "alice", document.Fields{"settings": map[string]any{"sound": true}}, true))

	// Then every field is kept and the create time does not move
	merged, err := store.Get(ctx, "users", "alice")
	req.NoError(err)
	req.Equal("alice", merged.Fields.String("username"))
	req.Equal("a@x.io", merged.Fields.String("email"))
	sound, ok := merged.Fields.Bool("settings.sound")
	req.True(ok)
	req.True(sound)
	req.Equal(first.CreateTime, merged.CreateTime)
	req.True(merged.UpdateTime.After(first.UpdateTime))

	// When replacing without merge
	req.NoError(store.Set(ctx, "users", "alice", document.Fields{"username": "alice"}, false))

	// Then the other fields are gone
	replaced, err := store.Get(ctx, "users", "alice")
	req.NoError(err)
	req.False(replaced.Fields.Has("email"))
	req.False(replaced.Fields.Has("settings"))
}

func TestStore_Update_Requires_Existing_Document(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	err := store.Update(context.Background(), "chats", "a_b", document.Fields{"unreadCount.a": 1})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestStore_Update_Transforms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	req.NoError(store.Set(ctx, "groups", "g1", document.Fields{
		"members":     []string{"alice"},
		"unreadCount": map[string]any{"alice": 0},
	}, false))

	// When the document is updated with transforms
	req.NoError(store.Update(ctx, "groups", "g1", document.Fields{
		"members":         document.ArrayUnion("bob", "alice"),
		"unreadCount.bob": document.Increment(2),
		"lastMessageTime": document.ServerTimestamp(),
	}))

	// Then transforms are resolved against the stored values
	doc, err := store.Get(ctx, "groups", "g1")
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, doc.Fields.Strings("members"))
	req.Equal(2, doc.Fields.Int("unreadCount.bob"))
	req.Equal(0, doc.Fields.Int("unreadCount.alice"))
	req.NotNil(doc.Fields.Time("lastMessageTime"))
	req.Equal(doc.UpdateTime, *doc.Fields.Time("lastMessageTime"))

	// When removing a member and deleting a field
	req.NoError(store.Update(ctx, "groups", "g1", document.Fields{
		"members":         document.ArrayRemove("alice"),
		"unreadCount.bob": document.DeleteField(),
	}))
	doc, err = store.Get(ctx, "groups", "g1")
	req.NoError(err)
	req.Equal([]string{"bob"}, doc.Fields.Strings("members"))
	req.False(doc.Fields.Has("unreadCount.bob"))
}

func TestStore_Add_And_Delete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Add(ctx, "directMessages/a_b/messages", document.Fields{"text": "hi"})
	req.NoError(err)
	req.NotEmpty(id)

	doc, err := store.Get(ctx, "directMessages/a_b/messages", id)
	req.NoError(err)
	req.True(doc.Exists)

	req.NoError(store.Delete(ctx, "directMessages/a_b/messages", id))
	doc, err = store.Get(ctx, "directMessages/a_b/messages", id)
	req.NoError(err)
	req.False(doc.Exists)

	// Deleting twice is not an error
	req.NoError(store.Delete(ctx, "directMessages/a_b/messages", id))
}

func TestStore_Query_Skips_Sub_Collections(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	req.NoError(store.Set(ctx, "chats", "a_b", document.Fields{"participants": []string{"a", "b"}}, false))
	req.NoError(store.Set(ctx, "chats", "a_c", document.Fields{"participants": []string{"a", "c"}}, false))
	req.NoError(store.Set(ctx, "chats/a_b/extra", "x", document.Fields{"participants": []string{"a"}}, false))

	docs, err := store.Query(ctx, document.NewQuery("chats").Where("participants", document.OpArrayContains, "b"))

	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("a_b", docs[0].ID)

	all, err := store.Query(ctx, document.NewQuery("chats").Where("participants", document.OpArrayContains, "a"))
	req.NoError(err)
	req.Len(all, 2)
}

func TestStore_Listen_Delivers_Initial_Then_Changes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	collection := "directMessages/a_b/messages"
	_, err := store.Add(ctx, collection, document.Fields{"text": "first", "createdAt": document.ServerTimestamp()})
	req.NoError(err)

	// Given a live query ordered by creation time
	rec := &recorder{}
	q := document.NewQuery(collection).Order("createdAt", document.Descending).WithLimit(50)
	sub, err := store.Listen(q, rec.onSnapshot, nil)
	req.NoError(err)
	defer sub.Stop()

	// Then the initial snapshot holds the existing document
	req.Eventually(func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	initial := rec.last()
	req.True(initial.Initial)
	req.Len(initial.Changes, 1)
	req.Equal(document.Added, initial.Changes[0].Kind)

	// When a message is added
	id, err := store.Add(ctx, collection, document.Fields{"text": "second", "createdAt": document.ServerTimestamp()})
	req.NoError(err)

	// Then it is reported as added
	req.Eventually(func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	added := rec.last()
	req.False(added.Initial)
	req.Len(added.Changes, 1)
	req.Equal(document.Added, added.Changes[0].Kind)
	req.Equal(id, added.Changes[0].Doc.ID)
	req.Equal(id, added.Docs[0].ID)

	// When it is modified
	req.NoError(store.Update(ctx, collection, id, document.Fields{"text": "edited"}))

	// Then it is reported as modified
	req.Eventually(func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)
	req.Equal(document.Modified, rec.last().Changes[0].Kind)
}

func TestStore_Listen_Stop_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	rec := &recorder{}
	sub, err := store.Listen(document.NewQuery("chats"), rec.onSnapshot, nil)
	req.NoError(err)
	req.Eventually(func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	// When stopping twice
	sub.Stop()
	sub.Stop()

	// Then later writes are not delivered
	req.NoError(store.Set(ctx, "chats", "a_b", document.Fields{"participants": []string{"a", "b"}}, false))
	req.Never(func() bool { return rec.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestStore_Listen_Stop_From_Callback(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	done := make(chan struct{})
	var sub contract.Subscription
	var mu sync.Mutex

	mu.Lock()
	sub, err := store.Listen(document.NewQuery("chats"), func(document.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		sub.Stop()
		close(done)
	}, nil)
	mu.Unlock()
	req.NoError(err)

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("callback never ran")
	}
}

func TestStore_RunTransaction_Has_No_Lost_Increments(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	req.NoError(store.Set(ctx, "chats", "a_b", document.Fields{"unreadCount": map[string]any{"b": 0}}, false))

	// When many writers read then increment the same counter
	const writers = 50
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunTransaction(ctx, func(tx contract.ITransaction) error {
				doc, err := tx.Get("chats", "a_b")
				if err != nil {
					return err
				}
				current := doc.Fields.Int("unreadCount.b")
				return tx.Update("chats", "a_b", document.Fields{"unreadCount.b": current + 1})
			})
			req.NoError(err)
		}()
	}
	wg.Wait()

	// Then every increment is kept
	doc, err := store.Get(ctx, "chats", "a_b")
	req.NoError(err)
	req.Equal(writers, doc.Fields.Int("unreadCount.b"))
}

// conflicting loses the first conflicts commits against a concurrent writer.
type conflicting struct {
	engine
	mu        sync.Mutex
	conflicts int
	attempts  int
	err       error
}

func (c *conflicting) update(ctx context.Context, fn func(kv kvTxn) error) error {
	c.mu.Lock()
	c.attempts++
	lose := c.attempts <= c.conflicts
	c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if lose {
		return errors.ErrTxnConflict
	}
	return c.engine.update(ctx, fn)
}

func TestStore_Write_Retries_Conflicts_With_Backoff(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)
	engine := &conflicting{engine: store.engine, conflicts: 3}
	store.engine = engine
	store.SetRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond})

	// When the first three commits conflict
	start := time.Now()
	req.NoError(store.Set(ctx, "users", "alice", document.Fields{"username": "alice"}, false))

	// Then the fourth attempt lands after waiting between attempts
	req.Equal(4, engine.attempts)
	req.GreaterOrEqual(time.Since(start), 15*time.Millisecond)
	doc, err := store.Get(ctx, "users", "alice")
	req.NoError(err)
	req.True(doc.Exists)
}

func TestStore_Write_Gives_Up_After_Max_Attempts(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	engine := &conflicting{engine: store.engine, conflicts: 100}
	store.engine = engine
	store.SetRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	err := store.Set(context.Background(), "users", "alice", document.Fields{"username": "alice"}, false)

	req.ErrorIs(err, errors.ErrTxnConflict)
	req.Equal(3, engine.attempts)
}

func TestStore_Write_Does_Not_Retry_Other_Errors(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	engine := &conflicting{engine: store.engine, err: errors.ErrStoreClosed}
	store.engine = engine

	err := store.Set(context.Background(), "users", "alice", document.Fields{"username": "alice"}, false)

	req.ErrorIs(err, errors.ErrStoreClosed)
	req.Equal(1, engine.attempts)
}

func TestStore_Write_Stops_Retrying_When_Context_Is_Done(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	engine := &conflicting{engine: store.engine, conflicts: 100}
	store.engine = engine
	store.SetRetryPolicy(RetryPolicy{MaxAttempts: 100, BaseDelay: 20 * time.Millisecond, MaxDelay: 20 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := store.Set(ctx, "users", "alice", document.Fields{"username": "alice"}, false)

	req.ErrorIs(err, context.DeadlineExceeded)
	req.Less(engine.attempts, 10)
}

func TestStore_RunTransaction_Reads_Its_Own_Writes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	err := store.RunTransaction(ctx, func(tx contract.ITransaction) error {
		if err := tx.Set("users", "alice", document.Fields{"username": "alice"}, false); err != nil {
			return err
		}
		doc, err := tx.Get("users", "alice")
		if err != nil {
			return err
		}
		req.True(doc.Exists)
		return nil
	})

	req.NoError(err)
}

func TestStore_RunTransaction_Error_Discards_Writes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newTestStore(t)

	err := store.RunTransaction(ctx, func(tx contract.ITransaction) error {
		if err := tx.Set("users", "alice", document.Fields{"username": "alice"}, false); err != nil {
			return err
		}
		return errors.ErrUsernameTaken
	})

	req.ErrorIs(err, errors.ErrUsernameTaken)
	doc, err := store.Get(ctx, "users", "alice")
	req.NoError(err)
	req.False(doc.Exists)
}

func TestStore_Watch_Streams_Committed_Changes(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var changes []document.Change
	go func() {
		_ = store.Watch(ctx, "directMessages/", func(c document.Change) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, c)
		})
	}()

	// Badger subscriptions only see writes made after they are registered
	req.Eventually(func() bool {
		_, err := store.Add(context.Background(), "directMessages/a_b/messages", document.Fields{"text": "hi"})
		req.NoError(err)
		mu.Lock()
		defer mu.Unlock()
		return len(changes) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	req.Equal(document.Added, changes[0].Kind)
	req.Equal("directMessages/a_b/messages", changes[0].Doc.Collection)
	req.Equal("hi", changes[0].Doc.Fields.String("text"))
}

func TestServerClock_Is_Strictly_Increasing(t *testing.T) {
	req := require.New(t)
	fixed := time.UnixMilli(1_700_000_000_000)
	clock := newServerClock(func() time.Time { return fixed })

	first := clock.next()
	second := clock.next()

	req.Equal(float64(fixed.UnixMilli()), first)
	req.Equal(first+1, second)
}

func TestCodec_Round_Trip(t *testing.T) {
	req := require.New(t)
	r := record{
		fields:     document.Fields{"text": "hi", "members": []any{"a", "b"}, "n": float64(3)},
		createTime: 10,
		updateTime: 12,
	}

	b, err := encodeRecord(r)
	req.NoError(err)
	decoded, err := decodeRecord(b)

	req.NoError(err)
	req.Equal(r, decoded)
}

func TestSplitKey(t *testing.T) {
	req := require.New(t)

	collection, id, ok := splitKey(docKey("directMessages/a_b/messages", "m1"))

	req.True(ok)
	req.Equal("directMessages/a_b/messages", collection)
	req.Equal("m1", id)

	_, _, ok = splitKey("idx:chats")
	req.False(ok)
}

func TestTxn_Collapses_Changes(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	err := store.engine.update(context.Background(), func(kv kvTxn) error {
		tx := newTxn(kv, 1)
		req.NoError(tx.Set("users", "alice", document.Fields{"a": 1}, false))
		req.NoError(tx.Update("users", "alice", document.Fields{"b": 2}))
		req.NoError(tx.Set("users", "bob", document.Fields{"a": 1}, false))
		req.NoError(tx.Delete("users", "bob"))

		changes := tx.committed()
		req.Len(changes, 1)
		req.Equal(document.Added, changes[0].Kind)
		req.Equal("alice", changes[0].Doc.ID)
		return nil
	})
	req.NoError(err)
}
