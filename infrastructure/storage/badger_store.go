package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"messenger/domain/document"
	"messenger/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
)

type badgerEngine struct {
	db *badger.DB
}

// NewBadgerStore serves documents from an embedded BadgerDB.
// The caller keeps ownership of db.
func NewBadgerStore(db *badger.DB, log *slog.Logger) *Store {
	return newBadgerStore(db, log, time.Now)
}

func newBadgerStore(db *badger.DB, log *slog.Logger, now func() time.Time) *Store {
	e := &badgerEngine{db: db}
	s := newStore(e, log, now)
	s.feed = e.watch
	return s
}

func (e *badgerEngine) update(_ context.Context, fn func(kv kvTxn) error) error {
	err := e.db.Update(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn: txn})
	})
	if stderrors.Is(err, badger.ErrConflict) {
		return errors.ErrTxnConflict
	}
	return err
}

func (e *badgerEngine) view(_ context.Context, fn func(kv kvTxn) error) error {
	return e.db.View(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn: txn})
	})
}

// watch relays committed keys through badger's own subscription mechanism,
// which sees every write made to the database by this process.
func (e *badgerEngine) watch(ctx context.Context, prefix string, fn func(document.Change)) error {
	err := e.db.Subscribe(ctx, func(list *badger.KVList) error {
		for _, kv := range list.GetKv() {
			if c, ok := changeFromKV(kv.GetKey(), kv.GetValue()); ok {
				fn(c)
			}
		}
		return nil
	}, []pb.Match{{Prefix: []byte(docPrefix + prefix)}})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// changeFromKV rebuilds a change from a raw entry. Deletions carry no value.
func changeFromKV(key, value []byte) (document.Change, bool) {
	collection, id, ok := splitKey(string(key))
	if !ok {
		return document.Change{}, false
	}
	if len(value) == 0 {
		return document.Change{
			Kind: document.Removed,
			Doc:  document.Document{Collection: collection, ID: id},
		}, true
	}
	r, err := decodeRecord(value)
	if err != nil {
		return document.Change{}, false
	}
	kind := document.Modified
	if r.createTime == r.updateTime {
		kind = document.Added
	}
	return document.Change{Kind: kind, Doc: r.toDocument(collection, id)}, true
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t badgerTxn) get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return item.ValueCopy(nil)
}

// scan iterates the prefix in key order; values are prefetched
// since every scanned document is decoded.
func (t badgerTxn) scan(prefix string) ([]kvPair, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = true
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var pairs []kvPair
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, kvPair{key: string(item.KeyCopy(nil)), value: value})
	}
	return pairs, nil
}

func (t badgerTxn) set(key string, value []byte) error {
	return t.txn.Set([]byte(key), value)
}

func (t badgerTxn) delete(key string) error {
	return t.txn.Delete([]byte(key))
}
