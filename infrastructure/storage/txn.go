package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"messenger/domain/document"
	"messenger/errors"
)

// kvTxn is the key/value view an engine gives to one transaction attempt.
// Writes may be buffered by the engine until commit.
type kvTxn interface {
	get(key string) ([]byte, error)
	scan(prefix string) ([]kvPair, error)
	set(key string, value []byte) error
	delete(key string) error
}

type kvPair struct {
	key   string
	value []byte
}

// engine is implemented by every storage backend.
type engine interface {
	// update runs fn in a read-write transaction.
	// It returns errors.ErrTxnConflict when a concurrent commit invalidated the reads.
	update(ctx context.Context, fn func(kv kvTxn) error) error
	view(ctx context.Context, fn func(kv kvTxn) error) error
}

// txn applies document semantics on top of a kvTxn.
// Reads observe the writes already made in the same transaction.
type txn struct {
	kv      kvTxn
	now     float64
	cache   map[string]*record
	order   []string
	changes map[string]document.Change
}

func newTxn(kv kvTxn, now float64) *txn {
	return &txn{
		kv:      kv,
		now:     now,
		cache:   make(map[string]*record),
		changes: make(map[string]document.Change),
	}
}

func (t *txn) load(collection, id string) (*record, error) {
	key := docKey(collection, id)
	if r, ok := t.cache[key]; ok {
		return r, nil
	}
	b, err := t.kv.get(key)
	if stderrors.Is(err, errors.ErrNotFound) {
		t.cache[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := decodeRecord(b)
	if err != nil {
		return nil, err
	}
	t.cache[key] = &r
	return &r, nil
}

func (t *txn) Get(collection, id string) (document.Document, error) {
	if err := validateRef(collection, id); err != nil {
		return document.Document{}, err
	}
	r, err := t.load(collection, id)
	if err != nil {
		return document.Document{}, err
	}
	if r == nil {
		return document.Document{Collection: collection, ID: id}, nil
	}
	return r.toDocument(collection, id), nil
}

func (t *txn) Set(collection, id string, fields document.Fields, merge bool) error {
	if err := validateRef(collection, id); err != nil {
		return err
	}
	existing, err := t.load(collection, id)
	if err != nil {
		return err
	}
	var base document.Fields
	createTime := t.now
	if existing != nil {
		base = existing.fields
		createTime = existing.createTime
	}
	return t.put(collection, id, record{
		fields:     document.ApplySet(base, fields, merge, t.now),
		createTime: createTime,
		updateTime: t.now,
	}, existing == nil)
}

func (t *txn) Update(collection, id string, fields document.Fields) error {
	if err := validateRef(collection, id); err != nil {
		return err
	}
	existing, err := t.load(collection, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s/%s", errors.ErrNotFound, collection, id)
	}
	updated, err := document.ApplyUpdate(existing.fields, fields, t.now)
	if err != nil {
		return err
	}
	return t.put(collection, id, record{
		fields:     updated,
		createTime: existing.createTime,
		updateTime: t.now,
	}, false)
}

func (t *txn) Delete(collection, id string) error {
	if err := validateRef(collection, id); err != nil {
		return err
	}
	existing, err := t.load(collection, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	key := docKey(collection, id)
	if err = t.kv.delete(key); err != nil {
		return err
	}
	t.cache[key] = nil
	t.record(key, document.Change{Kind: document.Removed, Doc: existing.toDocument(collection, id)})
	return nil
}

func (t *txn) put(collection, id string, r record, created bool) error {
	b, err := encodeRecord(r)
	if err != nil {
		return err
	}
	key := docKey(collection, id)
	if err = t.kv.set(key, b); err != nil {
		return err
	}
	t.cache[key] = &r
	kind := document.Modified
	if created {
		kind = document.Added
	}
	t.record(key, document.Change{Kind: kind, Doc: r.toDocument(collection, id)})
	return nil
}

// record keeps one change per key: created then modified stays Added,
// created then deleted disappears.
func (t *txn) record(key string, c document.Change) {
	previous, seen := t.changes[key]
	if !seen {
		t.order = append(t.order, key)
		t.changes[key] = c
		return
	}
	switch {
	case previous.Kind == document.Added && c.Kind == document.Removed:
		delete(t.changes, key)
	case previous.Kind == document.Added:
		c.Kind = document.Added
		t.changes[key] = c
	default:
		t.changes[key] = c
	}
}

func (t *txn) committed() []document.Change {
	out := make([]document.Change, 0, len(t.changes))
	emitted := make(map[string]struct{}, len(t.changes))
	for _, key := range t.order {
		if _, done := emitted[key]; done {
			continue
		}
		if c, ok := t.changes[key]; ok {
			emitted[key] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// scanCollection decodes the direct documents of a collection, skipping
// documents of nested sub-collections.
func scanCollection(kv kvTxn, collection string) ([]document.Document, error) {
	pairs, err := kv.scan(collectionPrefix(collection))
	if err != nil {
		return nil, err
	}
	docs := make([]document.Document, 0, len(pairs))
	for _, p := range pairs {
		c, id, ok := splitKey(p.key)
		if !ok || c != collection {
			continue
		}
		r, err := decodeRecord(p.value)
		if err != nil {
			return nil, err
		}
		docs = append(docs, r.toDocument(c, id))
	}
	return docs, nil
}
