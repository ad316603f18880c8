// Package storage implements the document store on top of key/value engines.
// Documents live under "doc:{collection}/{id}" and are encoded as protobuf Structs.
// Live queries and change feeds are served from the commits seen by this process,
// plus the remote commits an engine is able to relay.
package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain/document"
	"messenger/errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// RetryPolicy bounds the retries of a transaction that lost a conflict.
// Delays grow from BaseDelay up to MaxDelay and are jittered, so that
// writers contending on one document spread out instead of colliding again.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 50,
	BaseDelay:   2 * time.Millisecond,
	MaxDelay:    100 * time.Millisecond,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Store is the engine independent part of the document store.
type Store struct {
	engine      engine
	hub         *hub
	clock       *serverClock
	log         *slog.Logger
	retry       RetryPolicy
	// feed serves IChangeFeed.Watch; engines may plug their own.
	feed func(ctx context.Context, prefix string, fn func(document.Change)) error
	// relay publishes local commits to other processes.
	relay func(changes []document.Change)

	closeOnce sync.Once
	closers   []func() error
}

func newStore(e engine, log *slog.Logger, now func() time.Time) *Store {
	s := &Store{
		engine:      e,
		hub:         newHub(log),
		clock:       newServerClock(now),
		log:         log,
		retry:       DefaultRetryPolicy,
	}
	s.feed = s.hub.watch
	return s
}

// SetRetryPolicy replaces the conflict retry policy. Zero fields keep their current value.
func (s *Store) SetRetryPolicy(p RetryPolicy) {
	if p.MaxAttempts > 0 {
		s.retry.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelay > 0 {
		s.retry.BaseDelay = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		s.retry.MaxDelay = p.MaxDelay
	}
}

var _ contract.IDocumentStore = (*Store)(nil)
var _ contract.IChangeFeed = (*Store)(nil)

func (s *Store) Get(ctx context.Context, collection, id string) (document.Document, error) {
	var doc document.Document
	err := s.engine.view(ctx, func(kv kvTxn) error {
		var err error
		doc, err = newTxn(kv, 0).Get(collection, id)
		return err
	})
	return doc, err
}

func (s *Store) Set(ctx context.Context, collection, id string, fields document.Fields, merge bool) error {
	return s.write(ctx, func(t *txn) error {
		return t.Set(collection, id, fields, merge)
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields document.Fields) error {
	return s.write(ctx, func(t *txn) error {
		return t.Update(collection, id, fields)
	})
}

func (s *Store) Add(ctx context.Context, collection string, fields document.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.write(ctx, func(t *txn) error {
		return t.Delete(collection, id)
	})
}

func (s *Store) Query(ctx context.Context, q document.Query) ([]document.Document, error) {
	var docs []document.Document
	err := s.engine.view(ctx, func(kv kvTxn) error {
		all, err := scanCollection(kv, q.Collection)
		if err != nil {
			return err
		}
		docs = q.Apply(all)
		return nil
	})
	return docs, err
}

func (s *Store) Listen(q document.Query, onSnapshot func(document.Snapshot), onError func(error)) (contract.Subscription, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("listen: empty collection")
	}
	if onSnapshot == nil {
		return nil, fmt.Errorf("listen: nil snapshot callback")
	}
	run := func(q document.Query) ([]document.Document, error) {
		return s.Query(context.Background(), q)
	}
	return s.hub.listen(q, run, onSnapshot, onError), nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(tx contract.ITransaction) error) error {
	return s.write(ctx, func(t *txn) error {
		return fn(t)
	})
}

func (s *Store) Watch(ctx context.Context, prefix string, fn func(document.Change)) error {
	return s.feed(ctx, prefix, fn)
}

// write runs fn in a read-write transaction and retries it on conflicts.
// Each attempt gets a fresh commit time.
func (s *Store) write(ctx context.Context, fn func(t *txn) error) error {
	var changes []document.Change
	attempt := 0
	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := s.engine.update(ctx, func(kv kvTxn) error {
			t := newTxn(kv, s.clock.next())
			if err := fn(t); err != nil {
				return err
			}
			changes = t.committed()
			return nil
		})
		switch {
		case err == nil:
			return nil
		case stderrors.Is(err, errors.ErrTxnConflict):
			s.log.Debug("Transaction conflict, retrying", "attempt", attempt)
			return err
		default:
			return backoff.Permanent(err)
		}
	}, s.retry.backOff(ctx))
	if err != nil {
		return err
	}
	s.hub.publish(changes)
	if s.relay != nil {
		s.relay(changes)
	}
	return nil
}

// Close stops the background goroutines of the engine and releases it.
func (s *Store) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return stderrors.Join(errs...)
}
