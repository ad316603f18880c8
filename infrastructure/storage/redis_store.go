package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"messenger/domain/document"
	"messenger/errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const changesChannel = "changes"

type RedisOptions struct {
	// Namespace prefixes every key and channel, so several stores can share a server.
	Namespace string
}

type redisEngine struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore serves documents from a Redis server.
// Commits are relayed over Pub/Sub so that live queries of other processes
// sharing the same server see them.
func NewRedisStore(ctx context.Context, client *redis.Client, log *slog.Logger, opts RedisOptions) (*Store, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	e := &redisEngine{client: client, namespace: opts.Namespace}
	s := newStore(e, log, serverTime(client, log))

	origin := uuid.NewString()
	channel := e.namespace + changesChannel
	s.relay = func(changes []document.Change) {
		payload, err := json.Marshal(relayMessage{Origin: origin, Changes: toWireChanges(changes)})
		if err != nil {
			log.Error("Encoding relayed changes failed", "error", err)
			return
		}
		if err = client.Publish(context.Background(), channel, payload).Err(); err != nil {
			log.Warn("Relaying changes failed", "error", err)
		}
	}

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		for msg := range pubsub.Channel() {
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Warn("Dropping malformed relayed changes", "error", err)
				continue
			}
			if m.Origin == origin {
				continue
			}
			s.hub.publish(fromWireChanges(m.Changes))
		}
	}()
	s.closers = append(s.closers, pubsub.Close)
	return s, nil
}

// serverTime reads commit times from the Redis server, so that processes
// sharing it stamp documents from one clock whatever the skew of their hosts.
func serverTime(client *redis.Client, log *slog.Logger) func() time.Time {
	return func() time.Time {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		now, err := client.Time(ctx).Result()
		if err != nil {
			log.Warn("Reading server time failed, using local clock", "error", err)
			return time.Now()
		}
		return now
	}
}

type relayMessage struct {
	Origin  string       `json:"origin"`
	Changes []wireChange `json:"changes"`
}

type wireChange struct {
	Kind       int    `json:"kind"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Record     []byte `json:"record,omitempty"`
}

func toWireChanges(changes []document.Change) []wireChange {
	out := make([]wireChange, 0, len(changes))
	for _, c := range changes {
		w := wireChange{Kind: int(c.Kind), Collection: c.Doc.Collection, ID: c.Doc.ID}
		if c.Kind != document.Removed {
			b, err := encodeRecord(record{
				fields:     c.Doc.Fields,
				createTime: document.Millis(c.Doc.CreateTime),
				updateTime: document.Millis(c.Doc.UpdateTime),
			})
			if err == nil {
				w.Record = b
			}
		}
		out = append(out, w)
	}
	return out
}

func fromWireChanges(changes []wireChange) []document.Change {
	out := make([]document.Change, 0, len(changes))
	for _, w := range changes {
		doc := document.Document{Collection: w.Collection, ID: w.ID}
		if len(w.Record) > 0 {
			if r, err := decodeRecord(w.Record); err == nil {
				doc = r.toDocument(w.Collection, w.ID)
			}
		}
		out = append(out, document.Change{Kind: document.ChangeKind(w.Kind), Doc: doc})
	}
	return out
}

func (e *redisEngine) update(ctx context.Context, fn func(kv kvTxn) error) error {
	err := e.client.Watch(ctx, func(tx *redis.Tx) error {
		t := &redisTxn{ctx: ctx, reader: tx, tx: tx, namespace: e.namespace}
		if err := fn(t); err != nil {
			return err
		}
		if len(t.writes) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range t.writes {
				w(pipe)
			}
			return nil
		})
		return err
	})
	if stderrors.Is(err, redis.TxFailedErr) {
		return errors.ErrTxnConflict
	}
	return err
}

func (e *redisEngine) view(ctx context.Context, fn func(kv kvTxn) error) error {
	return fn(&redisTxn{ctx: ctx, reader: e.client, namespace: e.namespace})
}

type redisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// redisTxn watches every key it reads and buffers writes
// until the MULTI/EXEC pipeline.
type redisTxn struct {
	ctx       context.Context
	reader    redisReader
	tx        *redis.Tx
	namespace string
	writes    []func(pipe redis.Pipeliner)
}

func (t *redisTxn) watch(keys ...string) error {
	if t.tx == nil {
		return nil
	}
	return t.tx.Watch(t.ctx, keys...).Err()
}

// indexKey holds the ids of a collection.
func (t *redisTxn) indexKey(collection string) string {
	return t.namespace + "idx:" + collection
}

func (t *redisTxn) get(key string) ([]byte, error) {
	key = t.namespace + key
	if err := t.watch(key); err != nil {
		return nil, err
	}
	b, err := t.reader.Get(t.ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

func (t *redisTxn) scan(prefix string) ([]kvPair, error) {
	collection := strings.TrimSuffix(strings.TrimPrefix(prefix, docPrefix), "/")
	index := t.indexKey(collection)
	if err := t.watch(index); err != nil {
		return nil, err
	}
	ids, err := t.reader.SMembers(t.ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", index, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = t.namespace + docKey(collection, id)
	}
	values, err := t.reader.MGet(t.ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	pairs := make([]kvPair, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		pairs = append(pairs, kvPair{key: strings.TrimPrefix(keys[i], t.namespace), value: []byte(s)})
	}
	return pairs, nil
}

func (t *redisTxn) set(key string, value []byte) error {
	collection, id, ok := splitKey(key)
	if !ok {
		return fmt.Errorf("invalid key %q", key)
	}
	index := t.indexKey(collection)
	nsKey := t.namespace + key
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, nsKey, value, 0)
		pipe.SAdd(t.ctx, index, id)
	})
	return nil
}

func (t *redisTxn) delete(key string) error {
	collection, id, ok := splitKey(key)
	if !ok {
		return fmt.Errorf("invalid key %q", key)
	}
	index := t.indexKey(collection)
	nsKey := t.namespace + key
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Del(t.ctx, nsKey)
		pipe.SRem(t.ctx, index, id)
	})
	return nil
}
