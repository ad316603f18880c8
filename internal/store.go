package internal

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/infrastructure/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// OpenStore opens the document store of the configured backend.
// The returned function releases the store and the connection beneath it.
func OpenStore(ctx context.Context, config Config, log *slog.Logger) (*storage.Store, func(), error) {
	switch config.StoreBackend {
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		store, err := storage.NewRedisStore(ctx, client, log, storage.RedisOptions{Namespace: config.RedisNamespace})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis store opening failed: %w", err)
		}
		store.SetRetryPolicy(config.RetryPolicy())
		return store, func() {
			log.Info("Closing Redis store...")
			_ = store.Close()
			_ = client.Close()
		}, nil
	default:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		store := storage.NewBadgerStore(db, log)
		store.SetRetryPolicy(config.RetryPolicy())
		return store, func() {
			log.Info("Closing BadgerDB...")
			_ = store.Close()
			_ = db.Close()
		}, nil
	}
}
