package db

import (
	"context"
	"fmt"
	"time"

	"rewards_webapp/internal/config"
	"rewards_webapp/internal/logger"
	"rewards_webapp/internal/store"
	"rewards_webapp/internal/store/memstore"
	"rewards_webapp/internal/store/mongostore"
	"rewards_webapp/internal/store/pgstore"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Store is an opened document store plus its shutdown hook
type Store struct {
	store.Store
	Close func()
}

// retry runs fn up to attempts times with a doubling backoff
func retry(ctx context.Context, what string, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		logger.Warn("connect failed, retrying", "target", what, "attempt", i, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ConnectPostgres opens a pool and waits until the database answers
func ConnectPostgres(ctx context.Context, dsn string, attempts int, backoff time.Duration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	err = retry(ctx, "postgres", attempts, backoff, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pctx)
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("database connected")
	return pool, nil
}

// ConnectMongo connects and pings the primary
func ConnectMongo(ctx context.Context, uri string, attempts int, backoff time.Duration) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	err = retry(ctx, "mongo", attempts, backoff, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pctx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("mongo connected")
	return client, nil
}

// NewRedis returns nil when addr is empty; a failed ping is logged and the
// client still returned so callers degrade to in-process fallbacks.
func NewRedis(ctx context.Context, addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		logger.Warn("redis ping failed", "addr", addr, "error", err)
	} else {
		logger.Info("redis connected", "addr", addr)
	}
	return rdb
}

// OpenStore opens the document store selected by STORE_DRIVER and prepares its schema
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := ConnectPostgres(ctx, cfg.DatabaseURL, cfg.StoreConnectRetries, cfg.StoreRetryBackoff)
		if err != nil {
			return nil, err
		}
		s := pgstore.New(pool, cfg.StoreMaxAttempts)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &Store{Store: s, Close: pool.Close}, nil

	case config.StoreDriverMongo:
		client, err := ConnectMongo(ctx, cfg.MongoURI, cfg.StoreConnectRetries, cfg.StoreRetryBackoff)
		if err != nil {
			return nil, err
		}
		s := mongostore.New(client, cfg.MongoDatabase, cfg.StoreMaxAttempts)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &Store{Store: s, Close: func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}}, nil

	case config.StoreDriverMemory:
		// только для разработки, данные живут до рестарта
		logger.Warn("using in-memory store, data is not persisted")
		return &Store{Store: memstore.New(memstore.WithMaxAttempts(cfg.StoreMaxAttempts)), Close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
