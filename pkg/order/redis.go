package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"xswap/pkg/types"
)

const (
	redisIndexKey  = "xswap:orders"
	redisOpTimeout = 5 * time.Second
)

func redisRecordKey(key string) string { return "xswap:order:" + key }

// RedisConfig holds connection parameters for the redis store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps each record as a JSON string plus a set of all keys.
//
// Key schema:
//
//	xswap:order:{key} - JSON encoded OrderRecord
//	xswap:orders      - set of record keys
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

// Close closes the redis connection
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

// Create stores rec unless its key is already taken
func (s *RedisStore) Create(rec *types.OrderRecord) error {
	key := rec.Key()
	if key == "" {
		return ErrNoKey
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal order %s: %w", key, err)
	}

	ctx, cancel := opContext()
	defer cancel()

	// record and index entry land together; re-adding a taken key to the
	// index is a no-op
	pipe := s.rdb.TxPipeline()
	created := pipe.SetNX(ctx, redisRecordKey(key), data, 0)
	pipe.SAdd(ctx, redisIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: create order %s: %w", key, err)
	}
	if !created.Val() {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	return nil
}

// Addr returns the address of the redis server
func (s *RedisStore) Addr() string {
	return s.rdb.Options().Addr
}

// Get loads one record
func (s *RedisStore) Get(key string) (*types.OrderRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	return s.get(ctx, key)
}

func (s *RedisStore) get(ctx context.Context, key string) (*types.OrderRecord, error) {
	data, err := s.rdb.Get(ctx, redisRecordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("redis: get order %s: %w", key, err)
	}

	var rec types.OrderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis: unmarshal order %s: %w", key, err)
	}
	return &rec, nil
}

// Update replaces an existing record
func (s *RedisStore) Update(rec *types.OrderRecord) error {
	key := rec.Key()
	if key == "" {
		return ErrNoKey
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal order %s: %w", key, err)
	}

	ctx, cancel := opContext()
	defer cancel()

	ok, err := s.rdb.SetXX(ctx, redisRecordKey(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: update order %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// Delete removes a record and its index entry
func (s *RedisStore) Delete(key string) error {
	ctx, cancel := opContext()
	defer cancel()

	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, redisRecordKey(key))
	pipe.SRem(ctx, redisIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete order %s: %w", key, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// List returns matching records, newest first
func (s *RedisStore) List(filter Filter) ([]*types.OrderRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	keys, err := s.rdb.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list orders: %w", err)
	}

	records := make([]*types.OrderRecord, 0, len(keys))
	for _, key := range keys {
		rec, err := s.get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// index entry outlived its record
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			records = append(records, rec)
		}
	}

	sortNewestFirst(records)
	return records, nil
}
