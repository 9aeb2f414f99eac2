package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/smsledger/smsledger/internal/ledger"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "smsledger:balance"

// RedisStore keeps the balance as a decimal string under one key. An absent
// key means the balance is unset.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(client, key), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes
// ownership and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads the balance key.
func (s *RedisStore) Load(ctx context.Context) (ledger.Balance, error) {
	v, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return ledger.Balance{}, nil
	}
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("get %s: %w", s.key, err)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("parsing stored balance %q: %w", v, err)
	}
	return ledger.Some(d), nil
}

// Persist writes the balance, deleting the key for an unset balance.
func (s *RedisStore) Persist(ctx context.Context, b ledger.Balance) error {
	d, ok := b.Get()
	if !ok {
		if err := s.client.Del(ctx, s.key).Err(); err != nil {
			return fmt.Errorf("del %s: %w", s.key, err)
		}
		return nil
	}
	if err := s.client.Set(ctx, s.key, d.String(), 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
