package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainmint/issuer/internal/infra/storage"
)

// IdempotencyStore implements storage.IdempotencyStore on Redis. Records
// expire through Redis TTLs, so the store needs no janitor and the cache
// survives process restarts.
type IdempotencyStore struct {
	client *Client
}

// NewIdempotencyStore creates a Redis-backed idempotency store.
func NewIdempotencyStore(client *Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func idempotencyKey(namespace, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", namespace, key)
}

func (s *IdempotencyStore) Get(ctx context.Context, namespace, key string) (*storage.IdempotencyRecord, error) {
	data, err := s.client.rdb.Get(ctx, idempotencyKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec storage.IdempotencyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

func (s *IdempotencyStore) PutIfAbsent(ctx context.Context, namespace, key string, rec *storage.IdempotencyRecord, ttl time.Duration) (bool, *storage.IdempotencyRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, nil, fmt.Errorf("encode idempotency record: %w", err)
	}

	k := idempotencyKey(namespace, key)
	stored, err := s.client.rdb.SetNX(ctx, k, data, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if stored {
		return true, rec, nil
	}

	// Lost the race: return the canonical record.
	existing, err := s.Get(ctx, namespace, key)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		// Winner expired between SetNX and Get; retry the write once.
		if err := s.client.rdb.Set(ctx, k, data, ttl).Err(); err != nil {
			return false, nil, fmt.Errorf("redis set failed: %w", err)
		}
		return true, rec, nil
	}
	return false, existing, nil
}
