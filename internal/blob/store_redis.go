package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

const keyPrefix = "medledger:blob:"

// RedisStore backs the blob boundary with Redis for shared deployments.
// SETNX keeps writes idempotent under the content-addressing contract.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, data []byte) (domain.ContentID, error) {
	id := ContentAddress(data)
	if err := s.client.SetNX(ctx, keyPrefix+string(id), data, 0).Err(); err != nil {
		return "", fmt.Errorf("blob put: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id domain.ContentID) ([]byte, error) {
	data, err := s.client.Get(ctx, keyPrefix+string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob get: %w", err)
	}
	return data, nil
}
