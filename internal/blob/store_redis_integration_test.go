//go:build integration

package blob_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"medledger/internal/blob"
	"medledger/pkg/platform/sentinel"
	"medledger/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *blob.RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.store = blob.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	data := []byte("encrypted envelope")
	id, err := s.store.Put(s.ctx, data)
	s.Require().NoError(err)
	s.Equal(blob.ContentAddress(data), id)

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(data, got)
}

func (s *RedisStoreSuite) TestIdempotentPut() {
	id1, err := s.store.Put(s.ctx, []byte("same bytes"))
	s.Require().NoError(err)
	id2, err := s.store.Put(s.ctx, []byte("same bytes"))
	s.Require().NoError(err)
	s.Equal(id1, id2)

	got, err := s.store.Get(s.ctx, id1)
	s.Require().NoError(err)
	s.Equal([]byte("same bytes"), got)
}

func (s *RedisStoreSuite) TestMissingBlob() {
	_, err := s.store.Get(s.ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
