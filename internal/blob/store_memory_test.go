package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"medledger/pkg/platform/sentinel"
)

type BlobStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *BlobStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestBlobStoreSuite(t *testing.T) {
	suite.Run(t, new(BlobStoreSuite))
}

func (s *BlobStoreSuite) TestContentAddressing() {
	s.Run("put returns the content address and get round-trips", func() {
		data := []byte("encrypted envelope bytes")
		id, err := s.store.Put(s.ctx, data)
		s.Require().NoError(err)
		s.Equal(ContentAddress(data), id)

		got, err := s.store.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(data, got)
	})

	s.Run("identical content stores once under one address", func() {
		id1, err := s.store.Put(s.ctx, []byte("same"))
		s.Require().NoError(err)
		id2, err := s.store.Put(s.ctx, []byte("same"))
		s.Require().NoError(err)
		s.Equal(id1, id2)
	})

	s.Run("different content gets different addresses", func() {
		id1, err := s.store.Put(s.ctx, []byte("one"))
		s.Require().NoError(err)
		id2, err := s.store.Put(s.ctx, []byte("two"))
		s.Require().NoError(err)
		s.NotEqual(id1, id2)
	})

	s.Run("get of an unknown address returns ErrNotFound", func() {
		_, err := s.store.Get(s.ctx, "deadbeef")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
