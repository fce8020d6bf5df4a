package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "medledger/pkg/domain-errors"
)

type TokenSuite struct {
	suite.Suite
	svc *Service
}

func (s *TokenSuite) SetupTest() {
	s.svc = NewService("test-signing-key", "medledger-test")
}

func TestTokenSuite(t *testing.T) {
	suite.Run(t, new(TokenSuite))
}

func (s *TokenSuite) TestRoundTrip() {
	s.Run("validates its own tokens", func() {
		tok, err := s.svc.GenerateToken("0xabc", false, time.Hour)
		s.Require().NoError(err)

		claims, err := s.svc.ValidateToken(tok)
		s.Require().NoError(err)
		s.Equal("0xabc", claims.Address)
		s.False(claims.Admin)
	})

	s.Run("carries the admin flag", func() {
		tok, err := s.svc.GenerateToken("0xadmin", true, time.Hour)
		s.Require().NoError(err)

		claims, err := s.svc.ValidateToken(tok)
		s.Require().NoError(err)
		s.True(claims.Admin)
	})
}

func (s *TokenSuite) TestRejection() {
	s.Run("rejects expired tokens", func() {
		tok, err := s.svc.GenerateToken("0xabc", false, -time.Minute)
		s.Require().NoError(err)

		_, err = s.svc.ValidateToken(tok)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects tokens signed with a different key", func() {
		other := NewService("other-key", "medledger-test")
		tok, err := other.GenerateToken("0xabc", false, time.Hour)
		s.Require().NoError(err)

		_, err = s.svc.ValidateToken(tok)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects garbage", func() {
		_, err := s.svc.ValidateToken("not-a-token")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects tokens without a principal address", func() {
		tok, err := s.svc.GenerateToken("", false, time.Hour)
		s.Require().NoError(err)

		_, err = s.svc.ValidateToken(tok)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}
