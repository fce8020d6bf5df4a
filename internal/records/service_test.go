package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

const (
	patient  = domain.Address("0xpatient")
	provider = domain.Address("0xprovider")
)

// grantTable fakes the access ledger with a fixed set of approved pairs.
type grantTable map[[2]domain.Address]bool

func (g grantTable) CheckAccess(_ context.Context, patient, provider domain.Address) bool {
	return g[[2]domain.Address{patient, provider}]
}

type RecordsServiceSuite struct {
	suite.Suite
	svc    *Service
	grants grantTable
	ctx    context.Context
}

func (s *RecordsServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.grants = grantTable{}
	s.svc = NewService(NewInMemoryStore(), s.grants)
}

func (s *RecordsServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func TestRecordsServiceSuite(t *testing.T) {
	suite.Run(t, new(RecordsServiceSuite))
}

func (s *RecordsServiceSuite) TestAppend() {
	s.Run("patient can append to their own index", func() {
		s.Require().NoError(s.svc.Append(s.ctx, patient, patient, "ref-1"))

		recs, err := s.svc.ListForPatient(s.ctx, patient)
		s.Require().NoError(err)
		s.Require().Len(recs, 1)
		s.EqualValues("ref-1", recs[0].ContentRef)
	})

	s.Run("approved provider can append on the patient's behalf", func() {
		s.grants[[2]domain.Address{patient, provider}] = true
		s.Require().NoError(s.svc.Append(s.ctx, provider, patient, "ref-2"))
	})

	s.Run("unapproved provider cannot append", func() {
		delete(s.grants, [2]domain.Address{patient, provider})
		err := s.svc.Append(s.ctx, provider, patient, "ref-3")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeAccessNotGranted))
		s.EqualError(err, "access_not_granted: "+ReasonNotAuthorized)
	})

	s.Run("append requires a content reference", func() {
		err := s.svc.Append(s.ctx, patient, patient, "")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *RecordsServiceSuite) TestListing() {
	s.Run("patient listing is unconditional", func() {
		s.Require().NoError(s.svc.Append(s.ctx, patient, patient, "ref-1"))
		recs, err := s.svc.ListForPatient(s.ctx, patient)
		s.Require().NoError(err)
		s.Len(recs, 1)
	})

	s.Run("provider listing requires approved access", func() {
		s.Require().NoError(s.svc.Append(s.ctx, patient, patient, "ref-1"))

		_, err := s.svc.ListForProvider(s.ctx, provider, patient)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeAccessNotGranted))

		s.grants[[2]domain.Address{patient, provider}] = true
		recs, err := s.svc.ListForProvider(s.ctx, provider, patient)
		s.Require().NoError(err)
		s.Len(recs, 1)
	})

	s.Run("listing an empty index returns nothing", func() {
		recs, err := s.svc.ListForPatient(s.ctx, "0xempty")
		s.Require().NoError(err)
		s.Empty(recs)
	})
}
