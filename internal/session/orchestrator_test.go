package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"medledger/internal/access"
	"medledger/internal/blob"
	"medledger/internal/cryptoengine"
	"medledger/internal/events"
	"medledger/internal/ledger"
	"medledger/internal/records"
	"medledger/internal/registry"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

const (
	admin    = domain.Address("0xadmin")
	patient  = domain.Address("0xpatient")
	provider = domain.Address("0xprovider")
)

type OrchestratorSuite struct {
	suite.Suite
	orch        *Orchestrator
	blobs       *blob.InMemoryStore
	providerKey cryptoengine.KeyPair
	salt        []byte
	ctx         context.Context
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = context.Background()

	bus := events.NewBus()
	registrySvc := registry.NewService(registry.NewInMemoryStore(), admin)
	accessSvc := access.NewService(access.NewInMemoryStore(), registrySvc, bus)
	recordsSvc := records.NewService(records.NewInMemoryStore(), accessSvc)
	ldgr := ledger.New(registrySvc, accessSvc, recordsSvc, bus)

	pair, err := cryptoengine.GenerateKeyPair()
	s.Require().NoError(err)
	s.providerKey = pair

	s.salt, err = cryptoengine.NewSalt()
	s.Require().NoError(err)

	s.Require().NoError(registrySvc.RegisterPatient(s.ctx, patient, ""))
	s.Require().NoError(registrySvc.RegisterProvider(s.ctx, provider,
		cryptoengine.PublicKeyBytes(pair.Public), ""))
	s.Require().NoError(registrySvc.VerifyProvider(s.ctx, admin, provider))

	s.blobs = blob.NewInMemoryStore()
	s.orch = NewOrchestrator(ldgr, s.blobs, registrySvc, nil)
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) params() ApproveParams {
	return ApproveParams{Secret: "patient passphrase", Salt: s.salt}
}

// uploadAndApprove runs the patient side of the flow: upload plaintexts under
// the derived record key, then approve the provider for the resulting refs.
func (s *OrchestratorSuite) uploadAndApprove(plaintexts ...[]byte) []domain.ContentID {
	refs := make([]domain.ContentID, 0, len(plaintexts))
	for _, pt := range plaintexts {
		ref, err := s.orch.UploadRecord(s.ctx, patient, patient, pt, s.params())
		s.Require().NoError(err)
		refs = append(refs, ref)
	}

	p := s.params()
	p.Provider = provider
	p.ContentRefs = refs
	s.Require().NoError(s.orch.ApproveAccess(s.ctx, patient, p))
	return refs
}

func (s *OrchestratorSuite) TestRequestAccess() {
	s.Run("submits the request through the ledger", func() {
		s.Require().NoError(s.orch.RequestAccess(s.ctx, provider, patient, "treatment"))
	})

	s.Run("validates inputs before submitting", func() {
		err := s.orch.RequestAccess(s.ctx, provider, "", "treatment")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))

		err = s.orch.RequestAccess(s.ctx, provider, patient, "")
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *OrchestratorSuite) TestFullFlow() {
	s.Run("provider retrieves and decrypts everything the patient shared", func() {
		note := []byte("blood panel results")
		scan := []byte("mri scan blob")
		refs := s.uploadAndApprove(note, scan)

		results, err := s.orch.Retrieve(s.ctx, provider, patient,
			cryptoengine.PrivateKeyBytes(s.providerKey.Private))
		s.Require().NoError(err)
		s.Require().Len(results, 2)

		byRef := map[domain.ContentID][]byte{}
		for _, res := range results {
			s.Require().NoError(res.Err)
			byRef[res.Ref] = res.Plaintext
		}
		s.Equal(note, byRef[refs[0]])
		s.Equal(scan, byRef[refs[1]])
	})

	s.Run("an explicit record key works in place of the secret", func() {
		key, err := cryptoengine.NewRandomKey()
		s.Require().NoError(err)
		uploadKey := key

		ref, err := s.orch.UploadRecord(s.ctx, patient, patient, []byte("note"),
			ApproveParams{Key: &uploadKey})
		s.Require().NoError(err)

		approveKey := key
		s.Require().NoError(s.orch.ApproveAccess(s.ctx, patient, ApproveParams{
			Provider:    provider,
			ContentRefs: []domain.ContentID{ref},
			Key:         &approveKey,
		}))

		results, err := s.orch.Retrieve(s.ctx, provider, patient,
			cryptoengine.PrivateKeyBytes(s.providerKey.Private))
		s.Require().NoError(err)
		s.Require().Len(results, 1)
		s.Require().NoError(results[0].Err)
		s.Equal([]byte("note"), results[0].Plaintext)
	})
}

func (s *OrchestratorSuite) TestRetrieveFailures() {
	s.Run("retrieval without approval fails at the key fetch", func() {
		_, err := s.orch.Retrieve(s.ctx, provider, patient,
			cryptoengine.PrivateKeyBytes(s.providerKey.Private))
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeAccessNotGranted))
	})

	s.Run("wrong private key fails closed before any blob is fetched", func() {
		s.uploadAndApprove([]byte("note"))

		intruder, err := cryptoengine.GenerateKeyPair()
		s.Require().NoError(err)

		_, err = s.orch.Retrieve(s.ctx, provider, patient,
			cryptoengine.PrivateKeyBytes(intruder.Private))
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeDecryptionFailed))
	})

	s.Run("revocation closes retrieval", func() {
		s.uploadAndApprove([]byte("note"))
		s.Require().NoError(s.orch.RevokeAccess(s.ctx, patient, provider))

		_, err := s.orch.Retrieve(s.ctx, provider, patient,
			cryptoengine.PrivateKeyBytes(s.providerKey.Private))
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeAccessNotGranted))
	})

	s.Run("a missing blob fails that item only", func() {
		refs := s.uploadAndApprove([]byte("kept"))

		// Approve an extra ref that was never uploaded.
		p := s.params()
		p.Provider = provider
		p.ContentRefs = append(refs, "0000000000000000000000000000000000000000000000000000000000000000")
		s.Require().NoError(s.orch.ApproveAccess(s.ctx, patient, p))

		results, err := s.orch.Retrieve(s.ctx, provider, patient,
			cryptoengine.PrivateKeyBytes(s.providerKey.Private))
		s.Require().NoError(err)
		s.Require().Len(results, 2)

		s.Require().NoError(results[0].Err)
		s.Equal([]byte("kept"), results[0].Plaintext)

		s.Require().Error(results[1].Err)
		s.True(dErrors.Is(results[1].Err, dErrors.CodeNotFound))
	})
}

func (s *OrchestratorSuite) TestUploadGates() {
	s.Run("provider upload requires approved access", func() {
		_, err := s.orch.UploadRecord(s.ctx, provider, patient, []byte("note"), s.params())
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeAccessNotGranted))
	})

	s.Run("approved provider can upload on the patient's behalf", func() {
		s.uploadAndApprove([]byte("first"))

		_, err := s.orch.UploadRecord(s.ctx, provider, patient, []byte("second"), s.params())
		s.Require().NoError(err)
	})
}

func (s *OrchestratorSuite) TestKeyDerivationErrors() {
	s.Run("empty secret is rejected locally", func() {
		_, err := s.orch.UploadRecord(s.ctx, patient, patient, []byte("note"),
			ApproveParams{Secret: "", Salt: s.salt})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeKeyDerivationFailed))
	})

	s.Run("bad salt is rejected locally", func() {
		err := s.orch.ApproveAccess(s.ctx, patient, ApproveParams{
			Provider: provider,
			Secret:   "secret",
			Salt:     []byte("short"),
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeKeyDerivationFailed))
	})
}
