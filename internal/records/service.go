package records

import (
	"context"
	"time"

	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// ReasonNotAuthorized is the stable revert reason for ungated index access.
const ReasonNotAuthorized = "Caller is not authorized"

// AccessChecker is the slice of the access ledger this service needs.
type AccessChecker interface {
	CheckAccess(ctx context.Context, patient, provider domain.Address) bool
}

// Service guards the record index. Writes mirror the read gate: attaching a
// record to a patient requires the same approval used for reading, unless the
// caller is the patient themself.
type Service struct {
	store  Store
	access AccessChecker
	now    func() time.Time
}

func NewService(store Store, access AccessChecker) *Service {
	return &Service{store: store, access: access, now: time.Now}
}

// Append adds a content reference to the patient's index. Allowed for the
// patient and for providers holding Approved access.
func (s *Service) Append(ctx context.Context, caller, patient domain.Address, contentRef domain.ContentID) error {
	if contentRef == "" {
		return dErrors.New(dErrors.CodeBadRequest, "content reference must not be empty")
	}
	if caller != patient && !s.access.CheckAccess(ctx, patient, caller) {
		return dErrors.New(dErrors.CodeAccessNotGranted, ReasonNotAuthorized)
	}
	return s.store.Append(ctx, ContentRecord{
		Patient:    patient,
		ContentRef: contentRef,
		CreatedAt:  s.now(),
	})
}

// ListForPatient returns the patient's own index, unconditionally.
func (s *Service) ListForPatient(ctx context.Context, patient domain.Address) ([]ContentRecord, error) {
	return s.store.ListByPatient(ctx, patient)
}

// ListForProvider returns the full index for an approved provider. Filtering
// down to the authorized subset is the caller's responsibility; the access
// ledger owns that list.
func (s *Service) ListForProvider(ctx context.Context, provider, patient domain.Address) ([]ContentRecord, error) {
	if !s.access.CheckAccess(ctx, patient, provider) {
		return nil, dErrors.New(dErrors.CodeAccessNotGranted, "Access not granted")
	}
	return s.store.ListByPatient(ctx, patient)
}
