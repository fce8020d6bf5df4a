package access

import (
	"context"
	"errors"
	"time"

	"medledger/internal/events"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
)

// Revert reasons surfaced at the ledger boundary. Stable taxonomy; do not
// rename.
const (
	ReasonNotVerifiedProvider = "Caller is not a verified provider"
	ReasonNotPatient          = "Caller is not the patient"
	ReasonAccessNotGranted    = "Access not granted"
)

// IdentityReader is the slice of the registry this service needs.
type IdentityReader interface {
	IsVerified(ctx context.Context, address domain.Address) bool
	IsPatient(ctx context.Context, address domain.Address) bool
}

// EventSink receives one event per committed transition.
type EventSink interface {
	Publish(e events.Event) events.Event
}

// casAttempts bounds the retry loop for contended same-pair writes. The
// underlying store serializes writes per key, so a handful of attempts is
// enough; exhaustion indicates a livelock worth surfacing.
const casAttempts = 8

// Service is the access-grant state machine. Every transition is idempotent
// or no-op-safe against repeated calls in the same state, so network-layer
// retries of a submitted transition never corrupt state.
type Service struct {
	store    Store
	registry IdentityReader
	sink     EventSink
	now      func() time.Time
}

func NewService(store Store, registry IdentityReader, sink EventSink) *Service {
	return &Service{store: store, registry: registry, sink: sink, now: time.Now}
}

// Request records that provider wants access to patient's records. The caller
// must be a verified, non-rejected provider. Re-requesting while already
// Requested updates purpose and timestamp without error; requesting while
// Approved leaves the approval intact (see DESIGN.md).
func (s *Service) Request(ctx context.Context, provider, patient domain.Address, purpose string) error {
	if purpose == "" {
		return dErrors.New(dErrors.CodeBadRequest, "purpose must not be empty")
	}
	if !s.registry.IsVerified(ctx, provider) {
		return dErrors.New(dErrors.CodeNotVerified, ReasonNotVerifiedProvider)
	}

	changed, err := s.transition(ctx, patient, provider, func(g *Grant) bool {
		if g.State == StateApproved {
			return false
		}
		g.State = StateRequested
		g.Purpose = purpose
		g.RequestedAt = s.now()
		return true
	})
	if err != nil {
		return err
	}
	if changed {
		s.emit(events.TypeRequested, patient, provider)
	}
	return nil
}

// Approve moves the grant to Approved, storing the wrapped key and content
// refs verbatim. The ledger never inspects the wrapped key's structure.
// Approving without a prior request is permitted (pre-authorize), and
// re-approving overwrites the wrapped key and refs.
func (s *Service) Approve(ctx context.Context, patient, provider domain.Address, wrappedKey []byte, contentRefs []domain.ContentID) error {
	if !s.registry.IsPatient(ctx, patient) {
		return dErrors.New(dErrors.CodeNotOwner, ReasonNotPatient)
	}
	if len(wrappedKey) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "wrapped key must not be empty")
	}

	_, err := s.transition(ctx, patient, provider, func(g *Grant) bool {
		g.State = StateApproved
		g.WrappedKey = append([]byte(nil), wrappedKey...)
		g.ContentRefs = append([]domain.ContentID(nil), contentRefs...)
		g.ApprovedAt = s.now()
		return true
	})
	if err != nil {
		return err
	}
	s.emit(events.TypeApproved, patient, provider)
	return nil
}

// Revoke clears the grant back to None, wiping the wrapped key and refs.
// Revoking a never-requested pair is a harmless no-op success.
func (s *Service) Revoke(ctx context.Context, patient, provider domain.Address) error {
	if !s.registry.IsPatient(ctx, patient) {
		return dErrors.New(dErrors.CodeNotOwner, ReasonNotPatient)
	}

	changed, err := s.transition(ctx, patient, provider, func(g *Grant) bool {
		if g.State == StateNone {
			return false
		}
		g.State = StateNone
		g.Purpose = ""
		g.WrappedKey = nil
		g.ContentRefs = nil
		g.RevokedAt = s.now()
		return true
	})
	if err != nil {
		return err
	}
	if changed {
		s.emit(events.TypeRevoked, patient, provider)
	}
	return nil
}

// CheckAccess reports whether the provider currently holds approved access.
func (s *Service) CheckAccess(ctx context.Context, patient, provider domain.Address) bool {
	grant, err := s.store.Get(ctx, patient, provider)
	return err == nil && grant.State == StateApproved
}

// CheckPending reports whether an unanswered request exists for the pair.
func (s *Service) CheckPending(ctx context.Context, patient, provider domain.Address) bool {
	grant, err := s.store.Get(ctx, patient, provider)
	return err == nil && grant.State == StateRequested
}

// GetWrappedKey returns the opaque wrapped key. Only the provider holding
// Approved state for the patient may read it.
func (s *Service) GetWrappedKey(ctx context.Context, provider, patient domain.Address) ([]byte, error) {
	grant, err := s.approvedGrant(ctx, patient, provider)
	if err != nil {
		return nil, err
	}
	return grant.WrappedKey, nil
}

// GetAuthorizedContentRefs returns the refs the patient selected at approval
// time. Same gate as GetWrappedKey.
func (s *Service) GetAuthorizedContentRefs(ctx context.Context, provider, patient domain.Address) ([]domain.ContentID, error) {
	grant, err := s.approvedGrant(ctx, patient, provider)
	if err != nil {
		return nil, err
	}
	return grant.ContentRefs, nil
}

// PendingRequestsFor lists grants awaiting the patient's decision.
func (s *Service) PendingRequestsFor(ctx context.Context, patient domain.Address) ([]Grant, error) {
	grants, err := s.store.ListByPatient(ctx, patient)
	if err != nil {
		return nil, err
	}
	return filterByState(grants, StateRequested), nil
}

// ApprovedGrantsFor lists the patients who currently grant the provider access.
func (s *Service) ApprovedGrantsFor(ctx context.Context, provider domain.Address) ([]Grant, error) {
	grants, err := s.store.ListByProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	return filterByState(grants, StateApproved), nil
}

func (s *Service) approvedGrant(ctx context.Context, patient, provider domain.Address) (Grant, error) {
	grant, err := s.store.Get(ctx, patient, provider)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && grant.State != StateApproved) {
		return Grant{}, dErrors.New(dErrors.CodeAccessNotGranted, ReasonAccessNotGranted)
	}
	if err != nil {
		return Grant{}, err
	}
	return grant, nil
}

// transition applies mutate under per-key CAS, retrying on conflict. mutate
// returns false to signal a no-op, in which case nothing is written and no
// event should be emitted.
func (s *Service) transition(ctx context.Context, patient, provider domain.Address, mutate func(*Grant) bool) (bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeTimeout, "transition aborted: context cancelled")
		}

		grant, err := s.store.Get(ctx, patient, provider)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			grant = Grant{Patient: patient, Provider: provider, State: StateNone}
		case err != nil:
			return false, err
		}

		if !mutate(&grant) {
			return false, nil
		}

		err = s.store.Put(ctx, grant, grant.Version)
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, dErrors.New(dErrors.CodeSubmitFailed, "transition lost compare-and-set race repeatedly")
}

func (s *Service) emit(t events.Type, patient, provider domain.Address) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(events.Event{
		Type:      t,
		Patient:   patient,
		Provider:  provider,
		Timestamp: s.now(),
	})
}

func filterByState(grants []Grant, state State) []Grant {
	var out []Grant
	for _, g := range grants {
		if g.State == state {
			out = append(out, g)
		}
	}
	return out
}
