package registry

import (
	"context"
	"errors"
	"time"

	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
)

// Revert reasons surfaced at the ledger boundary. These strings are a stable
// taxonomy; clients match on them, so they must not change.
const (
	ReasonProviderAlreadyRegistered = "Provider already registered"
	ReasonPatientAlreadyRegistered  = "Patient already registered"
	ReasonProviderNotRegistered     = "Provider not registered"
	ReasonProviderRejected          = "Provider has been rejected"
	ReasonNotAdmin                  = "Caller is not the admin"
	ReasonCrossRole                 = "Address already registered under a different role"
)

// Service owns all identity mutations. Reads never fail; absent identities
// simply report false.
type Service struct {
	store Store
	admin domain.Address
	now   func() time.Time
}

func NewService(store Store, admin domain.Address) *Service {
	return &Service{store: store, admin: admin, now: time.Now}
}

// RegisterProvider self-registers the caller as a provider with their ECDH
// public key. Registration is permanent and exclusive with the patient role.
func (s *Service) RegisterProvider(ctx context.Context, caller domain.Address, publicKey []byte, profileRef domain.ContentID) error {
	if len(publicKey) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "public key is required")
	}
	if existing, err := s.store.Find(ctx, caller); err == nil {
		if existing.Role == RolePatient {
			return dErrors.New(dErrors.CodeCrossRoleConflict, ReasonCrossRole)
		}
		return dErrors.New(dErrors.CodeAlreadyRegistered, ReasonProviderAlreadyRegistered)
	}

	err := s.store.Create(ctx, Identity{
		Address:      caller,
		Role:         RoleProvider,
		PublicKey:    publicKey,
		ProfileRef:   profileRef,
		RegisteredAt: s.now(),
	})
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeAlreadyRegistered, ReasonProviderAlreadyRegistered)
	}
	return err
}

// RegisterPatient self-registers the caller as a patient.
func (s *Service) RegisterPatient(ctx context.Context, caller domain.Address, profileRef domain.ContentID) error {
	if existing, err := s.store.Find(ctx, caller); err == nil {
		if existing.Role == RoleProvider {
			return dErrors.New(dErrors.CodeCrossRoleConflict, ReasonCrossRole)
		}
		return dErrors.New(dErrors.CodeAlreadyRegistered, ReasonPatientAlreadyRegistered)
	}

	err := s.store.Create(ctx, Identity{
		Address:      caller,
		Role:         RolePatient,
		ProfileRef:   profileRef,
		RegisteredAt: s.now(),
	})
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeAlreadyRegistered, ReasonPatientAlreadyRegistered)
	}
	return err
}

// VerifyProvider marks a provider as verified. Admin only. Verifying an
// already-verified provider is a no-op success; verifying a rejected provider
// fails (rejection is terminal).
func (s *Service) VerifyProvider(ctx context.Context, caller, provider domain.Address) error {
	if caller != s.admin {
		return dErrors.New(dErrors.CodeNotAdmin, ReasonNotAdmin)
	}
	identity, err := s.store.Find(ctx, provider)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && identity.Role != RoleProvider) {
		return dErrors.New(dErrors.CodeNotFound, ReasonProviderNotRegistered)
	}
	if err != nil {
		return err
	}
	if identity.Rejected {
		return dErrors.New(dErrors.CodeRejected, ReasonProviderRejected)
	}
	if identity.Verified {
		return nil
	}
	identity.Verified = true
	return s.store.Update(ctx, identity)
}

// RejectProvider sets the terminal rejected state. Admin only. Rejecting an
// unregistered address is a no-op success so retries stay safe.
func (s *Service) RejectProvider(ctx context.Context, caller, provider domain.Address) error {
	if caller != s.admin {
		return dErrors.New(dErrors.CodeNotAdmin, ReasonNotAdmin)
	}
	identity, err := s.store.Find(ctx, provider)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if identity.Role != RoleProvider || identity.Rejected {
		return nil
	}
	identity.Rejected = true
	identity.Verified = false
	return s.store.Update(ctx, identity)
}

// IsVerified reports whether the address is a verified, non-rejected provider.
func (s *Service) IsVerified(ctx context.Context, address domain.Address) bool {
	identity, err := s.store.Find(ctx, address)
	return err == nil && identity.CanRequestAccess()
}

// IsRejected reports whether the address is a rejected provider.
func (s *Service) IsRejected(ctx context.Context, address domain.Address) bool {
	identity, err := s.store.Find(ctx, address)
	return err == nil && identity.Rejected
}

// IsPatient reports whether the address is a registered patient.
func (s *Service) IsPatient(ctx context.Context, address domain.Address) bool {
	identity, err := s.store.Find(ctx, address)
	return err == nil && identity.Role == RolePatient
}

// IsProvider reports whether the address is a registered provider.
func (s *Service) IsProvider(ctx context.Context, address domain.Address) bool {
	identity, err := s.store.Find(ctx, address)
	return err == nil && identity.Role == RoleProvider
}

// ProviderPublicKey returns the registered ECDH public key for key wrapping.
func (s *Service) ProviderPublicKey(ctx context.Context, address domain.Address) ([]byte, error) {
	identity, err := s.store.Find(ctx, address)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && identity.Role != RoleProvider) {
		return nil, dErrors.New(dErrors.CodeNotFound, ReasonProviderNotRegistered)
	}
	if err != nil {
		return nil, err
	}
	return identity.PublicKey, nil
}

// Identity returns the full identity record.
func (s *Service) Identity(ctx context.Context, address domain.Address) (Identity, error) {
	identity, err := s.store.Find(ctx, address)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Identity{}, dErrors.New(dErrors.CodeNotFound, "address not registered")
	}
	return identity, err
}

// ListPendingProviders returns providers awaiting admin review.
func (s *Service) ListPendingProviders(ctx context.Context) ([]Identity, error) {
	providers, err := s.store.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Identity
	for _, p := range providers {
		if !p.Verified && !p.Rejected {
			pending = append(pending, p)
		}
	}
	return pending, nil
}
