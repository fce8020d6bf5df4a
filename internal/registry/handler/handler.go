package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medledger/internal/ledger"
	"medledger/internal/platform/metrics"
	"medledger/internal/platform/middleware"
	"medledger/internal/registry"
	"medledger/internal/transport/http/shared"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// Submitter is the ledger call boundary for identity mutations.
type Submitter interface {
	Submit(ctx context.Context, call ledger.Call) (ledger.Receipt, error)
}

// Directory exposes the identity reads the handler serves directly.
type Directory interface {
	Identity(ctx context.Context, address domain.Address) (registry.Identity, error)
	ListPendingProviders(ctx context.Context) ([]registry.Identity, error)
}

// Handler serves the registration and admin verification endpoints.
type Handler struct {
	logger    *slog.Logger
	ledger    Submitter
	directory Directory
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(ledger Submitter, directory Directory, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		ledger:    ledger,
		directory: directory,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the registry routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.Recovery(h.logger))
		router.Use(middleware.RequestID)
		router.Use(middleware.Logger(h.logger))
		router.Use(middleware.Timeout(15 * time.Second))
		router.Use(middleware.ContentTypeJSON)
		router.Use(middleware.Latency(h.metrics))
		router.Use(middleware.RequireAuth(h.validator, h.logger))

		router.Post("/registry/patients", h.handleRegisterPatient)
		router.Post("/registry/providers", h.handleRegisterProvider)
		router.Post("/registry/providers/{address}/verify", h.handleVerifyProvider)
		router.Post("/registry/providers/{address}/reject", h.handleRejectProvider)
		router.Get("/registry/providers/pending", h.handleListPending)
		router.Get("/registry/identities/{address}", h.handleGetIdentity)
	})
}

type registerPatientRequest struct {
	ProfileRef string `json:"profile_ref"`
}

func (h *Handler) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	var req registerPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	_, err := h.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnRegisterPatient,
		Caller: caller,
		Args:   ledger.RegisterPatientArgs{ProfileRef: domain.ContentID(req.ProfileRef)},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "register patient failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type registerProviderRequest struct {
	PublicKey  string `json:"public_key"` // base64, uncompressed EC point
	ProfileRef string `json:"profile_ref"`
}

func (h *Handler) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	var req registerProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "public_key must be base64"))
		return
	}

	_, err = h.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnRegisterProvider,
		Caller: caller,
		Args: ledger.RegisterProviderArgs{
			PublicKey:  publicKey,
			ProfileRef: domain.ContentID(req.ProfileRef),
		},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "register provider failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleVerifyProvider(w http.ResponseWriter, r *http.Request) {
	if h.adminTransition(w, r, ledger.FnVerifyProvider) && h.metrics != nil {
		h.metrics.ProvidersVerified.Inc()
	}
}

func (h *Handler) handleRejectProvider(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, ledger.FnRejectProvider)
}

// adminTransition submits a verify or reject call and reports success. The
// admin check itself is the ledger's; the handler only relays the caller.
func (h *Handler) adminTransition(w http.ResponseWriter, r *http.Request, fn string) bool {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))
	provider := domain.Address(chi.URLParam(r, "address"))

	_, err := h.ledger.Submit(ctx, ledger.Call{
		Fn:     fn,
		Caller: caller,
		Args:   ledger.ProviderArgs{Provider: provider},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "admin transition failed",
			"request_id", middleware.GetRequestID(ctx),
			"fn", fn,
			"provider", provider,
			"error", err,
		)
		shared.WriteError(w, err)
		return false
	}
	w.WriteHeader(http.StatusNoContent)
	return true
}

type identityResponse struct {
	Address    string `json:"address"`
	Role       string `json:"role"`
	Verified   bool   `json:"verified"`
	Rejected   bool   `json:"rejected"`
	ProfileRef string `json:"profile_ref,omitempty"`
	PublicKey  string `json:"public_key,omitempty"`
}

func toIdentityResponse(identity registry.Identity) identityResponse {
	resp := identityResponse{
		Address:    string(identity.Address),
		Role:       string(identity.Role),
		Verified:   identity.Verified,
		Rejected:   identity.Rejected,
		ProfileRef: string(identity.ProfileRef),
	}
	if len(identity.PublicKey) > 0 {
		resp.PublicKey = base64.StdEncoding.EncodeToString(identity.PublicKey)
	}
	return resp
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !middleware.IsAdmin(ctx) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotAdmin, registry.ReasonNotAdmin))
		return
	}

	pending, err := h.directory.ListPendingProviders(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list pending providers failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list pending providers"))
		return
	}

	out := make([]identityResponse, 0, len(pending))
	for _, p := range pending {
		out = append(out, toIdentityResponse(p))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := domain.Address(chi.URLParam(r, "address"))

	identity, err := h.directory.Identity(ctx, address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}
