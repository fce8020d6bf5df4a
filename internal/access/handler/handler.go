package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medledger/internal/access"
	"medledger/internal/events"
	"medledger/internal/platform/metrics"
	"medledger/internal/platform/middleware"
	"medledger/internal/session"
	"medledger/internal/transport/http/shared"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// Flows is the orchestrated side of the API: transitions that involve key
// material go through the session orchestrator, never straight to the ledger.
type Flows interface {
	RequestAccess(ctx context.Context, provider, patient domain.Address, purpose string) error
	ApproveAccess(ctx context.Context, patient domain.Address, params session.ApproveParams) error
	RevokeAccess(ctx context.Context, patient, provider domain.Address) error
}

// Views exposes the read side of the grant ledger.
type Views interface {
	CheckAccess(ctx context.Context, patient, provider domain.Address) bool
	CheckPending(ctx context.Context, patient, provider domain.Address) bool
	PendingRequestsFor(ctx context.Context, patient domain.Address) ([]access.Grant, error)
	ApprovedGrantsFor(ctx context.Context, provider domain.Address) ([]access.Grant, error)
}

// EventLog replays committed transitions for audit views.
type EventLog interface {
	History(filter events.Filter) []events.Event
}

// Handler serves the consent lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	flows     Flows
	views     Views
	log       EventLog
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(flows Flows, views Views, log EventLog, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		flows:     flows,
		views:     views,
		log:       log,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the access routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.Recovery(h.logger))
		router.Use(middleware.RequestID)
		router.Use(middleware.Logger(h.logger))
		router.Use(middleware.Timeout(30 * time.Second))
		router.Use(middleware.ContentTypeJSON)
		router.Use(middleware.Latency(h.metrics))
		router.Use(middleware.RequireAuth(h.validator, h.logger))

		router.Post("/access/requests", h.handleRequest)
		router.Post("/access/approvals", h.handleApprove)
		router.Post("/access/revocations", h.handleRevoke)
		router.Get("/access/status/{patient}/{provider}", h.handleStatus)
		router.Get("/access/requests/pending", h.handleListPending)
		router.Get("/access/grants", h.handleListGrants)
		router.Get("/access/events", h.handleEvents)
	})
}

type requestAccessRequest struct {
	Patient string `json:"patient"`
	Purpose string `json:"purpose"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	var req requestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.flows.RequestAccess(ctx, caller, domain.Address(req.Patient), req.Purpose); err != nil {
		h.logger.WarnContext(ctx, "access request failed",
			"request_id", middleware.GetRequestID(ctx),
			"patient", req.Patient,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type approveAccessRequest struct {
	Provider    string   `json:"provider"`
	ContentRefs []string `json:"content_refs"`
	Secret      string   `json:"secret"`
	Salt        string   `json:"salt"` // base64
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	var req approveAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	salt, err := base64.StdEncoding.DecodeString(req.Salt)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "salt must be base64"))
		return
	}

	refs := make([]domain.ContentID, 0, len(req.ContentRefs))
	for _, ref := range req.ContentRefs {
		refs = append(refs, domain.ContentID(ref))
	}

	err = h.flows.ApproveAccess(ctx, caller, session.ApproveParams{
		Provider:    domain.Address(req.Provider),
		ContentRefs: refs,
		Secret:      req.Secret,
		Salt:        salt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "access approval failed",
			"request_id", middleware.GetRequestID(ctx),
			"provider", req.Provider,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokeAccessRequest struct {
	Provider string `json:"provider"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	var req revokeAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.flows.RevokeAccess(ctx, caller, domain.Address(req.Provider)); err != nil {
		h.logger.WarnContext(ctx, "access revocation failed",
			"request_id", middleware.GetRequestID(ctx),
			"provider", req.Provider,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusResponse struct {
	Approved bool `json:"approved"`
	Pending  bool `json:"pending"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patient := domain.Address(chi.URLParam(r, "patient"))
	provider := domain.Address(chi.URLParam(r, "provider"))

	shared.WriteJSON(w, http.StatusOK, statusResponse{
		Approved: h.views.CheckAccess(ctx, patient, provider),
		Pending:  h.views.CheckPending(ctx, patient, provider),
	})
}

type grantResponse struct {
	Patient     string    `json:"patient"`
	Provider    string    `json:"provider"`
	State       string    `json:"state"`
	Purpose     string    `json:"purpose,omitempty"`
	ContentRefs []string  `json:"content_refs,omitempty"`
	RequestedAt time.Time `json:"requested_at,omitempty"`
	ApprovedAt  time.Time `json:"approved_at,omitempty"`
}

func toGrantResponses(grants []access.Grant) []grantResponse {
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		resp := grantResponse{
			Patient:     string(g.Patient),
			Provider:    string(g.Provider),
			State:       string(g.State),
			Purpose:     g.Purpose,
			RequestedAt: g.RequestedAt,
			ApprovedAt:  g.ApprovedAt,
		}
		for _, ref := range g.ContentRefs {
			resp.ContentRefs = append(resp.ContentRefs, string(ref))
		}
		out = append(out, resp)
	}
	return out
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	grants, err := h.views.PendingRequestsFor(ctx, caller)
	if err != nil {
		h.logger.ErrorContext(ctx, "list pending requests failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list pending requests"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, toGrantResponses(grants))
}

func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	grants, err := h.views.ApprovedGrantsFor(ctx, caller)
	if err != nil {
		h.logger.ErrorContext(ctx, "list grants failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list grants"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, toGrantResponses(grants))
}

type eventResponse struct {
	Seq       uint64    `json:"seq"`
	Type      string    `json:"type"`
	Patient   string    `json:"patient"`
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := events.Filter{
		Type:     events.Type(q.Get("type")),
		Patient:  domain.Address(q.Get("patient")),
		Provider: domain.Address(q.Get("provider")),
	}

	log := h.log.History(filter)
	out := make([]eventResponse, 0, len(log))
	for _, e := range log {
		out = append(out, eventResponse{
			Seq:       e.Seq,
			Type:      string(e.Type),
			Patient:   string(e.Patient),
			Provider:  string(e.Provider),
			Timestamp: e.Timestamp,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
