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
	"medledger/internal/records"
	"medledger/internal/session"
	"medledger/internal/transport/http/shared"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// Flows is the orchestrated side: upload encrypts and stores before touching
// the index, retrieve unwraps the record key and decrypts every authorized ref.
type Flows interface {
	UploadRecord(ctx context.Context, caller, patient domain.Address, plaintext []byte, params session.ApproveParams) (domain.ContentID, error)
	Retrieve(ctx context.Context, provider, patient domain.Address, privateKey []byte) ([]session.RecordResult, error)
}

// Submitter is the ledger call boundary for index reads.
type Submitter interface {
	Submit(ctx context.Context, call ledger.Call) (ledger.Receipt, error)
}

// Handler serves the record index and retrieval endpoints.
type Handler struct {
	logger    *slog.Logger
	flows     Flows
	ledger    Submitter
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

func New(flows Flows, ledger Submitter, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		flows:     flows,
		ledger:    ledger,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the records routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.Recovery(h.logger))
		router.Use(middleware.RequestID)
		router.Use(middleware.Logger(h.logger))
		router.Use(middleware.Timeout(60 * time.Second))
		router.Use(middleware.ContentTypeJSON)
		router.Use(middleware.Latency(h.metrics))
		router.Use(middleware.RequireAuth(h.validator, h.logger))

		router.Post("/records", h.handleUpload)
		router.Get("/records/{patient}", h.handleList)
		router.Post("/records/retrieve", h.handleRetrieve)
	})
}

type uploadRequest struct {
	Patient   string `json:"patient"`
	Plaintext string `json:"plaintext"` // base64
	Secret    string `json:"secret"`
	Salt      string `json:"salt"` // base64
}

type uploadResponse struct {
	ContentRef string `json:"content_ref"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	plaintext, err := base64.StdEncoding.DecodeString(req.Plaintext)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "plaintext must be base64"))
		return
	}
	salt, err := base64.StdEncoding.DecodeString(req.Salt)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "salt must be base64"))
		return
	}

	patient := domain.Address(req.Patient)
	if patient == "" {
		patient = caller
	}

	ref, err := h.flows.UploadRecord(ctx, caller, patient, plaintext, session.ApproveParams{
		Secret: req.Secret,
		Salt:   salt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "record upload failed",
			"request_id", middleware.GetRequestID(ctx),
			"patient", patient,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, uploadResponse{ContentRef: string(ref)})
}

type recordResponse struct {
	ContentRef string    `json:"content_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))
	patient := domain.Address(chi.URLParam(r, "patient"))

	receipt, err := h.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnListRecords,
		Caller: caller,
		Args:   ledger.PatientArgs{Patient: patient},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "record listing failed",
			"request_id", middleware.GetRequestID(ctx),
			"patient", patient,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	recs, ok := receipt.Result.([]records.ContentRecord)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "unexpected record listing payload"))
		return
	}
	out := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordResponse{
			ContentRef: string(rec.ContentRef),
			CreatedAt:  rec.CreatedAt,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

type retrieveRequest struct {
	Patient    string `json:"patient"`
	PrivateKey string `json:"private_key"` // base64, raw scalar
}

type retrieveItemResponse struct {
	ContentRef string `json:"content_ref"`
	Plaintext  string `json:"plaintext,omitempty"` // base64
	Error      string `json:"error,omitempty"`
}

func (h *Handler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := domain.Address(middleware.GetCallerAddress(ctx))

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	privateKey, err := base64.StdEncoding.DecodeString(req.PrivateKey)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "private_key must be base64"))
		return
	}

	results, err := h.flows.Retrieve(ctx, caller, domain.Address(req.Patient), privateKey)
	if err != nil {
		h.logger.WarnContext(ctx, "retrieval failed",
			"request_id", middleware.GetRequestID(ctx),
			"patient", req.Patient,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}

	out := make([]retrieveItemResponse, 0, len(results))
	for _, res := range results {
		item := retrieveItemResponse{ContentRef: string(res.Ref)}
		if res.Err != nil {
			item.Error = string(dErrors.CodeOf(res.Err))
		} else {
			item.Plaintext = base64.StdEncoding.EncodeToString(res.Plaintext)
		}
		out = append(out, item)
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
