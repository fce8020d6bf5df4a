package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"medledger/internal/access"
	"medledger/internal/blob"
	"medledger/internal/cryptoengine"
	"medledger/internal/events"
	"medledger/internal/ledger"
	"medledger/internal/records"
	"medledger/internal/registry"
	"medledger/internal/session"
	"medledger/internal/token"
)

const (
	adminAddress    = "0xadmin"
	patientAddress  = "0xpatient"
	providerAddress = "0xprovider"
)

type fixture struct {
	router http.Handler
	tokens *token.Service
	salt   string
}

// newFixture wires the full stack with registered, verified principals so the
// tests exercise the consent lifecycle over HTTP.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := events.NewBus()
	registrySvc := registry.NewService(registry.NewInMemoryStore(), adminAddress)
	accessSvc := access.NewService(access.NewInMemoryStore(), registrySvc, bus)
	recordsSvc := records.NewService(records.NewInMemoryStore(), accessSvc)
	ldgr := ledger.New(registrySvc, accessSvc, recordsSvc, bus)
	orch := session.NewOrchestrator(ldgr, blob.NewInMemoryStore(), registrySvc, nil)
	tokenSvc := token.NewService("test-key", "medledger-test")

	ctx := t.Context()
	pair, err := cryptoengine.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	if err := registrySvc.RegisterPatient(ctx, patientAddress, ""); err != nil {
		t.Fatalf("register patient: %v", err)
	}
	if err := registrySvc.RegisterProvider(ctx, providerAddress, cryptoengine.PublicKeyBytes(pair.Public), ""); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := registrySvc.VerifyProvider(ctx, adminAddress, providerAddress); err != nil {
		t.Fatalf("verify provider: %v", err)
	}

	salt, err := cryptoengine.NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}

	router := chi.NewRouter()
	New(orch, accessSvc, ldgr, slog.Default(), nil, tokenSvc).Register(router)
	return &fixture{
		router: router,
		tokens: tokenSvc,
		salt:   base64.StdEncoding.EncodeToString(salt),
	}
}

func (f *fixture) do(t *testing.T, method, path, address string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := f.tokens.GenerateToken(address, false, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) status(t *testing.T) statusResponse {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/access/status/"+patientAddress+"/"+providerAddress, providerAddress, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d", rec.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return resp
}

func TestConsentLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/access/requests", providerAddress, requestAccessRequest{
		Patient: patientAddress,
		Purpose: "treatment",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 requesting access, got %d: %s", rec.Code, rec.Body)
	}
	if st := f.status(t); !st.Pending || st.Approved {
		t.Fatalf("expected pending state, got %+v", st)
	}

	rec = f.do(t, http.MethodGet, "/access/requests/pending", patientAddress, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing pending, got %d", rec.Code)
	}
	var pending []grantResponse
	if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Provider != providerAddress {
		t.Fatalf("expected one pending request from the provider, got %+v", pending)
	}

	rec = f.do(t, http.MethodPost, "/access/approvals", patientAddress, approveAccessRequest{
		Provider:    providerAddress,
		ContentRefs: []string{"ref-1"},
		Secret:      "patient passphrase",
		Salt:        f.salt,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 approving, got %d: %s", rec.Code, rec.Body)
	}
	if st := f.status(t); !st.Approved || st.Pending {
		t.Fatalf("expected approved state, got %+v", st)
	}

	rec = f.do(t, http.MethodGet, "/access/grants", providerAddress, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing grants, got %d", rec.Code)
	}
	var grants []grantResponse
	if err := json.NewDecoder(rec.Body).Decode(&grants); err != nil {
		t.Fatalf("decode grants: %v", err)
	}
	if len(grants) != 1 || grants[0].Patient != patientAddress {
		t.Fatalf("expected one approved grant, got %+v", grants)
	}

	rec = f.do(t, http.MethodPost, "/access/revocations", patientAddress, revokeAccessRequest{
		Provider: providerAddress,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 revoking, got %d: %s", rec.Code, rec.Body)
	}
	if st := f.status(t); st.Approved || st.Pending {
		t.Fatalf("expected cleared state, got %+v", st)
	}

	rec = f.do(t, http.MethodGet, "/access/events", patientAddress, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing events, got %d", rec.Code)
	}
	var log []eventResponse
	if err := json.NewDecoder(rec.Body).Decode(&log); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(log) != 3 || log[0].Type != "Requested" || log[1].Type != "Approved" || log[2].Type != "Revoked" {
		t.Fatalf("expected the full transition history, got %+v", log)
	}
}

func TestRevertReasonsSurfaceOverHTTP(t *testing.T) {
	f := newFixture(t)

	// An unregistered caller is not a verified provider.
	rec := f.do(t, http.MethodPost, "/access/requests", "0xstranger", requestAccessRequest{
		Patient: patientAddress,
		Purpose: "treatment",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unverified requester, got %d", rec.Code)
	}
	var resp struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if resp.Error != "not_verified" || resp.Reason != "Caller is not a verified provider" {
		t.Fatalf("expected the stable revert reason, got %+v", resp)
	}

	// Approval by a non-patient caller.
	rec = f.do(t, http.MethodPost, "/access/approvals", "0xstranger", approveAccessRequest{
		Provider: providerAddress,
		Secret:   "secret",
		Salt:     f.salt,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-patient approval, got %d", rec.Code)
	}
}
