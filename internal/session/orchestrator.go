// Package session drives the protocol flows end to end from the client side:
// request, approve (select content, wrap key, submit), upload, and retrieve
// (fetch wrapped key, unwrap, fetch and decrypt content). The orchestrator
// holds no authoritative state; secret material lives only in local memory
// for the duration of a single flow and is wiped on every exit path.
package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"medledger/internal/blob"
	"medledger/internal/cryptoengine"
	"medledger/internal/ledger"
	"medledger/internal/platform/metrics"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// LedgerClient is the submit boundary. Every call through it is a suspension
// point: it may be slow, may be retried by the transport, and therefore is
// only ever used for idempotent transitions.
type LedgerClient interface {
	Submit(ctx context.Context, call ledger.Call) (ledger.Receipt, error)
}

// KeyDirectory resolves a provider's registered ECDH public key.
type KeyDirectory interface {
	ProviderPublicKey(ctx context.Context, address domain.Address) ([]byte, error)
}

// Orchestrator coordinates the ledger, the blob store, and the crypto engine.
type Orchestrator struct {
	ledger  LedgerClient
	blobs   blob.Store
	keys    KeyDirectory
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// fetchConcurrency bounds parallel blob fetches during retrieval.
	fetchConcurrency int
}

func NewOrchestrator(lc LedgerClient, blobs blob.Store, keys KeyDirectory, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		ledger:           lc,
		blobs:            blobs,
		keys:             keys,
		metrics:          m,
		tracer:           otel.Tracer("medledger/session"),
		fetchConcurrency: 4,
	}
}

// RequestAccess submits an access request on behalf of the provider.
// Input validation happens locally before any network round trip.
func (o *Orchestrator) RequestAccess(ctx context.Context, provider, patient domain.Address, purpose string) error {
	ctx, span := o.tracer.Start(ctx, "session.request_access")
	defer span.End()

	if patient == "" || purpose == "" {
		return dErrors.New(dErrors.CodeBadRequest, "patient address and purpose are required")
	}
	_, err := o.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnRequestAccess,
		Caller: provider,
		Args:   ledger.RequestAccessArgs{Patient: patient, Purpose: purpose},
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if o.metrics != nil {
		o.metrics.AccessRequests.Inc()
	}
	return nil
}

// ApproveParams carries the patient's approval decision. Either Key or
// (Secret, Salt) must be set; the orchestrator zeroes the key before
// returning, on success and failure alike.
type ApproveParams struct {
	Provider    domain.Address
	ContentRefs []domain.ContentID
	Secret      string
	Salt        []byte
	Key         *cryptoengine.Key256 // reuse an already-derived record key
}

// ApproveAccess derives (or reuses) the record key, wraps it for the
// provider's registered public key, and submits the approval with the
// selected content refs.
func (o *Orchestrator) ApproveAccess(ctx context.Context, patient domain.Address, params ApproveParams) error {
	ctx, span := o.tracer.Start(ctx, "session.approve_access",
		trace.WithAttributes(attribute.Int("content_refs", len(params.ContentRefs))))
	defer span.End()

	key, err := o.resolveKey(params)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer key.Zero()

	rawPub, err := o.keys.ProviderPublicKey(ctx, params.Provider)
	if err != nil {
		span.RecordError(err)
		return err
	}
	recipientPub, err := cryptoengine.ParsePublicKey(rawPub)
	if err != nil {
		span.RecordError(err)
		return err
	}

	wrapped, err := cryptoengine.WrapKey(key, recipientPub)
	if err != nil {
		span.RecordError(err)
		return err
	}

	_, err = o.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnApproveAccess,
		Caller: patient,
		Args: ledger.ApproveAccessArgs{
			Provider:    params.Provider,
			WrappedKey:  wrapped.Marshal(),
			ContentRefs: params.ContentRefs,
		},
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if o.metrics != nil {
		o.metrics.AccessApprovals.Inc()
	}
	return nil
}

// RevokeAccess withdraws a provider's access.
func (o *Orchestrator) RevokeAccess(ctx context.Context, patient, provider domain.Address) error {
	ctx, span := o.tracer.Start(ctx, "session.revoke_access")
	defer span.End()

	_, err := o.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnRevokeAccess,
		Caller: patient,
		Args:   ledger.ProviderArgs{Provider: provider},
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if o.metrics != nil {
		o.metrics.AccessRevocations.Inc()
	}
	return nil
}

// UploadRecord encrypts plaintext under the record key, puts the ciphertext
// in the blob store, and appends the reference to the patient's index.
// Caller may be the patient or a provider holding approved access.
func (o *Orchestrator) UploadRecord(ctx context.Context, caller, patient domain.Address, plaintext []byte, params ApproveParams) (domain.ContentID, error) {
	ctx, span := o.tracer.Start(ctx, "session.upload_record",
		trace.WithAttributes(attribute.Int("plaintext_bytes", len(plaintext))))
	defer span.End()

	key, err := o.resolveKey(params)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer key.Zero()

	ciphertext, err := cryptoengine.EncryptContent(plaintext, key)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	ref, err := o.blobs.Put(ctx, ciphertext)
	if err != nil {
		span.RecordError(err)
		return "", dErrors.Wrap(err, dErrors.CodeSubmitFailed, "blob upload failed")
	}

	_, err = o.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnUploadRecord,
		Caller: caller,
		Args:   ledger.UploadRecordArgs{Patient: patient, ContentRef: ref},
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if o.metrics != nil {
		o.metrics.RecordsAppended.Inc()
	}
	return ref, nil
}

// RecordResult is the per-item outcome of a retrieval flow. A failed item
// does not fail the flow: the caller can still use the decrypted subset.
type RecordResult struct {
	Ref       domain.ContentID
	Plaintext []byte
	Err       error
}

// Retrieve fetches the wrapped key for (patient → provider), unwraps it with
// the provider's private key, then fetches and decrypts every authorized
// content ref. Blob fetches run concurrently; results preserve ref order.
func (o *Orchestrator) Retrieve(ctx context.Context, provider, patient domain.Address, privateKey []byte) ([]RecordResult, error) {
	ctx, span := o.tracer.Start(ctx, "session.retrieve")
	defer span.End()
	start := time.Now()

	priv, err := cryptoengine.ParsePrivateKey(privateKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	receipt, err := o.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnGetWrappedKey,
		Caller: provider,
		Args:   ledger.PatientArgs{Patient: patient},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rawWrapped, ok := receipt.Result.([]byte)
	if !ok {
		return nil, dErrors.New(dErrors.CodeSubmitFailed, "unexpected wrapped key payload")
	}
	wrapped, err := cryptoengine.UnmarshalWrappedKey(rawWrapped)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	key, err := cryptoengine.UnwrapKey(wrapped, priv)
	if err != nil {
		if o.metrics != nil {
			o.metrics.DecryptionFailures.Inc()
		}
		span.RecordError(err)
		return nil, err
	}
	defer key.Zero()

	receipt, err = o.ledger.Submit(ctx, ledger.Call{
		Fn:     ledger.FnGetAuthorizedRefs,
		Caller: provider,
		Args:   ledger.PatientArgs{Patient: patient},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	refs, ok := receipt.Result.([]domain.ContentID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeSubmitFailed, "unexpected content refs payload")
	}

	results := make([]RecordResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			results[i] = o.fetchAndDecrypt(gctx, ref, key)
			return nil
		})
	}
	// Workers report per-item errors through results, never through the
	// group, so a single bad blob cannot abort its siblings.
	_ = g.Wait()

	if o.metrics != nil {
		o.metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.Int("records", len(results)))
	return results, nil
}

func (o *Orchestrator) fetchAndDecrypt(ctx context.Context, ref domain.ContentID, key cryptoengine.Key256) RecordResult {
	ciphertext, err := o.blobs.Get(ctx, ref)
	if err != nil {
		return RecordResult{Ref: ref, Err: dErrors.Wrap(err, dErrors.CodeNotFound, "blob not found")}
	}
	plaintext, err := cryptoengine.DecryptContent(ciphertext, key)
	if err != nil {
		if o.metrics != nil {
			o.metrics.DecryptionFailures.Inc()
		}
		return RecordResult{Ref: ref, Err: err}
	}
	return RecordResult{Ref: ref, Plaintext: plaintext}
}

func (o *Orchestrator) resolveKey(params ApproveParams) (cryptoengine.Key256, error) {
	if params.Key != nil {
		key := *params.Key
		params.Key.Zero()
		return key, nil
	}
	return cryptoengine.DeriveSymmetricKey(params.Secret, params.Salt)
}
