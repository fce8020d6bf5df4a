// Package ledger is the authoritative call boundary: every identity, access,
// and record-index operation maps 1:1 to a named submitted call, failures
// surface as reverts with a stable reason taxonomy, and committed transitions
// appear in the receipt's event list. The underlying host provides per-key
// total ordering; this package does not reimplement consensus.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"medledger/internal/access"
	"medledger/internal/events"
	"medledger/internal/records"
	"medledger/internal/registry"
	"medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

// Function names accepted by Submit. They mirror the deployed contract
// surface so clients built against it keep working.
const (
	FnRegisterPatient   = "registerPatient"
	FnRegisterProvider  = "registerHealthcareProvider"
	FnVerifyProvider    = "verifyHealthcareProvider"
	FnRejectProvider    = "rejectHealthcareProvider"
	FnRequestAccess     = "requestAccess"
	FnApproveAccess     = "approveAccess"
	FnRevokeAccess      = "revokeAccess"
	FnCheckAccess       = "checkAccess"
	FnCheckPending      = "checkPending"
	FnGetWrappedKey     = "getEncryptedKey"
	FnGetAuthorizedRefs = "getAuthorizedContentRefs"
	FnUploadRecord      = "uploadMedicalRecord"
	FnListRecords       = "getPatientRecords"
)

// Call is one submitted ledger transaction. Caller plays the role of the
// transaction sender; Args must hold the arg struct matching Fn.
type Call struct {
	Fn     string
	Caller domain.Address
	Args   any
}

// Receipt reports a successful call: the typed result (nil for transitions)
// and any events the call committed.
type Receipt struct {
	Result any
	Events []events.Event
}

// RevertError is a failed call. Reason carries the stable revert string;
// the wrapped cause keeps the domain code intact for errors.Is/As.
type RevertError struct {
	Reason string
	cause  error
}

func (e *RevertError) Error() string { return "reverted: " + e.Reason }
func (e *RevertError) Unwrap() error { return e.cause }

// Typed argument structs per function.
type (
	RegisterPatientArgs struct {
		ProfileRef domain.ContentID
	}
	RegisterProviderArgs struct {
		PublicKey  []byte
		ProfileRef domain.ContentID
	}
	ProviderArgs struct {
		Provider domain.Address
	}
	RequestAccessArgs struct {
		Patient domain.Address
		Purpose string
	}
	ApproveAccessArgs struct {
		Provider    domain.Address
		WrappedKey  []byte
		ContentRefs []domain.ContentID
	}
	PairArgs struct {
		Patient  domain.Address
		Provider domain.Address
	}
	PatientArgs struct {
		Patient domain.Address
	}
	UploadRecordArgs struct {
		Patient    domain.Address
		ContentRef domain.ContentID
	}
)

// Ledger dispatches submitted calls to the domain services.
type Ledger struct {
	registry *registry.Service
	access   *access.Service
	records  *records.Service
	bus      *events.Bus
}

func New(reg *registry.Service, acc *access.Service, rec *records.Service, bus *events.Bus) *Ledger {
	return &Ledger{registry: reg, access: acc, records: rec, bus: bus}
}

// Submit executes one call. Transitions are idempotent (per the access state
// machine), so a caller re-submitting after an ambiguous network failure is
// always safe.
func (l *Ledger) Submit(ctx context.Context, call Call) (Receipt, error) {
	if call.Caller == "" {
		return Receipt{}, revert(dErrors.New(dErrors.CodeBadRequest, "caller address is required"))
	}

	before := l.bus.LastSeq()
	result, pair, err := l.dispatch(ctx, call)
	if err != nil {
		return Receipt{}, revert(err)
	}
	return Receipt{Result: result, Events: l.eventsSince(before, pair)}, nil
}

// Subscribe exposes the event stream at the boundary so clients need not
// reach into the bus directly.
func (l *Ledger) Subscribe(ctx context.Context, filter events.Filter) <-chan events.Event {
	return l.bus.Subscribe(ctx, filter)
}

// History replays the committed event log for audit views.
func (l *Ledger) History(filter events.Filter) []events.Event {
	return l.bus.Replay(filter)
}

func (l *Ledger) dispatch(ctx context.Context, call Call) (result any, pair events.Filter, err error) {
	switch call.Fn {
	case FnRegisterPatient:
		args, err := argsAs[RegisterPatientArgs](call)
		if err != nil {
			return nil, pair, err
		}
		return nil, pair, l.registry.RegisterPatient(ctx, call.Caller, args.ProfileRef)

	case FnRegisterProvider:
		args, err := argsAs[RegisterProviderArgs](call)
		if err != nil {
			return nil, pair, err
		}
		return nil, pair, l.registry.RegisterProvider(ctx, call.Caller, args.PublicKey, args.ProfileRef)

	case FnVerifyProvider:
		args, err := argsAs[ProviderArgs](call)
		if err != nil {
			return nil, pair, err
		}
		return nil, pair, l.registry.VerifyProvider(ctx, call.Caller, args.Provider)

	case FnRejectProvider:
		args, err := argsAs[ProviderArgs](call)
		if err != nil {
			return nil, pair, err
		}
		return nil, pair, l.registry.RejectProvider(ctx, call.Caller, args.Provider)

	case FnRequestAccess:
		args, err := argsAs[RequestAccessArgs](call)
		if err != nil {
			return nil, pair, err
		}
		pair = events.Filter{Patient: args.Patient, Provider: call.Caller}
		return nil, pair, l.access.Request(ctx, call.Caller, args.Patient, args.Purpose)

	case FnApproveAccess:
		args, err := argsAs[ApproveAccessArgs](call)
		if err != nil {
			return nil, pair, err
		}
		pair = events.Filter{Patient: call.Caller, Provider: args.Provider}
		return nil, pair, l.access.Approve(ctx, call.Caller, args.Provider, args.WrappedKey, args.ContentRefs)

	case FnRevokeAccess:
		args, err := argsAs[ProviderArgs](call)
		if err != nil {
			return nil, pair, err
		}
		pair = events.Filter{Patient: call.Caller, Provider: args.Provider}
		return nil, pair, l.access.Revoke(ctx, call.Caller, args.Provider)

	case FnCheckAccess:
		args, err := argsAs[PairArgs](call)
		if err != nil {
			return nil, pair, err
		}
		return l.access.CheckAccess(ctx, args.Patient, args.Provider), pair, nil

	case FnCheckPending:
		args, err := argsAs[PairArgs](call)
		if err != nil {
			return nil, pair, err
		}
		return l.access.CheckPending(ctx, args.Patient, args.Provider), pair, nil

	case FnGetWrappedKey:
		args, err := argsAs[PatientArgs](call)
		if err != nil {
			return nil, pair, err
		}
		key, err := l.access.GetWrappedKey(ctx, call.Caller, args.Patient)
		return key, pair, err

	case FnGetAuthorizedRefs:
		args, err := argsAs[PatientArgs](call)
		if err != nil {
			return nil, pair, err
		}
		refs, err := l.access.GetAuthorizedContentRefs(ctx, call.Caller, args.Patient)
		return refs, pair, err

	case FnUploadRecord:
		args, err := argsAs[UploadRecordArgs](call)
		if err != nil {
			return nil, pair, err
		}
		return nil, pair, l.records.Append(ctx, call.Caller, args.Patient, args.ContentRef)

	case FnListRecords:
		args, err := argsAs[PatientArgs](call)
		if err != nil {
			return nil, pair, err
		}
		if call.Caller == args.Patient {
			recs, err := l.records.ListForPatient(ctx, args.Patient)
			return recs, pair, err
		}
		recs, err := l.records.ListForProvider(ctx, call.Caller, args.Patient)
		return recs, pair, err

	default:
		return nil, pair, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown function %q", call.Fn))
	}
}

// eventsSince attributes committed events to the receipt: only events for the
// call's pair published after the pre-dispatch sequence number qualify.
func (l *Ledger) eventsSince(seq uint64, pair events.Filter) []events.Event {
	if pair == (events.Filter{}) {
		return nil
	}
	return l.bus.ReplaySince(seq, pair)
}

func argsAs[T any](call Call) (T, error) {
	args, ok := call.Args.(T)
	if !ok {
		var zero T
		return zero, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("wrong argument type for %s", call.Fn))
	}
	return args, nil
}

func revert(err error) error {
	var de *dErrors.DomainError
	if errors.As(err, &de) {
		return &RevertError{Reason: de.Message, cause: err}
	}
	return &RevertError{Reason: "execution failed", cause: err}
}
