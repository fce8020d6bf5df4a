package audit

import (
	"context"
	"log/slog"

	"medledger/internal/events"
	"medledger/pkg/domain"
)

// Sink is an optional secondary destination (e.g. Kafka) for compliance
// fan-out. Sink failures are logged, not fatal: the local store remains the
// source of truth for history views.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Worker consumes ledger transition events from a subscription and persists
// them as audit entries.
type Worker struct {
	store  Store
	sink   Sink
	inbox  <-chan events.Event
	logger *slog.Logger
}

func NewWorker(store Store, sink Sink, inbox <-chan events.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			entry := Entry{
				Timestamp: event.Timestamp,
				Action:    string(event.Type),
				Patient:   event.Patient,
				Provider:  event.Provider,
				Seq:       event.Seq,
			}
			if err := w.store.Append(ctx, entry); err != nil {
				return err
			}
			if w.sink != nil {
				if err := w.sink.Publish(ctx, entry); err != nil {
					w.logger.WarnContext(ctx, "audit sink publish failed",
						"action", entry.Action,
						"error", err,
					)
				}
			}
		}
	}
}

// History returns the audit trail for one patient.
func (w *Worker) History(ctx context.Context, patient domain.Address) ([]Entry, error) {
	return w.store.ListByPatient(ctx, patient)
}
