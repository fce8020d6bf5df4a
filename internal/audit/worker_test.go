package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medledger/internal/events"
	"medledger/pkg/domain"
)

type recordingSink struct {
	entries []Entry
	fail    bool
}

func (r *recordingSink) Publish(_ context.Context, entry Entry) error {
	if r.fail {
		return errors.New("broker unavailable")
	}
	r.entries = append(r.entries, entry)
	return nil
}

type WorkerSuite struct {
	suite.Suite
	store *InMemoryStore
	bus   *events.Bus
}

func (s *WorkerSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.bus = events.NewBus()
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) runWorker(ctx context.Context, sink Sink) <-chan error {
	worker := NewWorker(s.store, sink, s.bus.Subscribe(ctx, events.Filter{}), slog.Default())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	return done
}

func (s *WorkerSuite) waitForEntries(patient domain.Address, n int) []Entry {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := s.store.ListByPatient(context.Background(), patient)
		s.Require().NoError(err)
		if len(entries) >= n {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.FailNow("timed out waiting for audit entries")
	return nil
}

func (s *WorkerSuite) TestRun() {
	s.Run("persists every transition event", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.runWorker(ctx, nil)

		s.bus.Publish(events.Event{Type: events.TypeRequested, Patient: "p1", Provider: "d1", Timestamp: time.Now()})
		s.bus.Publish(events.Event{Type: events.TypeApproved, Patient: "p1", Provider: "d1", Timestamp: time.Now()})

		entries := s.waitForEntries("p1", 2)
		s.Equal("Requested", entries[0].Action)
		s.Equal("Approved", entries[1].Action)
		s.EqualValues("d1", entries[0].Provider)
	})

	s.Run("forwards entries to the sink", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sink := &recordingSink{}
		s.runWorker(ctx, sink)

		s.bus.Publish(events.Event{Type: events.TypeRevoked, Patient: "p2", Provider: "d2", Timestamp: time.Now()})

		s.waitForEntries("p2", 1)
		deadline := time.Now().Add(2 * time.Second)
		for len(sink.entries) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		s.Require().Len(sink.entries, 1)
		s.Equal("Revoked", sink.entries[0].Action)
	})

	s.Run("sink failures do not stop the worker", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.runWorker(ctx, &recordingSink{fail: true})

		s.bus.Publish(events.Event{Type: events.TypeRequested, Patient: "p3", Provider: "d3", Timestamp: time.Now()})
		s.bus.Publish(events.Event{Type: events.TypeApproved, Patient: "p3", Provider: "d3", Timestamp: time.Now()})

		entries := s.waitForEntries("p3", 2)
		s.Len(entries, 2)
	})

	s.Run("stops on context cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := s.runWorker(ctx, nil)
		cancel()

		select {
		case err := <-done:
			// Either exit path is fine: ctx.Done or the closed subscription.
			if err != nil {
				s.Require().ErrorIs(err, context.Canceled)
			}
		case <-time.After(2 * time.Second):
			s.Fail("worker did not stop")
		}
	})
}
