package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medledger/pkg/domain"
)

type BusSuite struct {
	suite.Suite
	bus *Bus
}

func (s *BusSuite) SetupTest() {
	s.bus = NewBus()
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusSuite))
}

func (s *BusSuite) publish(t Type, patient, provider domain.Address) Event {
	return s.bus.Publish(Event{Type: t, Patient: patient, Provider: provider, Timestamp: time.Now()})
}

func (s *BusSuite) TestPublish() {
	s.Run("assigns monotonically increasing sequence numbers", func() {
		e1 := s.publish(TypeRequested, "p", "d")
		e2 := s.publish(TypeApproved, "p", "d")
		s.Equal(uint64(1), e1.Seq)
		s.Equal(uint64(2), e2.Seq)
	})
}

func (s *BusSuite) TestReplay() {
	s.publish(TypeRequested, "p1", "d1")
	s.publish(TypeApproved, "p1", "d1")
	s.publish(TypeRequested, "p2", "d2")

	s.Run("unfiltered replay returns the full log in order", func() {
		log := s.bus.Replay(Filter{})
		s.Require().Len(log, 3)
		s.Equal(uint64(1), log[0].Seq)
		s.Equal(uint64(3), log[2].Seq)
	})

	s.Run("filters narrow by pair", func() {
		log := s.bus.Replay(Filter{Patient: "p1", Provider: "d1"})
		s.Len(log, 2)
	})

	s.Run("filters narrow by type", func() {
		log := s.bus.Replay(Filter{Type: TypeApproved})
		s.Require().Len(log, 1)
		s.EqualValues("p1", log[0].Patient)
	})
}

func (s *BusSuite) TestLastSeq() {
	s.Equal(uint64(0), s.bus.LastSeq())
	s.publish(TypeRequested, "p", "d")
	s.publish(TypeApproved, "p", "d")
	s.Equal(uint64(2), s.bus.LastSeq())
}

func (s *BusSuite) TestReplaySince() {
	s.publish(TypeRequested, "p1", "d1")
	s.publish(TypeApproved, "p1", "d1")
	s.publish(TypeRequested, "p2", "d2")

	s.Run("zero cutoff returns the full log", func() {
		s.Len(s.bus.ReplaySince(0, Filter{}), 3)
	})

	s.Run("returns only events after the cutoff", func() {
		log := s.bus.ReplaySince(1, Filter{})
		s.Require().Len(log, 2)
		s.Equal(uint64(2), log[0].Seq)
	})

	s.Run("cutoff combines with a pair filter", func() {
		log := s.bus.ReplaySince(1, Filter{Patient: "p1", Provider: "d1"})
		s.Require().Len(log, 1)
		s.Equal(TypeApproved, log[0].Type)
	})

	s.Run("cutoff at the head returns nothing", func() {
		s.Empty(s.bus.ReplaySince(s.bus.LastSeq(), Filter{}))
	})
}

func (s *BusSuite) TestSubscribe() {
	s.Run("subscriber receives matching future events", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch := s.bus.Subscribe(ctx, Filter{Patient: "p1"})
		s.publish(TypeRequested, "p1", "d1")
		s.publish(TypeRequested, "p2", "d2")

		select {
		case e := <-ch:
			s.EqualValues("p1", e.Patient)
		case <-time.After(time.Second):
			s.Fail("expected an event")
		}

		select {
		case e, ok := <-ch:
			s.Failf("unexpected event", "got %+v (open=%v)", e, ok)
		case <-time.After(50 * time.Millisecond):
		}
	})

	s.Run("stream closes on context cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		ch := s.bus.Subscribe(ctx, Filter{})
		cancel()

		select {
		case _, ok := <-ch:
			s.False(ok)
		case <-time.After(time.Second):
			s.Fail("expected the stream to close")
		}
	})

	s.Run("cancellation races publishing without panicking", func() {
		// A subscriber's channel used to be closed while a concurrent
		// publish could still send on it, crashing the process.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 5000; i++ {
				s.publish(TypeRequested, "p", "d")
			}
		}()

		for i := 0; i < 500; i++ {
			ctx, cancel := context.WithCancel(context.Background())
			ch := s.bus.Subscribe(ctx, Filter{})
			cancel()
			for range ch { // drain until the stream closes
			}
		}
		<-done
	})

	s.Run("slow subscribers are dropped, not blocked on", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s.bus.Subscribe(ctx, Filter{}) // never drained
		done := make(chan struct{})
		go func() {
			for i := 0; i < subscriberBuffer*2; i++ {
				s.publish(TypeRequested, "p", "d")
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			s.Fail("publishing blocked on a slow subscriber")
		}
	})
}
