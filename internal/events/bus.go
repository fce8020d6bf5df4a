package events

import (
	"context"
	"sort"
	"sync"
)

// Bus is an in-process event log with fan-out subscriptions. It decouples
// consumers from the ledger's native event mechanism: history views replay,
// live views subscribe, and slow subscribers are dropped rather than allowed
// to block transition processing.
type Bus struct {
	mu     sync.RWMutex
	log    []Event
	nextID uint64
	subs   map[int]*subscription
	subSeq int
}

type subscription struct {
	filter Filter

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// send delivers e unless the subscription is closed or its buffer is full.
// The lock serializes sends against close; a send never hits a closed channel.
func (s *subscription) send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// Drop for laggards; the log itself is never lossy.
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// subscriberBuffer bounds per-subscriber queues. A subscriber that falls this
// far behind loses events; Replay recovers the full history.
const subscriberBuffer = 64

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish appends the event to the log, assigns its sequence number, and fans
// it out to matching subscribers.
func (b *Bus) Publish(e Event) Event {
	b.mu.Lock()
	b.nextID++
	e.Seq = b.nextID
	b.log = append(b.log, e)
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.filter.Matches(e) {
			s.send(e)
		}
	}
	return e
}

// LastSeq returns the sequence number of the most recently published event,
// or zero when nothing has been published.
func (b *Bus) LastSeq() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID
}

// Subscribe returns a stream of future events matching the filter. The stream
// closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, filter Filter) <-chan Event {
	b.mu.Lock()
	b.subSeq++
	id := b.subSeq
	sub := &subscription{filter: filter, ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.close()
	}()

	return sub.ch
}

// Replay returns all logged events matching the filter, in order.
func (b *Bus) Replay(filter Filter) []Event {
	return b.ReplaySince(0, filter)
}

// ReplaySince returns logged events with a sequence number greater than seq
// matching the filter, in order. Sequence numbers are assigned in log order,
// so the starting point is found by binary search instead of a full scan.
func (b *Bus) ReplaySince(seq uint64, filter Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start := sort.Search(len(b.log), func(i int) bool { return b.log[i].Seq > seq })
	var out []Event
	for _, e := range b.log[start:] {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
