package realtime

import (
	"sync"

	"github.com/google/uuid"
)

const defaultBacklog = 4096

// Bus is an append-only event log with an independent cursor per
// subscriber. Every subscriber sees every matching event once, in publish
// order; acknowledging events in one subscription never hides them from
// another. Entries are dropped once all open cursors have passed them.
type Bus struct {
	mu      sync.Mutex
	log     []Event
	base    uint64 // sequence number of log[0]
	subs    map[string]*Subscription
	backlog int
}

func NewBus() *Bus { return NewBusWithBacklog(defaultBacklog) }

// NewBusWithBacklog bounds the log; a subscriber lagging further than max
// events behind loses the oldest ones (see Subscription.Missed).
func NewBusWithBacklog(max int) *Bus {
	if max <= 0 {
		max = defaultBacklog
	}
	return &Bus{subs: make(map[string]*Subscription), backlog: max}
}

func (b *Bus) end() uint64 { return b.base + uint64(len(b.log)) }

func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, ev)
	if len(b.log) > b.backlog {
		drop := len(b.log) - b.backlog
		newBase := b.base + uint64(drop)
		for _, s := range b.subs {
			// only events the subscriber filters for count as missed
			for seq := s.cursor; seq < newBase; seq++ {
				if s.wants(b.log[seq-b.base]) {
					s.missed++
				}
			}
			if s.cursor < newBase {
				s.cursor = newBase
			}
			if s.mark < s.cursor {
				s.mark = s.cursor
			}
		}
		b.log = append([]Event(nil), b.log[drop:]...)
		b.base = newBase
	}
	for _, s := range b.subs {
		if s.wants(ev) {
			select {
			case s.ready <- struct{}{}:
			default:
			}
		}
	}
	b.compactLocked()
}

// Subscribe starts a cursor at the current end of the log. With no types the
// subscription receives every event.
func (b *Bus) Subscribe(name string, types ...EventType) *Subscription {
	s := &Subscription{
		ID:    uuid.NewString(),
		Name:  name,
		bus:   b,
		ready: make(chan struct{}, 1),
	}
	if len(types) > 0 {
		s.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	b.mu.Lock()
	s.cursor = b.end()
	s.mark = s.cursor
	b.subs[s.ID] = s
	b.mu.Unlock()
	return s
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Len is the number of retained log entries.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log)
}

func (b *Bus) compactLocked() {
	min := b.end()
	for _, s := range b.subs {
		if s.cursor < min {
			min = s.cursor
		}
	}
	if n := int(min - b.base); n > 0 {
		b.log = append([]Event(nil), b.log[n:]...)
		b.base = min
	}
}

type Subscription struct {
	ID   string
	Name string

	bus    *Bus
	types  map[EventType]bool
	cursor uint64
	mark   uint64 // end of the batch last returned by Pending
	missed uint64
	closed bool
	ready  chan struct{}
}

func (s *Subscription) wants(ev Event) bool {
	return s.types == nil || s.types[ev.Type()]
}

// Ready receives a signal after at least one matching event was published.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Pending returns the visible batch without acknowledging it.
func (s *Subscription) Pending() []Event {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.pendingLocked()
}

func (s *Subscription) pendingLocked() []Event {
	b := s.bus
	var out []Event
	for _, ev := range b.log[s.cursor-b.base:] {
		if s.wants(ev) {
			out = append(out, ev)
		}
	}
	s.mark = b.end()
	return out
}

// Clear acknowledges the batch last returned by Pending. Events published
// after that call stay pending. Cleared events are not redelivered.
func (s *Subscription) Clear() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	if s.mark > s.cursor {
		s.cursor = s.mark
	}
	b.compactLocked()
}

// Poll returns and acknowledges the visible batch in one step.
func (s *Subscription) Poll() []Event {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return nil
	}
	out := s.pendingLocked()
	s.cursor = s.mark
	b.compactLocked()
	return out
}

// Missed counts events dropped before this subscriber read them.
func (s *Subscription) Missed() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.missed
}

func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s.ID)
	b.compactLocked()
}
