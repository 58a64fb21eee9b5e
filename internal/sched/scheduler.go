// Package sched provides the host event loop's timer facility: callbacks
// registered for a point in loop time and executed in deadline order when
// the loop calls RunDue.
package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/livedemo/timectrl"
)

// EventScheduler schedules callbacks to run at specific loop times based on
// a SimClock implementation.
//
// The host loop advances time with a TimeController and calls RunDue after
// each advance. Widgets never talk to the scheduler directly; they go through
// a generation-owned timer arena that remembers every ID it was handed.
type EventScheduler interface {
	// Schedule registers a callback f to run at loop time 'at'.
	// It returns an opaque event ID that can be used to cancel the event.
	Schedule(at time.Time, f func()) (id string)

	// Cancel attempts to cancel a previously scheduled event.
	// It is a no-op if the ID is unknown or the event already ran.
	Cancel(id string)

	// Now returns the current loop time, usually delegated to the underlying SimClock.
	Now() time.Time

	// RunDue executes all events whose scheduled time is <= Now().
	// Events with equal deadlines run in the order they were scheduled.
	// It is safe to call multiple times; already-run events never run again.
	RunDue()

	// Pending reports how many non-cancelled events are waiting to run.
	Pending() int
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// eventScheduler is the production EventScheduler. Events are kept in a
// slice ordered by deadline; cancellation is lazy.
type eventScheduler struct {
	clock timectrl.SimClock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by 'when' (earliest first)
	index   map[string]*scheduledEvent
}

// NewEventScheduler creates a new event scheduler backed by the given SimClock.
func NewEventScheduler(clock timectrl.SimClock) EventScheduler {
	return &eventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

// Schedule registers a callback to run at the specified loop time.
func (s *eventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)

	ev := &scheduledEvent{
		id:   id,
		when: at,
		f:    f,
	}

	s.addEventLocked(ev)
	s.index[id] = ev

	return id
}

// addEventLocked inserts an event after every event with the same or an
// earlier deadline, keeping ties FIFO.
// Caller must hold s.mu lock.
func (s *eventScheduler) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})

	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

// Cancel attempts to cancel a previously scheduled event.
func (s *eventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}

	ev.cancelled = true
	ev.f = nil
	delete(s.index, id)
	// Actual removal from s.events is lazy; RunDue skips cancelled events.
}

// Now returns the current loop time from the underlying clock.
func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

// Pending reports the number of live events.
func (s *eventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// popNextLocked removes and returns the next due, non-cancelled event.
// Returns nil if no events are due.
// Caller must hold s.mu lock.
func (s *eventScheduler) popNextLocked(now time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events[0] = nil
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			// Events are ordered by time, so all later ones are in the future too.
			return nil
		}
		s.events[0] = nil
		s.events = s.events[1:]
		return ev
	}
	return nil
}

// RunDue executes all events whose scheduled time is <= Now().
func (s *eventScheduler) RunDue() {
	now := s.clock.Now()
	for {
		s.mu.Lock()
		ev := s.popNextLocked(now)
		if ev == nil {
			s.mu.Unlock()
			return
		}
		delete(s.index, ev.id)
		f := ev.f
		s.mu.Unlock()

		// Execute callback outside the lock so callbacks can schedule and cancel.
		if f != nil {
			f()
		}
	}
}
