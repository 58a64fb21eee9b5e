package engine

import (
	"sync"
	"time"

	"github.com/signalsfoundry/livedemo/internal/sched"
)

// Handle identifies a timer registered in a Timers arena. The zero Handle
// refers to nothing and is safe to cancel.
type Handle struct {
	key uint64
	gen uint64
}

// Valid reports whether h was returned by a scheduling call.
func (h Handle) Valid() bool { return h.key != 0 }

// Generation returns the arena generation h was registered in.
func (h Handle) Generation() uint64 { return h.gen }

// Runner executes a due callback on behalf of the arena. gen is the
// generation the callback was registered in; a runner that holds its own
// lock must re-check it against Timers.Generation before touching state.
type Runner func(gen uint64, fn func())

// TimersOption customises a Timers arena.
type TimersOption func(*Timers)

// WithRunner installs the function that invokes due callbacks.
func WithRunner(r Runner) TimersOption {
	return func(t *Timers) {
		if r != nil {
			t.run = r
		}
	}
}

// WithTimerRecorder reports scheduling activity under kind.
func WithTimerRecorder(kind string, rec Recorder) TimersOption {
	return func(t *Timers) {
		if rec != nil {
			t.kind = kind
			t.rec = rec
		}
	}
}

// Timers is a generation-scoped registry of cancelable timers on top of an
// EventScheduler. Every timer belongs to the generation that was current
// when it was registered; Reset cancels all of them exactly once and moves
// to a new generation, so a callback from an older generation can never run.
type Timers struct {
	sched sched.EventScheduler
	run   Runner
	kind  string
	rec   Recorder

	mu      sync.Mutex
	gen     uint64
	nextKey uint64
	live    map[uint64]string // handle key -> scheduler event ID
}

// NewTimers returns an arena at generation 1.
func NewTimers(s sched.EventScheduler, opts ...TimersOption) *Timers {
	t := &Timers{
		sched: s,
		run:   func(_ uint64, fn func()) { fn() },
		rec:   noopRecorder{},
		gen:   1,
		live:  make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Now returns the host loop time.
func (t *Timers) Now() time.Time {
	return t.sched.Now()
}

// Generation returns the current generation.
func (t *Timers) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Live reports how many timers of the current generation are outstanding.
func (t *Timers) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// After runs fn once, d after the current loop time.
func (t *Timers) After(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextKey++
	key, gen := t.nextKey, t.gen
	at := t.sched.Now().Add(d)
	t.live[key] = t.sched.Schedule(at, func() { t.fireOnce(key, gen, fn) })
	t.rec.TimersScheduled(t.kind, 1)
	return Handle{key: key, gen: gen}
}

// Every runs fn each period until the handle is cancelled or the generation
// ends. Deadlines advance from the previous deadline, not from when the
// callback ran. A non-positive period returns the zero Handle.
func (t *Timers) Every(period time.Duration, fn func()) Handle {
	if period <= 0 {
		return Handle{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextKey++
	key, gen := t.nextKey, t.gen
	t.scheduleIntervalLocked(key, gen, t.sched.Now().Add(period), period, fn)
	t.rec.TimersScheduled(t.kind, 1)
	return Handle{key: key, gen: gen}
}

func (t *Timers) scheduleIntervalLocked(key, gen uint64, at time.Time, period time.Duration, fn func()) {
	t.live[key] = t.sched.Schedule(at, func() { t.fireInterval(key, gen, at, period, fn) })
}

// Cancel stops the timer behind h. Cancelling a handle from an older
// generation, an already-fired one-shot, or the zero Handle is a no-op.
func (t *Timers) Cancel(h Handle) {
	if !h.Valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if h.gen != t.gen {
		return
	}
	id, ok := t.live[h.key]
	if !ok {
		return
	}
	delete(t.live, h.key)
	t.sched.Cancel(id)
	t.rec.TimersCancelled(t.kind, 1)
}

// Reset cancels every outstanding timer of the current generation and
// starts a new one. It returns the number of timers cancelled.
func (t *Timers) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.live)
	for key, id := range t.live {
		t.sched.Cancel(id)
		delete(t.live, key)
	}
	t.gen++
	if n > 0 {
		t.rec.TimersCancelled(t.kind, n)
	}
	return n
}

func (t *Timers) fireOnce(key, gen uint64, fn func()) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		t.rec.StaleCallback(t.kind)
		return
	}
	if _, ok := t.live[key]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.live, key)
	t.mu.Unlock()

	t.run(gen, fn)
}

func (t *Timers) fireInterval(key, gen uint64, at time.Time, period time.Duration, fn func()) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		t.rec.StaleCallback(t.kind)
		return
	}
	if _, ok := t.live[key]; !ok {
		t.mu.Unlock()
		return
	}
	// Re-arm before running so fn can cancel its own handle.
	t.scheduleIntervalLocked(key, gen, at.Add(period), period, fn)
	t.mu.Unlock()

	t.run(gen, fn)
}
