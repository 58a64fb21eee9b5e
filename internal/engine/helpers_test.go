package engine

import (
	"sync"
	"time"

	"github.com/signalsfoundry/livedemo/internal/sched"
)

var epoch = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

// fixedRand returns the same draw every time; Read fills bytes from a counter
// so derived IDs stay unique.
type fixedRand struct {
	f float64
	n byte
}

func (r *fixedRand) Intn(int) int     { return 0 }
func (r *fixedRand) Float64() float64 { return r.f }
func (r *fixedRand) Read(p []byte) (int, error) {
	for i := range p {
		r.n++
		p[i] = r.n
	}
	return len(p), nil
}

// countingRecorder tallies engine events for assertions.
type countingRecorder struct {
	mu        sync.Mutex
	mounted   int
	cycles    int
	scheduled int
	cancelled int
	stale     int
	particles int
	evicted   int
}

func (r *countingRecorder) WidgetMounted(string) { r.add(&r.mounted, 1) }
func (r *countingRecorder) WidgetUnmounted(string) {
	r.add(&r.mounted, -1)
}
func (r *countingRecorder) CycleStarted(string)             { r.add(&r.cycles, 1) }
func (r *countingRecorder) TimersScheduled(_ string, n int) { r.add(&r.scheduled, n) }
func (r *countingRecorder) TimersCancelled(_ string, n int) { r.add(&r.cancelled, n) }
func (r *countingRecorder) StaleCallback(string)            { r.add(&r.stale, 1) }
func (r *countingRecorder) ParticlesActive(_ string, d int) { r.add(&r.particles, d) }
func (r *countingRecorder) FeedEvicted(_ string, n int)     { r.add(&r.evicted, n) }

func (r *countingRecorder) add(field *int, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*field += n
}

func (r *countingRecorder) get(field *int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *field
}

// snapshotLog collects snapshots emitted by a widget sink.
type snapshotLog struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (l *snapshotLog) sink(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) all() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Snapshot(nil), l.snaps...)
}

func (l *snapshotLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snaps)
}

func newFakeTimers(opts ...TimersOption) (*sched.FakeEventScheduler, *Timers) {
	s := sched.NewFakeEventScheduler(epoch)
	return s, NewTimers(s, opts...)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
