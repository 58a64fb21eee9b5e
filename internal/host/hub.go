// Package host runs widget instances on a shared event loop and exposes their
// snapshots over HTTP Server-Sent Events and a gRPC server stream.
package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/livedemo/internal/catalog"
	"github.com/signalsfoundry/livedemo/internal/engine"
	"github.com/signalsfoundry/livedemo/internal/logging"
	"github.com/signalsfoundry/livedemo/internal/sched"
	"github.com/signalsfoundry/livedemo/timectrl"
)

const (
	defaultTick   = 16 * time.Millisecond
	defaultBuffer = 16
)

// Recorder is the engine recorder plus the delivery metric the hub owns.
type Recorder interface {
	engine.Recorder
	SnapshotDropped(kind string)
}

type noopRecorder struct{ engine.Recorder }

func (noopRecorder) SnapshotDropped(string) {}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithClock drives the loop from tc instead of a real-time controller.
func WithClock(tc *timectrl.TimeController) HubOption {
	return func(h *Hub) { h.clock = tc }
}

// WithTick sets the real-time loop granularity.
func WithTick(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.tick = d
		}
	}
}

// WithScheduler replaces the event scheduler widgets register timers in.
// Tests pass a FakeEventScheduler and advance it by hand.
func WithScheduler(s sched.EventScheduler) HubOption {
	return func(h *Hub) { h.sched = s }
}

// WithSeed makes widget randomness reproducible: the nth mount is seeded
// with seed+n. Zero seeds from the wall clock.
func WithSeed(seed int64) HubOption {
	return func(h *Hub) { h.seed = seed }
}

// WithBuffer sets how many snapshots a subscriber may lag behind.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithHubLogger(l logging.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

func WithHubRecorder(r Recorder) HubOption {
	return func(h *Hub) {
		if r != nil {
			h.rec = r
		}
	}
}

// Hub owns the event loop shared by every mounted widget. Each subscription
// mounts a fresh widget instance; closing it unmounts the widget.
type Hub struct {
	clock  *timectrl.TimeController
	sched  sched.EventScheduler
	log    logging.Logger
	rec    Recorder
	tick   time.Duration
	buffer int
	seed   int64

	mu     sync.Mutex
	cat    *catalog.Catalog
	subs   map[string]*Subscription
	mounts int64
	closed bool
}

// NewHub builds a hub serving the widgets in cat.
func NewHub(cat *catalog.Catalog, opts ...HubOption) *Hub {
	h := &Hub{
		cat:    cat,
		log:    logging.Noop(),
		rec:    noopRecorder{engine.NoopRecorder()},
		tick:   defaultTick,
		buffer: defaultBuffer,
		subs:   make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = timectrl.NewTimeController(time.Now(), h.tick, timectrl.RealTime)
	}
	if h.sched == nil {
		h.sched = sched.NewEventScheduler(h.clock)
	}
	h.clock.AddListener(func(time.Time) { h.sched.RunDue() })
	return h
}

// Kinds lists the widget kinds a client may subscribe to.
func (h *Hub) Kinds() []string { return h.currentCatalog().Kinds() }

// SetCatalog swaps the widget definitions used for new subscriptions.
// Widgets already mounted keep running the scenario they were built from.
func (h *Hub) SetCatalog(cat *catalog.Catalog) {
	if cat == nil {
		return
	}
	h.mu.Lock()
	h.cat = cat
	h.mu.Unlock()
	h.log.Info(context.Background(), "catalog updated", logging.Int("widgets", len(cat.Widgets)))
}

func (h *Hub) currentCatalog() *catalog.Catalog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cat
}

// Now returns the loop time.
func (h *Hub) Now() time.Time { return h.sched.Now() }

// Active returns the number of mounted widgets.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run drives the loop until ctx is cancelled, then unmounts every widget.
func (h *Hub) Run(ctx context.Context) error {
	return h.RunFor(ctx, 0)
}

// RunFor drives the loop for d of loop time (forever when d is zero) or
// until ctx is cancelled, then unmounts every widget.
func (h *Hub) RunFor(ctx context.Context, d time.Duration) error {
	h.log.Info(ctx, "hub loop started",
		logging.String("mode", h.clock.Mode.String()),
		logging.Duration("tick", h.clock.Tick),
	)
	h.clock.Run(ctx, d)
	h.Close()
	h.log.Info(context.WithoutCancel(ctx), "hub loop stopped")
	return nil
}

// Subscribe mounts a new widget of kind and returns its snapshot stream.
// The first snapshot is the freshly mounted state.
func (h *Hub) Subscribe(ctx context.Context, kind string) (*Subscription, error) {
	if kind == "" {
		return nil, ErrMissingKind
	}
	sc, err := h.currentCatalog().Scenario(kind)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.mounts++
	n := h.mounts
	h.mu.Unlock()

	var seed int64
	if h.seed != 0 {
		seed = h.seed + n
	}
	sub := &Subscription{
		hub:  h,
		id:   kind + "-" + uuid.NewString()[:8],
		kind: kind,
		ch:   make(chan engine.Snapshot, h.buffer),
	}
	w, err := engine.NewWidget(sub.id, sc, h.sched,
		engine.WithLogger(h.log),
		engine.WithRecorder(h.rec),
		engine.WithRand(engine.NewRand(seed)),
		engine.WithSink(sub.deliver),
	)
	if err != nil {
		return nil, err
	}
	sub.widget = w

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	if err := w.Mount(ctx); err != nil {
		h.remove(sub.id)
		return nil, err
	}
	return sub, nil
}

// Close unmounts every widget and refuses new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscription is one mounted widget and the channel its snapshots arrive on.
type Subscription struct {
	hub    *Hub
	id     string
	kind   string
	widget *engine.Widget

	once   sync.Once
	mu     sync.Mutex
	ch     chan engine.Snapshot
	closed bool
}

func (s *Subscription) ID() string   { return s.id }
func (s *Subscription) Kind() string { return s.kind }

// C delivers snapshots until the subscription is closed.
func (s *Subscription) C() <-chan engine.Snapshot { return s.ch }

// Snapshot returns the widget's current state.
func (s *Subscription) Snapshot() engine.Snapshot { return s.widget.Snapshot() }

// Retarget moves the widget's displayed aggregate toward target.
func (s *Subscription) Retarget(target float64) error { return s.widget.Retarget(target) }

// Close unmounts the widget and closes C after the final snapshot.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		if uerr := s.widget.Unmount(context.Background()); uerr != nil && !errors.Is(uerr, engine.ErrUnmounted) {
			err = uerr
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.hub.remove(s.id)
	})
	return err
}

// deliver is the widget sink. A full buffer drops the oldest queued snapshot
// so a slow reader always catches up to the latest state.
func (s *Subscription) deliver(snap engine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
		s.hub.rec.SnapshotDropped(s.kind)
	default:
	}
	select {
	case s.ch <- snap:
	default:
		s.hub.rec.SnapshotDropped(s.kind)
	}
}
