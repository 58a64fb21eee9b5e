package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/livedemo/internal/logging"
	"github.com/signalsfoundry/livedemo/internal/sched"
)

const tracerName = "github.com/signalsfoundry/livedemo/internal/engine"

// Lifecycle is a widget's position in its state machine:
// Idle -> Running -> Resetting -> Running ... -> Unmounted.
type Lifecycle string

const (
	Idle      Lifecycle = "idle"
	Running   Lifecycle = "running"
	Resetting Lifecycle = "resetting"
	Unmounted Lifecycle = "unmounted"
)

// Snapshot is an immutable view of a widget's scenario state.
type Snapshot struct {
	WidgetID   string    `json:"widgetId"`
	Kind       string    `json:"kind"`
	State      Lifecycle `json:"state"`
	Generation uint64    `json:"generation"`
	// Seq counts the widget's mutations; sinks receive strictly increasing values.
	Seq       uint64         `json:"seq"`
	Cycle     int            `json:"cycle"`
	Item      RotationItem   `json:"item"`
	Steps     []Step         `json:"steps,omitempty"`
	Value     int64          `json:"value"`
	Tween     TweenState     `json:"tween"`
	Particles []ParticleView `json:"particles,omitempty"`
	Feed      []FeedEntry    `json:"feed,omitempty"`
	At        time.Time      `json:"at"`
}

// Option customises a Widget.
type Option func(*Widget)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Widget) {
		if l != nil {
			w.log = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(w *Widget) {
		if r != nil {
			w.rec = r
		}
	}
}

// WithRand injects the widget's randomness.
func WithRand(r Rand) Option {
	return func(w *Widget) {
		if r != nil {
			w.rng = r
		}
	}
}

// WithSink receives a snapshot after every mutation, in mutation order. The
// sink is called without the widget lock held and must not block for long.
func WithSink(fn func(Snapshot)) Option {
	return func(w *Widget) {
		w.sink = fn
	}
}

// WithTracer overrides the tracer used for cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(w *Widget) {
		if t != nil {
			w.tracer = t
		}
	}
}

// Widget runs one scenario instance: it owns a timer arena, the scenario
// containers of the current cycle, and the dwell timer that restarts them.
type Widget struct {
	id       string
	scenario Scenario
	log      logging.Logger
	rec      Recorder
	rng      Rand
	tracer   trace.Tracer
	sink     func(Snapshot)
	timers   *Timers

	// emitMu is taken before mu is released so sink calls keep mutation order.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     Lifecycle
	cycle     int
	mutations uint64
	baseCtx   context.Context
	span      trace.Span

	// current cycle containers; replaced wholesale on restart.
	tween *Tween
	seq   *Sequencer
	// countUp is the pending start of a step-less widget's tween.
	countUp Handle
	stream  *Stream
	feed    *Feed
}

// NewWidget validates sc and returns an idle widget driven by s.
func NewWidget(id string, sc Scenario, s sched.EventScheduler, opts ...Option) (*Widget, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if sc.Policy == nil {
		sc.Policy = CompletePolicy{}
	}
	w := &Widget{
		id:       id,
		scenario: sc,
		log:      logging.Noop(),
		rec:      noopRecorder{},
		tracer:   otel.Tracer(tracerName),
		state:    Idle,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.rng == nil {
		w.rng = NewRand(0)
	}
	w.log = w.log.With(logging.String("widget_id", id), logging.String("kind", sc.Kind))
	w.timers = NewTimers(s, WithRunner(w.runCallback), WithTimerRecorder(sc.Kind, w.rec))
	w.buildLocked()
	return w, nil
}

// ID returns the widget instance ID.
func (w *Widget) ID() string { return w.id }

// Kind returns the scenario kind.
func (w *Widget) Kind() string { return w.scenario.Kind }

// State returns the lifecycle state.
func (w *Widget) State() Lifecycle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Mount starts the first cycle.
func (w *Widget) Mount(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case Unmounted:
		w.mu.Unlock()
		return ErrUnmounted
	case Idle:
	default:
		w.mu.Unlock()
		return ErrAlreadyMounted
	}
	if ctx != nil {
		w.baseCtx = context.WithoutCancel(ctx)
	}
	w.rec.WidgetMounted(w.scenario.Kind)
	w.startCycleLocked()
	w.publishLocked()

	w.log.Info(w.baseCtx, "widget mounted", logging.Duration("dwell", w.scenario.Dwell))
	return nil
}

// Unmount cancels every outstanding timer and moves to the terminal state.
// No callback runs against this widget afterwards.
func (w *Widget) Unmount(ctx context.Context) error {
	w.mu.Lock()
	if w.state == Unmounted {
		w.mu.Unlock()
		return ErrUnmounted
	}
	wasMounted := w.state != Idle
	cancelled := w.timers.Reset()
	w.stream.Discard()
	w.endSpanLocked()
	w.state = Unmounted
	cycles := w.cycle + 1
	w.publishLocked()

	if wasMounted {
		w.rec.WidgetUnmounted(w.scenario.Kind)
	}
	if ctx == nil {
		ctx = w.baseCtx
	}
	w.log.Info(ctx, "widget unmounted", logging.Int("timers_cancelled", cancelled), logging.Int("cycles", cycles))
	return nil
}

// Retarget moves the displayed aggregate toward target from wherever it is
// now, as a filter change on the live page would.
func (w *Widget) Retarget(target float64) error {
	w.mu.Lock()
	switch w.state {
	case Unmounted:
		w.mu.Unlock()
		return ErrUnmounted
	case Idle:
		w.mu.Unlock()
		return ErrNotMounted
	}
	w.timers.Cancel(w.countUp)
	w.tween.To(target, w.scenario.Tween.Duration, w.scenario.Tween.Steps)
	w.publishLocked()
	return nil
}

// Snapshot returns the current scenario state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Generation returns the timer generation of the current cycle.
func (w *Widget) Generation() uint64 { return w.timers.Generation() }

// PendingTimers reports how many timers of the current cycle are outstanding.
func (w *Widget) PendingTimers() int { return w.timers.Live() }

// runCallback is the arena Runner: it serialises callbacks with the public
// methods and drops any whose generation ended while it waited for the lock.
func (w *Widget) runCallback(gen uint64, fn func()) {
	w.mu.Lock()
	if w.state == Unmounted || w.timers.Generation() != gen {
		w.mu.Unlock()
		w.rec.StaleCallback(w.scenario.Kind)
		w.log.Debug(w.baseCtx, "dropped stale callback", logging.Uint64("generation", gen))
		return
	}
	fn()
	w.publishLocked()
}

// publishLocked records a mutation and hands its snapshot to the sink. It is
// called with w.mu held and returns with it released.
func (w *Widget) publishLocked() {
	w.mutations++
	snap := w.snapshotLocked()
	w.emitMu.Lock()
	w.mu.Unlock()
	defer w.emitMu.Unlock()
	if w.sink != nil {
		w.sink(snap)
	}
}

// buildLocked replaces the cycle containers with fresh ones.
func (w *Widget) buildLocked() {
	sc := w.scenario
	w.tween = NewTween(w.timers, sc.Tween.Baseline)
	w.seq = NewSequencer(w.timers, w.rng, sc.Steps, sc.Policy, w.onStepProgress)
	if sc.Stream != nil {
		w.stream = NewStream(w.timers, w.rng, *sc.Stream, sc.Kind, w.rec)
	} else {
		w.stream = NewStream(w.timers, w.rng, StreamConfig{}, sc.Kind, w.rec)
	}
	if sc.Feed != nil {
		w.feed = NewFeed(w.timers, w.rng, *sc.Feed, sc.Kind, w.rec)
	} else {
		w.feed = NewFeed(w.timers, w.rng, FeedConfig{}, sc.Kind, w.rec)
	}
}

func (w *Widget) item() RotationItem {
	return w.scenario.Rotation[w.cycle%len(w.scenario.Rotation)]
}

func (w *Widget) startCycleLocked() {
	sc := w.scenario
	item := w.item()
	w.state = Running
	w.rec.CycleStarted(sc.Kind)

	_, w.span = w.tracer.Start(w.baseCtx, "widget.cycle", trace.WithAttributes(
		attribute.String("widget.id", w.id),
		attribute.String("widget.kind", sc.Kind),
		attribute.Int("widget.cycle", w.cycle),
		attribute.String("widget.item", item.Name),
		attribute.Int64("widget.generation", int64(w.timers.Generation())),
	))

	if len(sc.Steps) > 0 {
		w.seq.Start()
	} else {
		// The cycle's first snapshot shows the baseline; counting up
		// starts in its own callback.
		target := item.Target
		w.countUp = w.timers.After(0, func() {
			w.tween.To(target, sc.Tween.Duration, sc.Tween.Steps)
		})
	}
	if sc.Stream != nil {
		w.stream.Start()
	}
	if sc.Feed != nil {
		w.feed.Start()
	}
	w.timers.After(sc.Dwell, w.restartLocked)
}

// restartLocked runs from the dwell timer with w.mu held by runCallback.
func (w *Widget) restartLocked() {
	w.state = Resetting
	w.endSpanLocked()
	cancelled := w.timers.Reset()
	w.stream.Discard()
	w.buildLocked()
	w.cycle++
	w.log.Debug(w.baseCtx, "cycle restarted",
		logging.Int("cycle", w.cycle),
		logging.Int("timers_cancelled", cancelled),
		logging.Uint64("generation", w.timers.Generation()),
	)
	w.startCycleLocked()
}

func (w *Widget) onStepProgress(completed, total int) {
	if total == 0 {
		return
	}
	target := float64(completed) * w.item().Target / float64(total)
	w.tween.To(target, w.scenario.Tween.Duration, w.scenario.Tween.Steps)
}

func (w *Widget) endSpanLocked() {
	if w.span != nil {
		w.span.End()
		w.span = nil
	}
}

func (w *Widget) snapshotLocked() Snapshot {
	now := w.timers.Now()
	return Snapshot{
		WidgetID:   w.id,
		Kind:       w.scenario.Kind,
		State:      w.state,
		Generation: w.timers.Generation(),
		Seq:        w.mutations,
		Cycle:      w.cycle,
		Item:       w.item(),
		Steps:      w.seq.Steps(),
		Value:      w.tween.Value(),
		Tween:      w.tween.State(),
		Particles:  w.stream.Views(now),
		Feed:       w.feed.Entries(now),
		At:         now,
	}
}

// String implements fmt.Stringer for log output.
func (w *Widget) String() string {
	return fmt.Sprintf("%s(%s)", w.scenario.Kind, w.id)
}
