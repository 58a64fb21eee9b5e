package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// WidgetCollector exposes widget engine activity as Prometheus metrics. It
// satisfies the engine's Recorder interface.
type WidgetCollector struct {
	gatherer prometheus.Gatherer

	Mounted              *prometheus.GaugeVec
	Cycles               *prometheus.CounterVec
	TimersScheduledTotal *prometheus.CounterVec
	TimersCancelledTotal *prometheus.CounterVec
	StaleCallbacks       *prometheus.CounterVec
	Particles            *prometheus.GaugeVec
	FeedEvictions        *prometheus.CounterVec
	SnapshotsDropped     *prometheus.CounterVec
}

// NewWidgetCollector registers widget metrics against the provided registerer.
func NewWidgetCollector(reg prometheus.Registerer) (*WidgetCollector, error) {
	reg, gatherer := resolveRegistry(reg)
	c := &WidgetCollector{gatherer: gatherer}
	kind := []string{"kind"}

	var err error
	if c.Mounted, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "widgets_mounted",
		Help:      "Number of currently mounted widgets.",
	}, kind)); err != nil {
		return nil, err
	}
	if c.Cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Scenario cycles started, including the first cycle after mount.",
	}, kind)); err != nil {
		return nil, err
	}
	if c.TimersScheduledTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timers_scheduled_total",
		Help:      "Timers registered in widget arenas.",
	}, kind)); err != nil {
		return nil, err
	}
	if c.TimersCancelledTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timers_cancelled_total",
		Help:      "Timers cancelled before firing, by explicit cancel or arena reset.",
	}, kind)); err != nil {
		return nil, err
	}
	if c.StaleCallbacks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_callbacks_total",
		Help:      "Callbacks dropped because their generation had ended.",
	}, kind)); err != nil {
		return nil, err
	}
	if c.Particles, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "particles_active",
		Help:      "Particles currently in flight.",
	}, kind)); err != nil {
		return nil, err
	}
	if c.FeedEvictions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_evictions_total",
		Help:      "Feed entries evicted by the cap.",
	}, kind)); err != nil {
		return nil, err
	}
	if c.SnapshotsDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_dropped_total",
		Help:      "Snapshots not delivered because a subscriber was too slow.",
	}, kind)); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *WidgetCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *WidgetCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

func (c *WidgetCollector) WidgetMounted(kind string) {
	if c == nil {
		return
	}
	c.Mounted.WithLabelValues(kind).Inc()
}

func (c *WidgetCollector) WidgetUnmounted(kind string) {
	if c == nil {
		return
	}
	c.Mounted.WithLabelValues(kind).Dec()
}

func (c *WidgetCollector) CycleStarted(kind string) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(kind).Inc()
}

func (c *WidgetCollector) TimersScheduled(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.TimersScheduledTotal.WithLabelValues(kind).Add(float64(n))
}

func (c *WidgetCollector) TimersCancelled(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.TimersCancelledTotal.WithLabelValues(kind).Add(float64(n))
}

func (c *WidgetCollector) StaleCallback(kind string) {
	if c == nil {
		return
	}
	c.StaleCallbacks.WithLabelValues(kind).Inc()
}

func (c *WidgetCollector) ParticlesActive(kind string, delta int) {
	if c == nil || delta == 0 {
		return
	}
	c.Particles.WithLabelValues(kind).Add(float64(delta))
}

func (c *WidgetCollector) FeedEvicted(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.FeedEvictions.WithLabelValues(kind).Add(float64(n))
}

// SnapshotDropped counts a snapshot a subscriber did not receive.
func (c *WidgetCollector) SnapshotDropped(kind string) {
	if c == nil {
		return
	}
	c.SnapshotsDropped.WithLabelValues(kind).Inc()
}
