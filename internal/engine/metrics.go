package engine

// Recorder receives engine activity for metrics. All methods must be safe
// for concurrent use; the observability package provides the Prometheus
// implementation.
type Recorder interface {
	WidgetMounted(kind string)
	WidgetUnmounted(kind string)
	CycleStarted(kind string)
	TimersScheduled(kind string, n int)
	TimersCancelled(kind string, n int)
	StaleCallback(kind string)
	ParticlesActive(kind string, delta int)
	FeedEvicted(kind string, n int)
}

type noopRecorder struct{}

func (noopRecorder) WidgetMounted(string)        {}
func (noopRecorder) WidgetUnmounted(string)      {}
func (noopRecorder) CycleStarted(string)         {}
func (noopRecorder) TimersScheduled(string, int) {}
func (noopRecorder) TimersCancelled(string, int) {}
func (noopRecorder) StaleCallback(string)        {}
func (noopRecorder) ParticlesActive(string, int) {}
func (noopRecorder) FeedEvicted(string, int)     {}

// NoopRecorder returns a Recorder that drops everything.
func NoopRecorder() Recorder { return noopRecorder{} }
