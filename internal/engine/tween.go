package engine

import (
	"math"
	"time"
)

// TweenState is the displayed value and the value it is moving toward.
type TweenState struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

// Done reports whether the tween has landed on its target.
func (s TweenState) Done() bool { return s.Current == s.Target }

// stepTween applies one increment. The final step (taken == steps) or any
// step that reaches or passes the target lands exactly on target.
func stepTween(current, target, increment float64, taken, steps int) (float64, bool) {
	next := current + increment
	if taken >= steps || increment == 0 ||
		(increment > 0 && next >= target) ||
		(increment < 0 && next <= target) {
		return target, true
	}
	return next, false
}

// Interpolate returns the values a tween from current to target emits over
// steps ticks. The last value is always exactly target. steps < 1 is
// treated as 1.
func Interpolate(current, target float64, steps int) []float64 {
	if steps < 1 {
		steps = 1
	}
	increment := (target - current) / float64(steps)
	out := make([]float64, 0, steps)
	for taken := 1; taken <= steps; taken++ {
		next, done := stepTween(current, target, increment, taken, steps)
		out = append(out, next)
		current = next
		if done {
			break
		}
	}
	return out
}

// Tween animates a displayed number toward a target on a fixed interval.
// Only one interpolation is ever in flight; To cancels the previous one and
// continues from wherever the value currently is.
type Tween struct {
	timers *Timers

	state     TweenState
	increment float64
	taken     int
	steps     int
	handle    Handle
}

// NewTween returns a tween resting at baseline.
func NewTween(timers *Timers, baseline float64) *Tween {
	return &Tween{
		timers: timers,
		state:  TweenState{Current: baseline, Target: baseline},
	}
}

// To starts interpolating toward target in steps ticks spread over duration.
// Re-targeting to the value already in flight is a no-op. A non-positive
// duration jumps straight to target.
func (tw *Tween) To(target float64, duration time.Duration, steps int) {
	if tw.Running() && tw.state.Target == target {
		return
	}
	tw.timers.Cancel(tw.handle)
	tw.handle = Handle{}

	if steps < 1 {
		steps = 1
	}
	tw.state.Target = target
	if duration <= 0 || tw.state.Current == target {
		tw.state.Current = target
		return
	}

	interval := duration / time.Duration(steps)
	if interval <= 0 {
		interval = time.Millisecond
	}
	tw.increment = (target - tw.state.Current) / float64(steps)
	tw.taken = 0
	tw.steps = steps
	tw.handle = tw.timers.Every(interval, tw.tick)
}

// Set cancels any interpolation and pins the value.
func (tw *Tween) Set(v float64) {
	tw.timers.Cancel(tw.handle)
	tw.handle = Handle{}
	tw.state = TweenState{Current: v, Target: v}
}

func (tw *Tween) tick() {
	tw.taken++
	next, done := stepTween(tw.state.Current, tw.state.Target, tw.increment, tw.taken, tw.steps)
	tw.state.Current = next
	if done {
		tw.timers.Cancel(tw.handle)
		tw.handle = Handle{}
	}
}

// Running reports whether an interpolation is in flight.
func (tw *Tween) Running() bool { return tw.handle.Valid() }

// State returns the current and target values.
func (tw *Tween) State() TweenState { return tw.state }

// Value returns the displayed integer.
func (tw *Tween) Value() int64 { return int64(math.Round(tw.state.Current)) }
