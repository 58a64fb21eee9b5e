// Package engine implements the simulated telemetry sequencer behind the
// marketing demo widgets.
//
// A Widget is configured entirely by a Scenario value: an optional ordered
// step list, a numeric tween for the displayed aggregate, an optional
// particle stream and an optional rolling feed. Every timer a widget starts
// is registered in its Timers arena and belongs to the arena's current
// generation; restarting a cycle or unmounting the widget invalidates the
// whole generation at once.
//
// All widget callbacks are expected to run on the host loop goroutine (the
// one calling sched.EventScheduler.RunDue). Snapshot, Retarget and the
// lifecycle methods may be called from any goroutine.
package engine
