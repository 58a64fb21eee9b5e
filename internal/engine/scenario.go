package engine

import (
	"fmt"
	"time"
)

// RotationItem is one subject a widget cycles through, e.g. a fake company.
type RotationItem struct {
	Name   string            `json:"name"`
	Target float64           `json:"target"`
	Fields map[string]string `json:"fields,omitempty"`
}

// TweenSpec configures the displayed aggregate.
type TweenSpec struct {
	Baseline float64
	Duration time.Duration
	Steps    int
}

// Scenario is the data-only definition of a widget.
type Scenario struct {
	Kind     string
	Dwell    time.Duration
	Rotation []RotationItem
	Tween    TweenSpec
	Steps    []StepSpec
	Policy   TerminalPolicy
	Stream   *StreamConfig
	Feed     *FeedConfig
}

// Validate checks the scenario can run without producing runaway timers.
func (s Scenario) Validate() error {
	if s.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidScenario)
	}
	if s.Dwell <= 0 {
		return fmt.Errorf("%w: %s: dwell must be positive", ErrInvalidScenario, s.Kind)
	}
	if len(s.Rotation) == 0 {
		return fmt.Errorf("%w: %s: rotation must not be empty", ErrInvalidScenario, s.Kind)
	}
	if s.Tween.Steps < 0 || s.Tween.Duration < 0 {
		return fmt.Errorf("%w: %s: tween steps and duration must not be negative", ErrInvalidScenario, s.Kind)
	}
	seen := make(map[string]struct{}, len(s.Steps))
	for _, st := range s.Steps {
		if st.ID == "" {
			return fmt.Errorf("%w: %s: step id is required", ErrInvalidScenario, s.Kind)
		}
		if _, dup := seen[st.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate step %q", ErrInvalidScenario, s.Kind, st.ID)
		}
		seen[st.ID] = struct{}{}
		if st.Duration < 0 {
			return fmt.Errorf("%w: %s: step %q has negative duration", ErrInvalidScenario, s.Kind, st.ID)
		}
	}
	if p, ok := s.Policy.(ThresholdPolicy); ok {
		if _, found := seen[p.StepID]; !found {
			return fmt.Errorf("%w: %s: policy references unknown step %q", ErrInvalidScenario, s.Kind, p.StepID)
		}
		if !p.Below.Terminal() {
			return fmt.Errorf("%w: %s: policy status %q is not terminal", ErrInvalidScenario, s.Kind, p.Below)
		}
	}
	if st := s.Stream; st != nil {
		if len(st.Sources) == 0 || len(st.Destinations) == 0 {
			return fmt.Errorf("%w: %s: particle stream needs sources and destinations", ErrInvalidScenario, s.Kind)
		}
		if len(st.Intervals) == 0 {
			return fmt.Errorf("%w: %s: particle stream needs at least one interval", ErrInvalidScenario, s.Kind)
		}
		for _, iv := range st.Intervals {
			if iv <= 0 {
				return fmt.Errorf("%w: %s: particle interval must be positive", ErrInvalidScenario, s.Kind)
			}
		}
		if st.Lifetime <= 0 {
			return fmt.Errorf("%w: %s: particle lifetime must be positive", ErrInvalidScenario, s.Kind)
		}
	}
	if f := s.Feed; f != nil {
		if f.Cap <= 0 {
			return fmt.Errorf("%w: %s: feed cap must be positive", ErrInvalidScenario, s.Kind)
		}
		if f.Interval <= 0 {
			return fmt.Errorf("%w: %s: feed interval must be positive", ErrInvalidScenario, s.Kind)
		}
		if len(f.Pool) == 0 {
			return fmt.Errorf("%w: %s: feed pool must not be empty", ErrInvalidScenario, s.Kind)
		}
	}
	return nil
}
