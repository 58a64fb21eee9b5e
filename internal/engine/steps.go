package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepComplete   StepStatus = "complete"
	StepWarning    StepStatus = "warning"
	StepFail       StepStatus = "fail"
)

// Terminal reports whether s ends a step.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepComplete, StepWarning, StepFail:
		return true
	default:
		return false
	}
}

// ParseStepStatus converts a catalog string into a StepStatus.
func ParseStepStatus(s string) (StepStatus, error) {
	switch st := StepStatus(s); st {
	case StepPending, StepProcessing, StepComplete, StepWarning, StepFail:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown step status %q", ErrInvalidScenario, s)
	}
}

// StepMessages are the per-status captions shown next to a step.
type StepMessages struct {
	Pending    string `yaml:"pending" json:"pending,omitempty"`
	Processing string `yaml:"processing" json:"processing,omitempty"`
	Complete   string `yaml:"complete" json:"complete,omitempty"`
	Warning    string `yaml:"warning" json:"warning,omitempty"`
	Fail       string `yaml:"fail" json:"fail,omitempty"`
}

func (m StepMessages) For(s StepStatus) string {
	switch s {
	case StepProcessing:
		return m.Processing
	case StepComplete:
		return m.Complete
	case StepWarning:
		return m.Warning
	case StepFail:
		return m.Fail
	default:
		return m.Pending
	}
}

// StepSpec is the static definition of a step.
type StepSpec struct {
	ID       string
	Label    string
	Duration time.Duration
	Messages StepMessages
}

// Step is the live state of one step within a scenario.
type Step struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Status     StepStatus    `json:"status"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"-"`
	Confidence *float64      `json:"confidence,omitempty"`
}

// MarshalJSON reports Duration in milliseconds.
func (s Step) MarshalJSON() ([]byte, error) {
	type alias Step
	return json.Marshal(struct {
		alias
		DurationMs int64 `json:"durationMs"`
	}{alias: alias(s), DurationMs: s.Duration.Milliseconds()})
}

// Outcome is the terminal result a policy assigns to a step.
type Outcome struct {
	Status     StepStatus
	Confidence *float64
	Message    string // overrides the step's message when set
}

// TerminalPolicy decides how a step ends.
type TerminalPolicy interface {
	Resolve(index int, spec StepSpec, r Rand) Outcome
}

// CompletePolicy ends every step as complete.
type CompletePolicy struct{}

func (CompletePolicy) Resolve(int, StepSpec, Rand) Outcome {
	return Outcome{Status: StepComplete}
}

// ThresholdPolicy scores one step with a uniform draw and ends it with
// Below when the score is under Threshold. Other steps complete.
type ThresholdPolicy struct {
	StepID    string
	ScoreMin  float64
	ScoreMax  float64
	Threshold float64
	Below     StepStatus
}

func (p ThresholdPolicy) Resolve(_ int, spec StepSpec, r Rand) Outcome {
	if spec.ID != p.StepID {
		return Outcome{Status: StepComplete}
	}
	score := uniform(r, p.ScoreMin, p.ScoreMax)
	confidence := score / 100
	if score < p.Threshold {
		return Outcome{Status: p.Below, Confidence: &confidence}
	}
	return Outcome{Status: StepComplete, Confidence: &confidence}
}

// Offsets returns, for each step, the delay from scenario start at which it
// enters processing and the delay at which it ends.
func Offsets(specs []StepSpec) (starts, ends []time.Duration) {
	starts = make([]time.Duration, len(specs))
	ends = make([]time.Duration, len(specs))
	var offset time.Duration
	for i, spec := range specs {
		d := spec.Duration
		if d < 0 {
			d = 0
		}
		starts[i] = offset
		offset += d
		ends[i] = offset
	}
	return starts, ends
}

// Sequencer advances an ordered list of steps one at a time. All of its
// transitions are registered in the arena when Start is called.
type Sequencer struct {
	timers     *Timers
	rng        Rand
	policy     TerminalPolicy
	specs      []StepSpec
	steps      []Step
	completed  int
	onProgress func(completed, total int)
}

// NewSequencer builds a sequencer with every step pending. onProgress, when
// non-nil, runs after every transition.
func NewSequencer(timers *Timers, rng Rand, specs []StepSpec, policy TerminalPolicy, onProgress func(completed, total int)) *Sequencer {
	if policy == nil {
		policy = CompletePolicy{}
	}
	steps := make([]Step, len(specs))
	for i, spec := range specs {
		steps[i] = Step{
			ID:       spec.ID,
			Label:    spec.Label,
			Status:   StepPending,
			Message:  spec.Messages.Pending,
			Duration: spec.Duration,
		}
	}
	return &Sequencer{
		timers:     timers,
		rng:        rng,
		policy:     policy,
		specs:      specs,
		steps:      steps,
		onProgress: onProgress,
	}
}

// Start schedules every transition relative to the current loop time.
// An empty step list schedules nothing.
func (s *Sequencer) Start() {
	starts, ends := Offsets(s.specs)
	for i := range s.specs {
		i := i
		s.timers.After(starts[i], func() { s.begin(i) })
		s.timers.After(ends[i], func() { s.finish(i) })
	}
}

func (s *Sequencer) begin(i int) {
	s.steps[i].Status = StepProcessing
	s.steps[i].Message = s.specs[i].Messages.Processing
	s.progress()
}

func (s *Sequencer) finish(i int) {
	out := s.policy.Resolve(i, s.specs[i], s.rng)
	if !out.Status.Terminal() {
		out.Status = StepComplete
	}
	s.steps[i].Status = out.Status
	s.steps[i].Confidence = out.Confidence
	s.steps[i].Message = s.specs[i].Messages.For(out.Status)
	if out.Message != "" {
		s.steps[i].Message = out.Message
	}
	s.completed++
	s.progress()
}

func (s *Sequencer) progress() {
	if s.onProgress != nil {
		s.onProgress(s.completed, len(s.steps))
	}
}

// Steps returns a copy of the current step states.
func (s *Sequencer) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Completed returns the number of steps in a terminal status.
func (s *Sequencer) Completed() int { return s.completed }

// Done reports whether every step has ended.
func (s *Sequencer) Done() bool { return s.completed == len(s.steps) }
