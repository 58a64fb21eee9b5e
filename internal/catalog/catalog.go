// Package catalog loads the demo widget catalog: scenario definitions and the
// static sample-data pools widgets draw from. The default catalog is embedded
// in the binary; an operator can point the server at a replacement file.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/livedemo/internal/engine"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrUnknownWidget indicates a requested widget kind is not in the catalog.
var ErrUnknownWidget = errors.New("unknown widget kind")

// Catalog is the parsed catalog document.
type Catalog struct {
	Pools   map[string][]map[string]string `yaml:"pools"`
	Widgets []WidgetDef                    `yaml:"widgets"`
}

// WidgetDef is one widget scenario as written in YAML.
type WidgetDef struct {
	Kind      string        `yaml:"kind"`
	Title     string        `yaml:"title"`
	Dwell     time.Duration `yaml:"dwell"`
	Tween     TweenDef      `yaml:"tween"`
	Rotation  []RotationDef `yaml:"rotation"`
	Steps     []StepDef     `yaml:"steps"`
	Policy    *PolicyDef    `yaml:"policy"`
	Particles *ParticleDef  `yaml:"particles"`
	Feed      *FeedDef      `yaml:"feed"`
}

type TweenDef struct {
	Baseline float64       `yaml:"baseline"`
	Duration time.Duration `yaml:"duration"`
	Steps    int           `yaml:"steps"`
}

type RotationDef struct {
	Name   string            `yaml:"name"`
	Target float64           `yaml:"target"`
	Fields map[string]string `yaml:"fields"`
}

type StepDef struct {
	ID       string              `yaml:"id"`
	Label    string              `yaml:"label"`
	Duration time.Duration       `yaml:"duration"`
	Messages engine.StepMessages `yaml:"messages"`
}

// PolicyDef selects how steps end. Kind is "complete" or "threshold".
type PolicyDef struct {
	Kind      string  `yaml:"kind"`
	Step      string  `yaml:"step"`
	ScoreMin  float64 `yaml:"score_min"`
	ScoreMax  float64 `yaml:"score_max"`
	Threshold float64 `yaml:"threshold"`
	Below     string  `yaml:"below"`
}

type ParticleDef struct {
	Sources      []engine.Endpoint `yaml:"sources"`
	Destinations []engine.Endpoint `yaml:"destinations"`
	Midpoint     engine.Point      `yaml:"midpoint"`
	Colors       []string          `yaml:"colors"`
	Intervals    []time.Duration   `yaml:"intervals"`
	Lifetime     time.Duration     `yaml:"lifetime"`
	MaxActive    int               `yaml:"max_active"`
}

type FeedDef struct {
	Pool     string        `yaml:"pool"`
	Cap      int           `yaml:"cap"`
	Interval time.Duration `yaml:"interval"`
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads and validates a catalog from r.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// LoadFile reads a catalog from path. An empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate builds every scenario once so configuration errors surface at
// load time rather than on first mount.
func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Widgets))
	for _, w := range c.Widgets {
		if _, dup := seen[w.Kind]; dup {
			return fmt.Errorf("%w: duplicate widget kind %q", engine.ErrInvalidScenario, w.Kind)
		}
		seen[w.Kind] = struct{}{}
		if _, err := c.build(w); err != nil {
			return err
		}
	}
	return nil
}

// Kinds returns the widget kinds in sorted order.
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.Widgets))
	for _, w := range c.Widgets {
		kinds = append(kinds, w.Kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Def returns the raw definition for kind.
func (c *Catalog) Def(kind string) (WidgetDef, error) {
	for _, w := range c.Widgets {
		if w.Kind == kind {
			return w, nil
		}
	}
	return WidgetDef{}, fmt.Errorf("%w: %q", ErrUnknownWidget, kind)
}

// Scenario returns the engine scenario for kind.
func (c *Catalog) Scenario(kind string) (engine.Scenario, error) {
	def, err := c.Def(kind)
	if err != nil {
		return engine.Scenario{}, err
	}
	return c.build(def)
}

func (c *Catalog) build(def WidgetDef) (engine.Scenario, error) {
	sc := engine.Scenario{
		Kind:  def.Kind,
		Dwell: def.Dwell,
		Tween: engine.TweenSpec{
			Baseline: def.Tween.Baseline,
			Duration: def.Tween.Duration,
			Steps:    def.Tween.Steps,
		},
	}
	for _, r := range def.Rotation {
		sc.Rotation = append(sc.Rotation, engine.RotationItem{Name: r.Name, Target: r.Target, Fields: r.Fields})
	}
	for _, s := range def.Steps {
		sc.Steps = append(sc.Steps, engine.StepSpec{ID: s.ID, Label: s.Label, Duration: s.Duration, Messages: s.Messages})
	}

	policy, err := buildPolicy(def.Kind, def.Policy)
	if err != nil {
		return engine.Scenario{}, err
	}
	sc.Policy = policy

	if p := def.Particles; p != nil {
		sc.Stream = &engine.StreamConfig{
			Sources:      p.Sources,
			Destinations: p.Destinations,
			Midpoint:     p.Midpoint,
			Colors:       p.Colors,
			Intervals:    p.Intervals,
			Lifetime:     p.Lifetime,
			MaxActive:    p.MaxActive,
		}
	}
	if f := def.Feed; f != nil {
		pool, ok := c.Pools[f.Pool]
		if !ok {
			return engine.Scenario{}, fmt.Errorf("%w: %s: unknown sample pool %q", engine.ErrInvalidScenario, def.Kind, f.Pool)
		}
		sc.Feed = &engine.FeedConfig{Cap: f.Cap, Interval: f.Interval, Pool: pool}
	}

	if err := sc.Validate(); err != nil {
		return engine.Scenario{}, err
	}
	return sc, nil
}

func buildPolicy(kind string, def *PolicyDef) (engine.TerminalPolicy, error) {
	if def == nil {
		return engine.CompletePolicy{}, nil
	}
	switch def.Kind {
	case "", "complete":
		return engine.CompletePolicy{}, nil
	case "threshold":
		below, err := engine.ParseStepStatus(def.Below)
		if err != nil {
			return nil, fmt.Errorf("%s: policy: %w", kind, err)
		}
		if def.ScoreMax < def.ScoreMin {
			return nil, fmt.Errorf("%w: %s: policy score_max below score_min", engine.ErrInvalidScenario, kind)
		}
		return engine.ThresholdPolicy{
			StepID:    def.Step,
			ScoreMin:  def.ScoreMin,
			ScoreMax:  def.ScoreMax,
			Threshold: def.Threshold,
			Below:     below,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown policy kind %q", engine.ErrInvalidScenario, kind, def.Kind)
	}
}
