package engine

import "time"

// Keyframe positions along a particle's path, as fractions of its lifetime.
const (
	keyframeDepart = 0.15
	keyframeMid    = 0.5
	keyframeArrive = 0.85

	minParticleScale = 0.5
)

// Point is a position on the widget canvas, in percent of width/height.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Endpoint is a particle source or destination.
type Endpoint struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Position Point  `json:"position"`
}

// StreamConfig describes a particle stream.
type StreamConfig struct {
	Sources      []Endpoint
	Destinations []Endpoint
	Midpoint     Point
	Colors       []string
	// Intervals are independent spawn cadences; each one spawns a particle
	// per period. Mixing periods keeps the flow from looking mechanical.
	Intervals []time.Duration
	Lifetime  time.Duration
	// MaxActive skips spawns while this many particles are live. Zero means
	// no cap beyond what Lifetime and Intervals imply.
	MaxActive int
}

// Particle is an immutable entity travelling from a source to a destination.
type Particle struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"sourceId"`
	DestinationID string    `json:"destinationId"`
	Color         string    `json:"color"`
	SpawnTime     time.Time `json:"spawnTime"`
}

// ParticleView is a particle with its interpolated render state at a moment.
type ParticleView struct {
	Particle
	Progress float64 `json:"progress"`
	Position Point   `json:"position"`
	Opacity  float64 `json:"opacity"`
	Scale    float64 `json:"scale"`
}

// Keyframe interpolates position, opacity and scale at progress t in [0,1].
// The particle rests on src until 15%, passes through mid at 50%, rests on
// dst from 85%, and fades/grows in and out symmetrically.
func Keyframe(src, mid, dst Point, t float64) (pos Point, opacity, scale float64) {
	switch {
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}

	switch {
	case t <= keyframeDepart:
		pos = src
	case t <= keyframeMid:
		pos = lerpPoint(src, mid, (t-keyframeDepart)/(keyframeMid-keyframeDepart))
	case t < keyframeArrive:
		pos = lerpPoint(mid, dst, (t-keyframeMid)/(keyframeArrive-keyframeMid))
	default:
		pos = dst
	}

	ramp := 1.0
	switch {
	case t < keyframeDepart:
		ramp = t / keyframeDepart
	case t > keyframeArrive:
		ramp = (1 - t) / (1 - keyframeArrive)
	}
	return pos, ramp, minParticleScale + (1-minParticleScale)*ramp
}

func lerpPoint(a, b Point, u float64) Point {
	return Point{X: a.X + (b.X-a.X)*u, Y: a.Y + (b.Y-a.Y)*u}
}

// Stream spawns particles on several staggered intervals and removes each
// one when its lifetime ends.
type Stream struct {
	timers *Timers
	rng    Rand
	cfg    StreamConfig
	kind   string
	rec    Recorder

	active []Particle // spawn order
	byID   map[string]Endpoint
}

// NewStream returns an idle stream.
func NewStream(timers *Timers, rng Rand, cfg StreamConfig, kind string, rec Recorder) *Stream {
	if rec == nil {
		rec = noopRecorder{}
	}
	byID := make(map[string]Endpoint, len(cfg.Sources)+len(cfg.Destinations))
	for _, e := range cfg.Sources {
		byID[e.ID] = e
	}
	for _, e := range cfg.Destinations {
		byID[e.ID] = e
	}
	return &Stream{
		timers: timers,
		rng:    rng,
		cfg:    cfg,
		kind:   kind,
		rec:    rec,
		byID:   byID,
	}
}

// Start registers one spawn timer per configured interval.
func (s *Stream) Start() {
	for _, iv := range s.cfg.Intervals {
		s.timers.Every(iv, s.Spawn)
	}
}

// Spawn creates one particle and schedules its removal.
func (s *Stream) Spawn() {
	if len(s.cfg.Sources) == 0 || len(s.cfg.Destinations) == 0 {
		return
	}
	if s.cfg.MaxActive > 0 && len(s.active) >= s.cfg.MaxActive {
		return
	}
	color := ""
	if len(s.cfg.Colors) > 0 {
		color = pick(s.rng, s.cfg.Colors)
	}
	p := Particle{
		ID:            newID(s.rng),
		SourceID:      pick(s.rng, s.cfg.Sources).ID,
		DestinationID: pick(s.rng, s.cfg.Destinations).ID,
		Color:         color,
		SpawnTime:     s.timers.Now(),
	}
	s.active = append(s.active, p)
	s.rec.ParticlesActive(s.kind, 1)

	id := p.ID
	s.timers.After(s.cfg.Lifetime, func() { s.remove(id) })
}

func (s *Stream) remove(id string) {
	for i, p := range s.active {
		if p.ID == id {
			s.active = append(s.active[:i], s.active[i+1:]...)
			s.rec.ParticlesActive(s.kind, -1)
			return
		}
	}
}

// Discard drops every live particle without waiting for removal timers.
func (s *Stream) Discard() {
	if n := len(s.active); n > 0 {
		s.rec.ParticlesActive(s.kind, -n)
	}
	s.active = nil
}

// Len returns the number of live particles.
func (s *Stream) Len() int { return len(s.active) }

// Views renders every live particle at now.
func (s *Stream) Views(now time.Time) []ParticleView {
	out := make([]ParticleView, 0, len(s.active))
	for _, p := range s.active {
		progress := 1.0
		if s.cfg.Lifetime > 0 {
			progress = float64(now.Sub(p.SpawnTime)) / float64(s.cfg.Lifetime)
		}
		pos, opacity, scale := Keyframe(s.byID[p.SourceID].Position, s.cfg.Midpoint, s.byID[p.DestinationID].Position, progress)
		if progress > 1 {
			progress = 1
		}
		out = append(out, ParticleView{
			Particle: p,
			Progress: progress,
			Position: pos,
			Opacity:  opacity,
			Scale:    scale,
		})
	}
	return out
}
