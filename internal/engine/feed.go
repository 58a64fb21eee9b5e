package engine

import (
	"fmt"
	"time"
)

// staticLabelField is the pool field that pins an entry's time label.
const staticLabelField = "time"

// FeedConfig describes a rolling feed.
type FeedConfig struct {
	Cap      int
	Interval time.Duration
	// Pool is the immutable sample data entries are drawn from.
	Pool []map[string]string
}

// FeedEntry is one synthetic event in a feed.
type FeedEntry struct {
	ID         string            `json:"id"`
	Fields     map[string]string `json:"fields"`
	InsertedAt time.Time         `json:"insertedAt"`
	Label      string            `json:"label"`
}

// Feed is a capped, most-recent-first list of synthetic entries.
type Feed struct {
	timers *Timers
	rng    Rand
	cfg    FeedConfig
	kind   string
	rec    Recorder

	entries []FeedEntry
}

// NewFeed returns an empty feed.
func NewFeed(timers *Timers, rng Rand, cfg FeedConfig, kind string, rec Recorder) *Feed {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Feed{
		timers: timers,
		rng:    rng,
		cfg:    cfg,
		kind:   kind,
		rec:    rec,
	}
}

// Start registers the tick interval.
func (f *Feed) Start() {
	f.timers.Every(f.cfg.Interval, f.Tick)
}

// Tick synthesises one entry from the pool and inserts it.
func (f *Feed) Tick() {
	if len(f.cfg.Pool) == 0 {
		return
	}
	sample := pick(f.rng, f.cfg.Pool)
	fields := make(map[string]string, len(sample))
	for k, v := range sample {
		fields[k] = v
	}
	f.Insert(FeedEntry{
		ID:         newID(f.rng),
		Fields:     fields,
		InsertedAt: f.timers.Now(),
		Label:      sample[staticLabelField],
	})
}

// Insert prepends e and truncates to the cap. It returns how many entries
// were evicted.
func (f *Feed) Insert(e FeedEntry) int {
	f.entries = append(f.entries, FeedEntry{})
	copy(f.entries[1:], f.entries)
	f.entries[0] = e

	evicted := 0
	if f.cfg.Cap > 0 && len(f.entries) > f.cfg.Cap {
		evicted = len(f.entries) - f.cfg.Cap
		for i := f.cfg.Cap; i < len(f.entries); i++ {
			f.entries[i] = FeedEntry{}
		}
		f.entries = f.entries[:f.cfg.Cap]
		f.rec.FeedEvicted(f.kind, evicted)
	}
	return evicted
}

// Len returns the number of entries.
func (f *Feed) Len() int { return len(f.entries) }

// Entries returns a copy of the feed, most recent first, with relative
// labels computed at now for entries that have no static label.
func (f *Feed) Entries(now time.Time) []FeedEntry {
	out := make([]FeedEntry, len(f.entries))
	for i, e := range f.entries {
		if e.Label == "" {
			e.Label = RelativeLabel(e.InsertedAt, now)
		}
		out[i] = e
	}
	return out
}

// RelativeLabel renders how long ago inserted was, as seen at now.
func RelativeLabel(inserted, now time.Time) string {
	age := now.Sub(inserted)
	switch {
	case age < 5*time.Second:
		return "Just now"
	case age < time.Minute:
		return fmt.Sprintf("%d seconds ago", int(age/time.Second))
	case age < 2*time.Minute:
		return "1 minute ago"
	case age < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(age/time.Minute))
	case age < 2*time.Hour:
		return "1 hour ago"
	default:
		return fmt.Sprintf("%d hours ago", int(age/time.Hour))
	}
}
