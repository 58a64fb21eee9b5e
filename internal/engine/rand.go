package engine

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Rand is the randomness a widget draws from for sample selection, jitter
// and identifiers. *math/rand.Rand satisfies it; tests inject a seeded one
// to get deterministic sequences.
type Rand interface {
	Intn(n int) int
	Float64() float64
	Read(p []byte) (n int, err error)
}

// NewRand returns a Rand seeded with seed, or with the wall clock when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func pick[T any](r Rand, items []T) T {
	return items[r.Intn(len(items))]
}

// uniform draws a float in [lo, hi).
func uniform(r Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}

// newID derives a UUID from r so seeded runs produce stable identifiers.
func newID(r Rand) string {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
