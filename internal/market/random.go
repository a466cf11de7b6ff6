package market

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the randomness seam for the generator and scheduler.
// Float64 must return a value in [0, 1).
type Source interface {
	Float64() float64
}

// RNG is a seeded PCG source that is safe for concurrent use.
type RNG struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRNG creates a generator for seed. A zero seed uses the current time.
func NewRNG(seed int64) *RNG {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := uint64(seed)
	return &RNG{r: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))}
}

// Float64 returns a uniformly distributed float64 in [0, 1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}
