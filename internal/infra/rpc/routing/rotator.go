package routing

import (
	"math/rand"
	"sync"
	"time"
)

// Rotator owns the distribution state shared by every request that goes
// through one policy: the round-robin cursor and the random source.
type Rotator struct {
	mu     sync.Mutex
	cursor int
	rng    *rand.Rand
}

// NewRotator creates a rotator with its cursor at the first primary.
func NewRotator() *Rotator {
	return &Rotator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the current start offset for n primaries and advances the cursor.
func (r *Rotator) Next(n int) int {
	if n <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.cursor % n
	r.cursor = (r.cursor + 1) % n
	return start
}

// Random returns a uniformly chosen index in [0, n).
func (r *Rotator) Random(n int) int {
	if n <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Cursor returns the current round-robin position.
func (r *Rotator) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}
