// Package history keeps bounded in-memory retention of recent samples for
// display and export. Fixed capacity, oldest evicted first; nothing here is
// persisted.
package history

import (
	"sync"

	"npsh-guard/internal/domain"
)

// Ring is a fixed-capacity FIFO of samples. Safe for one writer and many
// snapshot readers.
type Ring struct {
	mu    sync.RWMutex
	buf   []domain.Sample
	start int
	count int
}

// NewRing panics on non-positive capacity; the caps come from validated
// config.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("history: capacity must be positive")
	}
	return &Ring{buf: make([]domain.Sample, capacity)}
}

// Append adds a sample, evicting the oldest when full.
func (r *Ring) Append(s domain.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// Snapshot returns the retained samples, oldest first.
func (r *Ring) Snapshot() []domain.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Latest returns the most recent sample, if any.
func (r *Ring) Latest() (domain.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return domain.Sample{}, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}

// Len reports the number of retained samples.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
