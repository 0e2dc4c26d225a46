// Package latency keeps a bounded window of per-message processing times.
package latency

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// DefaultWindow is the number of samples kept when no capacity is given.
const DefaultWindow = 100

// Ring holds the most recent processing durations and reports their mean.
// The oldest sample is evicted once capacity is reached.
type Ring struct {
	mu       sync.Mutex
	capacity int
	samples  deque.Deque[time.Duration]
	sum      time.Duration
}

// NewRing creates a Ring. A non-positive capacity uses DefaultWindow.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Ring{capacity: capacity}
}

// Record appends a sample.
func (r *Ring) Record(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.samples.Len() == r.capacity {
		r.sum -= r.samples.PopFront()
	}
	r.samples.PushBack(d)
	r.sum += d
}

// Average returns the mean of the window, or zero when empty.
func (r *Ring) Average() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.samples.Len()
	if n == 0 {
		return 0
	}
	return r.sum / time.Duration(n)
}

// Len returns the number of samples held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples.Len()
}

// Capacity returns the window size.
func (r *Ring) Capacity() int { return r.capacity }

// Reset drops every sample.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples.Clear()
	r.sum = 0
}
