package book

import (
	"time"
)

// Monitor turns a book's last-update timestamp into a staleness verdict.
// It keeps no state of its own, so a burst of messages flips it back to
// fresh immediately.
type Monitor struct {
	reader    Clocked
	threshold time.Duration
	now       func() time.Time
}

// Clocked is the part of the book the monitor reads.
type Clocked interface {
	LastUpdateAt() time.Time
}

// NewMonitor creates a Monitor with a default threshold. now may be nil.
func NewMonitor(reader Clocked, threshold time.Duration, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{reader: reader, threshold: threshold, now: now}
}

// Threshold returns the default threshold.
func (m *Monitor) Threshold() time.Duration { return m.threshold }

// Stale reports staleness against the default threshold.
func (m *Monitor) Stale() bool {
	return m.StaleAfter(m.threshold)
}

// StaleAfter reports staleness against threshold.
func (m *Monitor) StaleAfter(threshold time.Duration) bool {
	return m.Age() > threshold
}

// Age is the time since the last update. It is effectively infinite when the
// book was never updated.
func (m *Monitor) Age() time.Duration {
	return ageOf(m.reader.LastUpdateAt(), m.now())
}

// Observe reads the last update once and returns it with its age and
// verdict against the default threshold.
func (m *Monitor) Observe() (last time.Time, age time.Duration, stale bool) {
	last = m.reader.LastUpdateAt()
	age = m.AgeAt(last)
	return last, age, age > m.threshold
}

// AgeAt is Age for a timestamp already read, e.g. from a snapshot, so the
// verdict matches the levels read with it.
func (m *Monitor) AgeAt(last time.Time) time.Duration {
	return ageOf(last, m.now())
}

// StaleAt reports staleness of last against the default threshold.
func (m *Monitor) StaleAt(last time.Time) bool {
	return m.AgeAt(last) > m.threshold
}

func ageOf(last, now time.Time) time.Duration {
	if last.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(last)
}
