package domain

import "time"

// FeedStatus is the consumer-facing view of whichever writer feeds the book.
type FeedStatus struct {
	Source       string        `json:"source"`
	State        string        `json:"state"`
	Connected    bool          `json:"connected"`
	Attempt      int           `json:"attempt"`
	BackoffDelay time.Duration `json:"backoff_delay"`
	SessionID    string        `json:"session_id,omitempty"`
	AvgLatency   time.Duration `json:"avg_latency"`
	Messages     uint64        `json:"messages"`
	DecodeErrors uint64        `json:"decode_errors"`
	Replay       *ReplayStatus `json:"replay,omitempty"`
}

// ReplayStatus reports playback progress for the offline source.
type ReplayStatus struct {
	Index  int     `json:"index"`
	Total  int     `json:"total"`
	Speed  float64 `json:"speed"`
	Paused bool    `json:"paused"`
	Loops  int     `json:"loops"`
}

// StatusReporter is implemented by book writers that expose their status.
type StatusReporter interface {
	Status() FeedStatus
}

// FeedObserver receives lifecycle and per-message events from a book writer.
// Implementations must be safe for concurrent use and must not block.
type FeedObserver interface {
	StateChanged(source, state string, attempt int, delay time.Duration)
	MessageHandled(source string, latency time.Duration, res ApplyResult)
	DecodeFailed(source string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) StateChanged(string, string, int, time.Duration)  {}
func (NopObserver) MessageHandled(string, time.Duration, ApplyResult) {}
func (NopObserver) DecodeFailed(string)                               {}
