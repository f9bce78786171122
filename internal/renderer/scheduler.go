package renderer

import (
	"sync"
	"time"
)

// FrameScheduler rate-limits terminal writes to a maximum frame rate.
// A frame that is not yet due is deferred by the caller, never dropped;
// the caller presents the latest frame once Wait reaches zero.
type FrameScheduler struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
	pending     bool
	now         func() time.Time
}

// NewFrameScheduler creates a scheduler for maxFPS frames per second.
// A maxFPS of zero or less disables rate limiting.
func NewFrameScheduler(maxFPS int, now func() time.Time) *FrameScheduler {
	if now == nil {
		now = time.Now
	}
	s := &FrameScheduler{now: now}
	s.SetMaxFPS(maxFPS)
	return s
}

// SetMaxFPS changes the frame rate limit.
func (s *FrameScheduler) SetMaxFPS(maxFPS int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxFPS <= 0 {
		s.minInterval = 0
		return
	}
	s.minInterval = time.Second / time.Duration(maxFPS)
}

// Request marks a frame as pending and returns how long the caller must
// wait before presenting it. Zero means present now.
func (s *FrameScheduler) Request() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = true
	return s.waitLocked()
}

// Wait returns the time until a pending frame is due.
func (s *FrameScheduler) Wait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitLocked()
}

// Pending reports whether a requested frame has not been presented yet.
func (s *FrameScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Presented records that the pending frame was written.
func (s *FrameScheduler) Presented() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = false
	s.last = s.now()
}

func (s *FrameScheduler) waitLocked() time.Duration {
	if s.last.IsZero() || s.minInterval == 0 {
		return 0
	}
	elapsed := s.now().Sub(s.last)
	if elapsed >= s.minInterval {
		return 0
	}
	return s.minInterval - elapsed
}
