package runstate

import (
	"sync"
	"time"
)

// State holds the running flag and the last publish time shared by the
// controller and the scheduler.
type State struct {
	mu          sync.RWMutex
	running     bool
	lastPublish time.Time
}

func New() *State { return &State{} }

// SetRunning reports whether the flag actually changed.
func (s *State) SetRunning(running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == running {
		return false
	}
	s.running = running
	return true
}

func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *State) LastPublish() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPublish
}

// MarkPublished advances the last publish time. Earlier times are ignored.
func (s *State) MarkPublished(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.After(s.lastPublish) {
		return false
	}
	s.lastPublish = t
	return true
}

// Remaining is how long until interval has elapsed since the last publish.
func (s *State) Remaining(now time.Time, interval time.Duration) time.Duration {
	last := s.LastPublish()
	if last.IsZero() {
		return 0
	}
	wait := interval - now.Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}
