package billing

import (
	"sync"
	"time"
)

// Scheduler owns the timers for live sessions: at most one recurring task and
// one one-shot task per key. It replaces a process-wide timer registry so
// engines can be tested with a FakeClock.
type Scheduler struct {
	clock Clock

	mu        sync.Mutex
	recurring map[string]*scheduledTask
	oneShot   map[string]*scheduledTask
	stopped   bool
}

type scheduledTask struct {
	timer    Timer
	deadline time.Time
	interval time.Duration
	fn       func()
}

// NewScheduler creates a scheduler driven by clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{
		clock:     clock,
		recurring: make(map[string]*scheduledTask),
		oneShot:   make(map[string]*scheduledTask),
	}
}

// Every runs fn every interval until the key is cancelled, replacing any
// recurring task already registered under key. The next run is armed before
// fn is called, so a slow fn never delays the schedule.
func (s *Scheduler) Every(key string, interval time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.recurring[key]; ok {
		old.timer.Stop()
	}
	t := &scheduledTask{interval: interval, fn: fn}
	s.recurring[key] = t
	s.armLocked(key, t)
}

func (s *Scheduler) armLocked(key string, t *scheduledTask) {
	t.deadline = s.clock.Now().Add(t.interval)
	t.timer = s.clock.AfterFunc(t.interval, func() {
		s.mu.Lock()
		if cur, ok := s.recurring[key]; !ok || cur != t || s.stopped {
			s.mu.Unlock()
			return
		}
		s.armLocked(key, t)
		s.mu.Unlock()

		t.fn()
	})
}

// Once arms a one-shot task unless one is already pending for key. It
// reports whether a new task was armed.
func (s *Scheduler) Once(key string, d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, ok := s.oneShot[key]; ok {
		return false
	}
	t := &scheduledTask{deadline: s.clock.Now().Add(d), fn: fn}
	t.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if cur, ok := s.oneShot[key]; !ok || cur != t || s.stopped {
			s.mu.Unlock()
			return
		}
		delete(s.oneShot, key)
		s.mu.Unlock()

		t.fn()
	})
	s.oneShot[key] = t
	return true
}

// Cancel stops both the recurring and the one-shot task for key and reports
// whether anything was registered.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	if t, ok := s.recurring[key]; ok {
		t.timer.Stop()
		delete(s.recurring, key)
		found = true
	}
	if t, ok := s.oneShot[key]; ok {
		t.timer.Stop()
		delete(s.oneShot, key)
		found = true
	}
	return found
}

// CancelOnce stops only the one-shot task for key.
func (s *Scheduler) CancelOnce(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.oneShot[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.oneShot, key)
	return true
}

// Remaining returns the time left before the one-shot task for key fires.
func (s *Scheduler) Remaining(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.oneShot[key]
	if !ok {
		return 0, false
	}
	left := t.deadline.Sub(s.clock.Now())
	if left < 0 {
		left = 0
	}
	return left, true
}

// Scheduled reports whether a recurring task is registered for key.
func (s *Scheduler) Scheduled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recurring[key]
	return ok
}

// Len returns the number of recurring tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recurring)
}

// Stop cancels every task. Later calls to Every and Once are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, t := range s.recurring {
		t.timer.Stop()
		delete(s.recurring, key)
	}
	for key, t := range s.oneShot {
		t.timer.Stop()
		delete(s.oneShot, key)
	}
}
