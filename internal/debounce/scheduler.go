package debounce

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler holds one debounce timer per key.
//
// Used by: engine (one key per attached document)
// Thread-safe: Yes
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*pending
	nextGen uint64
	stopped bool

	logger *slog.Logger
}

// pending is an armed timer and the generation it was armed with.
type pending struct {
	timer *time.Timer
	gen   uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		timers: make(map[string]*pending),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule cancels any pending timer for key and arms a new one.
// action runs on its own goroutine once delay passes without another
// Schedule or Cancel for the same key. Negative delays are treated as zero.
func (s *Scheduler) Schedule(key string, delay time.Duration, action func()) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	p := &pending{gen: gen}
	p.timer = time.AfterFunc(delay, func() { s.fire(key, gen, action) })
	s.timers[key] = p

	s.logger.Debug("debounce armed", "key", key, "delay", delay)
}

// Cancel disarms the pending timer for key.
// Returns true if a timer was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.timers[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.timers, key)
	return true
}

// Pending reports whether a timer is armed for key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every pending timer. Later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, key)
	}
	s.stopped = true
}

// fire runs action if gen is still the armed generation for key.
func (s *Scheduler) fire(key string, gen uint64, action func()) {
	s.mu.Lock()
	p, ok := s.timers[key]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	// Outside the lock: the action may reschedule.
	if action != nil {
		action()
	}
}
