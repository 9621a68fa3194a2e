package tracking

import (
	"sync"
	"time"

	"lifeline/pkg/maps"
)

// RouteScheduler debounces route recomputation. Each Schedule call restarts
// the delay with the latest origin/destination pair; the fire callback runs
// once per quiet period, with whatever pair was scheduled last. This keeps
// rapid position updates from flooding the route service.
type RouteScheduler struct {
	delay time.Duration
	fire  func(origin, destination maps.Coordinate)

	mu          sync.Mutex
	timer       *time.Timer
	origin      maps.Coordinate
	destination maps.Coordinate
	stopped     bool
}

func NewRouteScheduler(delay time.Duration, fire func(origin, destination maps.Coordinate)) *RouteScheduler {
	if delay <= 0 {
		delay = RouteDebounceDelay
	}
	return &RouteScheduler{
		delay: delay,
		fire:  fire,
	}
}

// Schedule (re)arms the debounce with a fresh position pair.
func (s *RouteScheduler) Schedule(origin, destination maps.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.origin = origin
	s.destination = destination

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.run)
}

func (s *RouteScheduler) run() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	origin, destination := s.origin, s.destination
	s.mu.Unlock()

	s.fire(origin, destination)
}

// Stop cancels any pending lookup. Idempotent; called on every teardown
// path.
func (s *RouteScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
