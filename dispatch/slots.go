package dispatch

import "sync"

// slots is a counting permit set that serves waiters strictly in the order
// they enqueued. Enqueueing never blocks; the caller waits on the returned
// channel instead.
type slots struct {
	mu      sync.Mutex
	limit   int
	running int
	waiters []chan struct{}
}

func newSlots(limit int) *slots {
	return &slots{limit: limit}
}

var granted = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (s *slots) enqueue() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running < s.limit && len(s.waiters) == 0 {
		s.running++
		return granted
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	return ch
}

// release hands the slot to the oldest waiter, or frees it.
func (s *slots) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters[0] = nil
		s.waiters = s.waiters[1:]
		close(next)
		return
	}
	s.running--
}

func (s *slots) stats() (limit, running, queued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit, s.running, len(s.waiters)
}
