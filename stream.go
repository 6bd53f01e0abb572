package gudamm

import (
	"sync"
)

// Stream represents an ordered sequence of operations that execute
// asynchronously. Operations within a stream execute in order, but
// operations in different streams may execute concurrently.
type Stream struct {
	id      int
	tasks   chan func() error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	err     error
	closeMu sync.RWMutex
	closed  bool
}

func newStream(id int) *Stream {
	s := &Stream{
		id:    id,
		tasks: make(chan func() error, 1000),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

// ID returns the stream identifier.
func (s *Stream) ID() int {
	return s.id
}

// worker processes tasks for a stream. The first failure is kept until
// the next Synchronize.
func (s *Stream) worker() {
	for task := range s.tasks {
		if err := task(); err != nil {
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		}
		s.wg.Done()
	}
	close(s.done)
}

// Synchronize waits for all tasks in the stream to complete and returns
// the first error raised since the previous Synchronize.
func (s *Stream) Synchronize() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

// Submit adds a task to the stream. Tasks submitted after the owning
// context was destroyed are dropped and reported by the next Synchronize.
func (s *Stream) Submit(task func() error) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		s.mu.Lock()
		if s.err == nil {
			s.err = ErrStreamDestroyed
		}
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.tasks <- task
}

func (s *Stream) close() {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.tasks)
	}
	s.closeMu.Unlock()
	<-s.done
}
