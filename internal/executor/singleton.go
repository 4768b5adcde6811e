package executor

import (
	"context"
	"sync"
)

// Singleton wraps an Executor factory with process-wide load-once
// semantics. Concurrent Load calls share one in-flight initialization;
// after Terminate, the next Load builds a fresh executor.
type Singleton struct {
	factory func() Executor

	mu      sync.Mutex
	current Executor
	loading chan struct{} // non-nil while a load is in flight
	loadErr error
}

// NewSingleton creates a singleton loader around the given factory.
func NewSingleton(factory func() Executor) *Singleton {
	return &Singleton{factory: factory}
}

// Load returns the loaded executor, initializing it if necessary.
// If another goroutine is mid-load, Load waits for that attempt and
// shares its outcome.
func (s *Singleton) Load(ctx context.Context) (Executor, error) {
	for {
		s.mu.Lock()
		if s.current != nil {
			exec := s.current
			s.mu.Unlock()
			return exec, nil
		}
		if s.loading != nil {
			loading := s.loading
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-loading:
			}
			// Re-check: the in-flight load may have failed.
			s.mu.Lock()
			exec, err := s.current, s.loadErr
			s.mu.Unlock()
			if exec != nil {
				return exec, nil
			}
			if err != nil {
				return nil, err
			}
			continue
		}

		loading := make(chan struct{})
		s.loading = loading
		s.mu.Unlock()

		exec := s.factory()
		err := exec.Load(ctx)

		s.mu.Lock()
		if err == nil {
			s.current = exec
			s.loadErr = nil
		} else {
			s.loadErr = err
		}
		s.loading = nil
		s.mu.Unlock()
		close(loading)

		if err != nil {
			return nil, err
		}
		return exec, nil
	}
}

// Current returns the loaded executor without triggering a load, or nil.
func (s *Singleton) Current() Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Terminate tears down the loaded executor, if any. A subsequent Load
// builds a fresh one.
func (s *Singleton) Terminate() {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.loadErr = nil
	s.mu.Unlock()

	if current != nil {
		current.Terminate()
	}
}
