package runtime

import (
	"sync"

	"github.com/torsvc/tor-runtime/capability"
)

// observerSet fans Events out to registered Observers via the configured
// Executor, recovering panics into the UncaughtExceptionHandler so one
// misbehaving observer cannot take down the runtime's dispatcher goroutine
// (SPEC_FULL.md §4.3 "Observer callbacks must not throw").
type observerSet struct {
	mu      sync.Mutex
	next    int
	obs     map[int]Observer
	exec    capability.Executor
	onPanic capability.UncaughtExceptionHandler
}

func newObserverSet(exec capability.Executor, onPanic capability.UncaughtExceptionHandler) *observerSet {
	return &observerSet{obs: make(map[int]Observer), exec: exec, onPanic: onPanic}
}

func (s *observerSet) add(o Observer) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.obs[id] = o
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.obs, id)
		s.mu.Unlock()
	}
}

func (s *observerSet) notify(e Event) {
	s.mu.Lock()
	list := make([]Observer, 0, len(s.obs))
	for _, o := range s.obs {
		list = append(list, o)
	}
	exec := s.exec
	onPanic := s.onPanic
	s.mu.Unlock()

	for _, o := range list {
		o := o
		run := func() {
			defer func() {
				if r := recover(); r != nil && onPanic != nil {
					onPanic.HandleUncaught("runtime.Observer", r)
				}
			}()
			o.OnRuntimeEvent(e)
		}
		if exec != nil {
			exec.Submit(capability.Main, run)
		} else {
			run()
		}
	}
}
