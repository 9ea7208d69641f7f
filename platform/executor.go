package platform

import (
	"sync"

	"github.com/torsvc/tor-runtime/capability"
)

// DefaultExecutor is the default capability.Executor. Background work runs
// on a small shared worker pool (grounded on the teacher's pattern of
// spawning one goroutine per background task, bounded here to avoid
// unbounded goroutine growth under event storms); Main runs on a
// caller-registered function, falling back to Immediate when none is
// registered, per SPEC_FULL.md §4.3 ("if unavailable, equivalent to
// Immediate").
type DefaultExecutor struct {
	mu     sync.Mutex
	mainFn func(func())
	work   chan func()
	once   sync.Once
}

// NewDefaultExecutor creates an executor with a background pool of the
// given size (a size <= 0 defaults to 4 workers).
func NewDefaultExecutor(poolSize int) *DefaultExecutor {
	if poolSize <= 0 {
		poolSize = 4
	}
	e := &DefaultExecutor{work: make(chan func(), 64)}
	for i := 0; i < poolSize; i++ {
		go e.worker()
	}
	return e
}

func (e *DefaultExecutor) worker() {
	for fn := range e.work {
		fn()
	}
}

// SetMain registers the function used to run ExecutorKind Main callbacks
// (typically a UI event-loop's "invoke on main thread" primitive).
func (e *DefaultExecutor) SetMain(fn func(func())) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mainFn = fn
}

func (e *DefaultExecutor) Submit(kind capability.ExecutorKind, fn func()) {
	switch kind {
	case capability.Immediate:
		fn()
	case capability.Main:
		e.mu.Lock()
		mainFn := e.mainFn
		e.mu.Unlock()
		if mainFn != nil {
			mainFn(fn)
			return
		}
		fn()
	case capability.Background:
		e.work <- fn
	default:
		fn()
	}
}
