package queue

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/torsvc/tor-runtime/errs"
)

// Scheduler runs exactly one Job at a time, in FIFO order, on a single
// dedicated goroutine — the "single dedicated dispatcher task per
// runtime" of SPEC_FULL.md §5, generalizing the teacher's one-shot
// internal/ui/async.Async (a single background task plus a Cancel
// channel) into a durable queue that outlives any one task.
type Scheduler struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Job
	current *Job
	closed  bool
	stopped chan struct{}
}

// NewScheduler creates a Scheduler and starts its dispatcher goroutine.
func NewScheduler(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Scheduler{log: log, stopped: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Enqueue appends a new Job of kind running run, applying the interrupt
// and coalescing rules from SPEC_FULL.md §4.2:
//
//   - A second Start while one is already Enqueued coalesces onto the
//     existing Job instead of creating a new one.
//   - A Stop or Restart cancels every Enqueued Start/Restart/Action ahead
//     of it, and interrupts (via context cancellation) a Start/Restart
//     that is currently Executing.
func (s *Scheduler) Enqueue(kind Kind, run Run) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		j := newJob(kind, run)
		j.cancelIfEnqueued(errs.ErrInterruptedByStop)
		return j
	}

	if kind == Start {
		for _, p := range s.pending {
			if p.Kind == Start {
				return p
			}
		}
	}

	if kind == Stop || kind == Restart {
		remaining := s.pending[:0]
		for _, p := range s.pending {
			if (p.Kind == Start || p.Kind == Restart || p.Kind == Action) && p.cancelIfEnqueued(errs.ErrInterruptedByStop) {
				continue
			}
			remaining = append(remaining, p)
		}
		s.pending = remaining

		if s.current != nil && (s.current.Kind == Start || s.current.Kind == Restart) {
			s.current.interruptIfExecuting()
		}
	}

	j := newJob(kind, run)
	s.pending = append(s.pending, j)
	s.cond.Signal()
	return j
}

// Close stops accepting dispatch of further jobs after the current one
// drains, and cancels anything still Enqueued.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, p := range s.pending {
		p.cancelIfEnqueued(errs.ErrCancelled)
	}
	s.pending = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.stopped
}

func (s *Scheduler) loop() {
	defer close(s.stopped)
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.pending) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		job := s.pending[0]
		s.pending = s.pending[1:]
		s.current = job
		s.mu.Unlock()

		ctx := job.start()
		err := job.run(ctx)
		job.finish(err)

		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}
}
