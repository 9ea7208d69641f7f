// Package queue implements the ordered, interrupt-aware job queue and
// single-dispatcher scheduler described in SPEC_FULL.md §4.2. It plays
// the role the teacher's internal/ui/async.Async plays for one-off UI
// background tasks, generalized into a persistent FIFO queue since the
// runtime must serialize Start/Stop/Restart/action requests across the
// lifetime of a whole Tor process rather than one dialog box.
package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Kind classifies a Job for the purposes of the interrupt rules in
// SPEC_FULL.md §4.2.
type Kind int

const (
	// Start spawns tor and connects its control port.
	Start Kind = iota
	// Stop tears tor down.
	Stop
	// Restart is Stop followed by Start, run as a single queue entry so
	// it cannot be split by an intervening Stop.
	Restart
	// Action is an arbitrary ad-hoc control-connection operation (e.g. a
	// GETINFO call) that must not run concurrently with lifecycle jobs.
	Action
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Restart:
		return "restart"
	case Action:
		return "action"
	default:
		return "unknown"
	}
}

// State is a Job's position in the state machine from SPEC_FULL.md §4.2
// "Cancellation contract": Enqueued -> {Executing -> {Success|Error},
// Cancelled}; Executing -> {Success|Error}.
type State int

const (
	Enqueued State = iota
	Executing
	Success
	Error
	Cancelled
)

func (s State) String() string {
	switch s {
	case Enqueued:
		return "enqueued"
	case Executing:
		return "executing"
	case Success:
		return "success"
	case Error:
		return "error"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Run is the work a Job performs once the scheduler dispatches it. ctx is
// cancelled if an interrupting Stop job arrives while this Job is
// Executing (only meaningful for Start/Restart jobs; see SPEC_FULL.md
// §4.2 "Interrupt rules").
type Run func(ctx context.Context) error

// Job is one queued unit of work plus its observable outcome.
type Job struct {
	ID   string
	Kind Kind

	run Run

	mu     sync.Mutex
	state  State
	err    error
	done   chan struct{}
	cancel context.CancelFunc
}

// newJob constructs a Job in the Enqueued state.
func newJob(kind Kind, run Run) *Job {
	return &Job{
		ID:    uuid.NewString(),
		Kind:  kind,
		run:   run,
		state: Enqueued,
		done:  make(chan struct{}),
	}
}

// State returns the job's current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the job's terminal error, if any. It is only meaningful
// once Done() is closed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job reaches Success, Error, or Cancelled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done, returning the job's
// terminal error in the former case.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cancelIfEnqueued transitions an Enqueued job straight to Cancelled,
// used when a Stop job removes a pending Start/Restart ahead of it in
// the queue. Returns false if the job had already started executing.
func (j *Job) cancelIfEnqueued(err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Enqueued {
		return false
	}
	j.state = Cancelled
	j.err = err
	close(j.done)
	return true
}

// interruptIfExecuting cancels an in-flight job's context, used when a
// Stop job arrives while a Start/Restart is Executing. The job still
// transitions to Error (not Cancelled) once its Run observes ctx.Err(),
// per SPEC_FULL.md §4.2: only Enqueued jobs land in Cancelled.
func (j *Job) interruptIfExecuting() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Executing || j.cancel == nil {
		return false
	}
	j.cancel()
	return true
}

func (j *Job) start() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	j.state = Executing
	j.cancel = cancel
	return ctx
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == Cancelled {
		return
	}
	if err != nil {
		j.state = Error
		j.err = err
	} else {
		j.state = Success
	}
	close(j.done)
}
