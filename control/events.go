package control

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/torsvc/tor-runtime/capability"
)

// EventHandler receives the content lines of a single 650 reply for one
// event keyword.
type EventHandler func(Reply)

// eventRouter fans 6xx async replies out to registered handlers, grouped
// by event keyword (the reply's first space-delimited token), and keeps
// the SETEVENTS set reconciled as handlers come and go. Grounded on the
// teacher's Tor.eventReader/ctrlEvents split (internal/tor/tor.go), which
// separates the async stream from command replies; generalized here from
// a single hard-coded listener to a per-keyword registry since
// SPEC_FULL.md §4.1 requires multiplexing arbitrary SETEVENTS keywords to
// independent observers.
type eventRouter struct {
	mu       sync.Mutex
	handlers map[string]map[int]EventHandler
	nextID   int
	executor capability.Executor
	onPanic  capability.UncaughtExceptionHandler

	// reconcile, when set, re-issues SETEVENTS with the current keyword
	// set whenever it changes.
	reconcile func(ctx context.Context, keywords []string) error
}

func newEventRouter() *eventRouter {
	return &eventRouter{handlers: make(map[string]map[int]EventHandler)}
}

// configure wires the router to an executor (for callback dispatch) and
// a reconcile function (to push SETEVENTS updates to the wire). Called by
// the runtime layer once a Conn is authenticated.
func (r *eventRouter) configure(exec capability.Executor, onPanic capability.UncaughtExceptionHandler, reconcile func(ctx context.Context, keywords []string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executor = exec
	r.onPanic = onPanic
	r.reconcile = reconcile
}

// Subscribe registers fn for keyword and returns a cancel function. Each
// call to Subscribe synchronously reconciles SETEVENTS against the
// updated keyword set.
func (r *eventRouter) Subscribe(ctx context.Context, keyword string, fn EventHandler) (cancel func() error, err error) {
	keyword = strings.ToUpper(keyword)

	r.mu.Lock()
	if r.handlers[keyword] == nil {
		r.handlers[keyword] = make(map[int]EventHandler)
	}
	id := r.nextID
	r.nextID++
	r.handlers[keyword][id] = fn
	keywords := r.activeKeywordsLocked()
	reconcile := r.reconcile
	r.mu.Unlock()

	if reconcile != nil {
		if err := reconcile(ctx, keywords); err != nil {
			r.mu.Lock()
			delete(r.handlers[keyword], id)
			r.mu.Unlock()
			return nil, err
		}
	}

	return func() error {
		r.mu.Lock()
		delete(r.handlers[keyword], id)
		if len(r.handlers[keyword]) == 0 {
			delete(r.handlers, keyword)
		}
		keywords := r.activeKeywordsLocked()
		reconcile := r.reconcile
		r.mu.Unlock()
		if reconcile != nil {
			return reconcile(ctx, keywords)
		}
		return nil
	}, nil
}

func (r *eventRouter) activeKeywordsLocked() []string {
	keywords := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

// dispatch routes a 650 reply to every handler registered for its leading
// keyword, submitting each callback to the configured Executor as
// Background work (SPEC_FULL.md §4.3 "observer callbacks must not block
// the reader"). With no Executor configured, or with one that runs work
// inline, handlers run on the reader goroutine itself.
func (r *eventRouter) dispatch(reply Reply) {
	if len(reply.Lines) == 0 {
		return
	}
	keyword, _, _ := strings.Cut(reply.Lines[0], " ")
	keyword = strings.ToUpper(keyword)

	r.mu.Lock()
	fns := make([]EventHandler, 0, len(r.handlers[keyword]))
	for _, fn := range r.handlers[keyword] {
		fns = append(fns, fn)
	}
	exec := r.executor
	onPanic := r.onPanic
	r.mu.Unlock()

	for _, fn := range fns {
		fn := fn
		run := func() {
			defer func() {
				if rec := recover(); rec != nil && onPanic != nil {
					onPanic.HandleUncaught("control.eventRouter", rec)
				}
			}()
			fn(reply)
		}
		if exec != nil {
			exec.Submit(capability.Background, run)
		} else {
			run()
		}
	}
}

func (r *eventRouter) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]map[int]EventHandler)
}
