package runtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/torsvc/tor-runtime/capability"
	"github.com/torsvc/tor-runtime/config"
	"github.com/torsvc/tor-runtime/control"
	"github.com/torsvc/tor-runtime/errs"
	"github.com/torsvc/tor-runtime/internal/fid"
	"github.com/torsvc/tor-runtime/internal/queue"
	"github.com/torsvc/tor-runtime/internal/registry"
)

// Options configures a Runtime. Spawner/Connector/FileSystem/Executor are
// capability collaborators so tests can run the whole startup/shutdown
// sequence against fakes, per SPEC_FULL.md §9.
type Options struct {
	TorPath  string
	WorkDir  string
	CacheDir string

	Spawner         capability.ProcessSpawner
	Connector       capability.SocketConnector
	FileSystem      capability.FileSystem
	Executor        capability.Executor
	NetworkObserver capability.NetworkObserver
	OnPanic         capability.UncaughtExceptionHandler
	Log             logrus.FieldLogger

	// Builder carries caller-supplied torrc settings. Runtime injects the
	// options it needs to manage the daemon itself (__ControlPort,
	// ControlPortWriteToFile, CookieAuthentication, DataDirectory) before
	// building.
	Builder *config.Builder

	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration

	// TakeOwnership binds tor's lifetime to the control connection via
	// TAKEOWNERSHIP, per SPEC_FULL.md §4.3 startup step 9. Defaults true.
	TakeOwnership *bool

	// GracefulShutdown selects SIGNAL SHUTDOWN (wait for circuits to close)
	// over SIGNAL HALT (immediate). Defaults false, matching the teacher's
	// Shutdown, which always sends HALT.
	GracefulShutdown bool
}

func (o *Options) withDefaults() {
	if o.StartupTimeout == 0 {
		o.StartupTimeout = 60 * time.Second
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

func (o *Options) takeOwnership() bool {
	if o.TakeOwnership == nil {
		return true
	}
	return *o.TakeOwnership
}

// Runtime is a managed tor process plus its control connection, driven
// through the Off/Starting/On/Stopping state machine of SPEC_FULL.md §4.3.
// Grounded on the teacher's Tor struct (internal/tor/tor.go), replacing
// its isSystem/isBootstrapped split and bulb.Conn with a single job-queue
// driven lifecycle over control.Conn.
type Runtime struct {
	opts Options
	fid  string

	scheduler *queue.Scheduler
	observers *observerSet

	mu        sync.Mutex
	state     State
	network   NetworkState
	bootstrap BootstrapStatus
	process   capability.Process
	conn      *control.Conn

	netCancel func()
}

// New constructs a Runtime in the Off state. It does not start tor; call
// Start to do that.
func New(opts Options) *Runtime {
	opts.withDefaults()
	id := fid.Derive(opts.WorkDir)
	opts.Log = opts.Log.WithField("fid", id)
	r := &Runtime{
		opts:      opts,
		fid:       id,
		scheduler: queue.NewScheduler(opts.Log),
		observers: newObserverSet(opts.Executor, opts.OnPanic),
		network:   NetworkEnabled,
	}
	if opts.NetworkObserver != nil {
		r.netCancel = opts.NetworkObserver.Subscribe(r.onNetworkChange)
	}
	if err := registry.Register(opts.WorkDir, opts.CacheDir, r); err != nil {
		opts.Log.WithError(err).Warn("runtime: another runtime already owns this work or cache directory")
	}
	return r
}

// FID returns the deterministic fingerprint the process-global registry
// indexes this Runtime by (SPEC_FULL.md §9).
func (r *Runtime) FID() string { return r.fid }

// State returns the current lifecycle phase.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Observe registers o for lifecycle notifications and returns a cancel
// function.
func (r *Runtime) Observe(o Observer) (cancel func()) {
	return r.observers.add(o)
}

func (r *Runtime) setState(s State, err error) {
	r.mu.Lock()
	r.state = s
	bootstrap := r.bootstrap
	network := r.network
	r.mu.Unlock()
	r.observers.notify(Event{State: s, Network: network, Bootstrap: bootstrap, Err: err})
}

func (r *Runtime) setBootstrap(b BootstrapStatus) {
	r.mu.Lock()
	r.bootstrap = b
	state := r.state
	network := r.network
	r.mu.Unlock()
	r.observers.notify(Event{State: state, Network: network, Bootstrap: b})
}

func (r *Runtime) onNetworkChange(n capability.NetworkState) {
	var ns NetworkState
	switch n {
	case capability.NetworkDisconnected:
		ns = NetworkDisabled
	default:
		ns = NetworkEnabled
	}

	r.mu.Lock()
	changed := r.network != ns
	r.network = ns
	conn := r.conn
	state := r.state
	r.mu.Unlock()

	if !changed || conn == nil || state != On {
		return
	}

	arg := "0"
	if ns == NetworkDisabled {
		arg = "1"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = Execute(ctx, r, control.SetConfCommand([]control.Item{{Option: "DisableNetwork", Argument: arg}}))
	r.observers.notify(Event{State: state, Network: ns})
}

// Start enqueues the startup sequence and returns its Job.
func (r *Runtime) Start(ctx context.Context) *queue.Job {
	return r.scheduler.Enqueue(queue.Start, r.runStart)
}

// Stop enqueues the shutdown sequence and returns its Job.
func (r *Runtime) Stop(ctx context.Context) *queue.Job {
	return r.scheduler.Enqueue(queue.Stop, r.runStop)
}

// Restart enqueues Stop immediately followed by Start as one atomic job,
// so an intervening Stop cannot split the two (SPEC_FULL.md §4.2).
func (r *Runtime) Restart(ctx context.Context) *queue.Job {
	return r.scheduler.Enqueue(queue.Restart, func(ctx context.Context) error {
		if err := r.runStop(ctx); err != nil {
			return err
		}
		return r.runStart(ctx)
	})
}

// Close stops tor (if running) and shuts down the scheduler and network
// observer subscription.
func (r *Runtime) Close() {
	if r.State() != Off {
		job := r.Stop(context.Background())
		_ = job.Wait(context.Background())
	}
	r.scheduler.Close()
	if r.netCancel != nil {
		r.netCancel()
	}
	registry.Unregister(r.fid)
}

func (r *Runtime) runStart(ctx context.Context) (err error) {
	r.setState(Starting, nil)
	defer func() {
		if err != nil {
			r.setState(Off, err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.opts.StartupTimeout)
	defer cancel()

	torrcPath, err := r.writeConfig()
	if err != nil {
		return err
	}

	proc, err := r.opts.Spawner.Spawn(ctx, capability.ExecSpec{
		Path: r.opts.TorPath,
		Args: []string{"-f", torrcPath},
		Dir:  r.opts.WorkDir,
	})
	if err != nil {
		return &errs.ProcessStartError{Cause: err}
	}

	tail := newStdoutTail(proc.Stdout(), 200)

	target, err := r.awaitControlPort(ctx, tail)
	if err != nil {
		_ = proc.Kill()
		return err
	}

	conn, pi, err := control.Open(ctx, r.opts.Connector, target, control.AuthConfig{FileSystem: r.opts.FileSystem}, r.opts.Log)
	if err != nil {
		_ = proc.Kill()
		return &errs.ProcessStartError{Cause: err, StdoutTail: tail.Snapshot()}
	}
	r.opts.Log.WithField("tor_version", pi.TorVersion).Debug("runtime: authenticated control connection")

	conn.ConfigureEvents(r.opts.Executor, r.opts.OnPanic)

	if r.opts.takeOwnership() {
		if _, err := control.Execute(ctx, conn, control.TakeOwnershipCommand()); err != nil {
			_ = conn.Close()
			_ = proc.Kill()
			return err
		}
	}

	r.mu.Lock()
	r.process = proc
	r.conn = conn
	r.mu.Unlock()

	if err := r.awaitBootstrap(ctx, conn, proc); err != nil {
		_ = conn.Close()
		_ = proc.Kill()
		r.mu.Lock()
		r.process = nil
		r.conn = nil
		r.mu.Unlock()
		return err
	}

	r.setState(On, nil)
	return nil
}

func (r *Runtime) writeConfig() (string, error) {
	b := r.opts.Builder
	if b == nil {
		b = config.NewBuilder()
	}
	controlPortFile := filepath.Join(r.opts.WorkDir, "control_port")
	b.Put("DataDirectory", r.opts.CacheDir)
	b.PutIfAbsent("__ControlPort", "auto")
	b.Put("ControlPortWriteToFile", controlPortFile)
	b.PutIfAbsent("CookieAuthentication", "1")

	cfg, err := b.Build()
	if err != nil {
		return "", err
	}

	if err := r.opts.FileSystem.MkdirAll(r.opts.WorkDir, 0700); err != nil {
		return "", &errs.IoError{Op: "mkdir", Path: r.opts.WorkDir, Err: err}
	}
	torrcPath := filepath.Join(r.opts.WorkDir, "torrc")
	if err := r.opts.FileSystem.WriteFile(torrcPath, cfg.RenderTorrc(), 0600); err != nil {
		return "", &errs.IoError{Op: "write", Path: torrcPath, Err: err}
	}
	return torrcPath, nil
}

// awaitControlPort polls for the ControlPortWriteToFile file tor writes
// once its listener is up, per SPEC_FULL.md §4.3 startup step 6, grounded
// on the teacher's DoBootstrap 10-tick poll loop for "control_port".
func (r *Runtime) awaitControlPort(ctx context.Context, tail *stdoutTail) (control.Target, error) {
	controlPortFile := filepath.Join(r.opts.WorkDir, "control_port")

	// fsnotify gives near-instant wakeups on a real filesystem; it is a
	// pure latency optimization on top of the poll loop below, which
	// remains the correctness backstop (e.g. against an in-memory
	// FileSystem fake in tests, where there is no real inode to watch).
	wake := make(chan struct{}, 1)
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(r.opts.WorkDir); err != nil {
			_ = watcher.Close()
		} else {
			go func() {
				defer watcher.Close()
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						if ev.Name == controlPortFile {
							select {
							case wake <- struct{}{}:
							default:
							}
						}
					case _, ok := <-watcher.Errors:
						if !ok {
							return
						}
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		data, err := r.opts.FileSystem.ReadFile(controlPortFile)
		if err == nil {
			return parseControlPortFile(data)
		}
		if !os.IsNotExist(err) {
			return control.Target{}, &errs.IoError{Op: "read", Path: controlPortFile, Err: err}
		}
		select {
		case <-ctx.Done():
			return control.Target{}, &errs.ProcessStartError{Cause: errs.ErrTimeout, StdoutTail: tail.Snapshot()}
		case <-wake:
		case <-ticker.C:
		}
	}
}

// awaitBootstrap subscribes to STATUS_CLIENT and waits for BOOTSTRAP
// PROGRESS=100, falling back to periodic GETINFO polling exactly as the
// teacher's DoBootstrap does, plus a liveness check on the process.
func (r *Runtime) awaitBootstrap(ctx context.Context, conn *control.Conn, proc capability.Process) error {
	progressCh := make(chan BootstrapStatus, 16)
	cancel, err := conn.Events().Subscribe(ctx, "STATUS_CLIENT", func(reply control.Reply) {
		if len(reply.Lines) == 0 {
			return
		}
		// The event line reads "STATUS_CLIENT <severity> BOOTSTRAP ...";
		// parseBootstrapLine takes the payload from "BOOTSTRAP" on.
		line := reply.Lines[0]
		if i := strings.Index(line, " BOOTSTRAP "); i >= 0 {
			line = line[i+1:]
		}
		if status, ok := parseBootstrapLine(line); ok {
			progressCh <- status
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = cancel() }()

	poll := time.NewTicker(10 * time.Second)
	defer poll.Stop()

	for {
		select {
		case status := <-progressCh:
			r.setBootstrap(status)
			if status.Done {
				return nil
			}
		case <-poll.C:
			if !proc.Running() {
				return &errs.ProcessStartError{Cause: fmt.Errorf("tor process exited before bootstrap completed")}
			}
			out, err := control.Execute(ctx, conn, control.GetInfoCommand("status/bootstrap-phase"))
			if err != nil {
				return err
			}
			if raw, ok := out["status/bootstrap-phase"]; ok {
				if status, ok := parseBootstrapLine("BOOTSTRAP " + raw); ok {
					r.setBootstrap(status)
					if status.Done {
						return nil
					}
				}
			}
		case <-ctx.Done():
			return &errs.ProcessStartError{Cause: errs.ErrTimeout}
		}
	}
}

// parseBootstrapLine decodes a "BOOTSTRAP PROGRESS=N TAG=x SUMMARY=..."
// STATUS_CLIENT payload, grounded on the teacher's handleBootstrapEvent.
func parseBootstrapLine(line string) (BootstrapStatus, bool) {
	if !strings.HasPrefix(line, "BOOTSTRAP") {
		return BootstrapStatus{}, false
	}
	var status BootstrapStatus
	fields := strings.Fields(line)[1:]
	for i := 0; i < len(fields); i++ {
		k, v, ok := strings.Cut(fields[i], "=")
		if !ok {
			continue
		}
		// A quoted value such as SUMMARY="Finishing handshake" spans
		// several whitespace-separated fields.
		if strings.HasPrefix(v, `"`) {
			for (len(v) < 2 || !strings.HasSuffix(v, `"`)) && i+1 < len(fields) {
				i++
				v += " " + fields[i]
			}
		}
		switch k {
		case "PROGRESS":
			n, err := strconv.Atoi(v)
			if err == nil {
				status.Progress = n
			}
		case "TAG":
			status.Tag = v
		case "SUMMARY":
			status.Summary = strings.Trim(v, `"`)
		}
	}
	status.Done = status.Progress >= 100
	return status, true
}

func (r *Runtime) runStop(ctx context.Context) error {
	r.setState(Stopping, nil)

	r.mu.Lock()
	conn := r.conn
	proc := r.process
	r.conn = nil
	r.process = nil
	r.mu.Unlock()

	if conn == nil && proc == nil {
		r.setState(Off, nil)
		return nil
	}

	sentSignal := false
	if conn != nil {
		signal := "HALT"
		if r.opts.GracefulShutdown {
			signal = "SHUTDOWN"
		}
		sigCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = control.Execute(sigCtx, conn, control.SignalCommand(signal))
		cancel()
		sentSignal = true
		_ = conn.Close()
	}

	if proc != nil {
		if sentSignal {
			waitCh := make(chan error, 1)
			go func() { waitCh <- proc.Wait() }()
			select {
			case <-waitCh:
			case <-time.After(r.opts.ShutdownTimeout):
				_ = proc.Kill()
				<-waitCh
			}
		} else {
			_ = proc.Kill()
		}
	}

	r.setState(Off, nil)
	return nil
}

// Execute enqueues cmd as an Action Job and runs it against the runtime's
// live control connection, so ad-hoc application commands participate in
// the same FIFO serialization and Stop-interrupt guarantees as
// Start/Stop/Restart (SPEC_FULL.md §4.2 "Lifecycle-action dispatch").
// Callers must not call control.Execute directly against a Runtime's
// connection for this reason.
//
// Execute is a package-level function rather than a method because Go
// methods cannot carry their own type parameters, the same constraint
// that shapes control.Execute.
func Execute[R any](ctx context.Context, r *Runtime, cmd control.Command[R]) (R, error) {
	var (
		zero   R
		result R
		runErr error
	)
	job := r.scheduler.Enqueue(queue.Action, func(ctx context.Context) error {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			runErr = errs.ErrRuntimeNotFound
			return runErr
		}
		result, runErr = control.Execute(ctx, conn, cmd)
		return runErr
	})
	if err := job.Wait(ctx); err != nil {
		return zero, err
	}
	return result, runErr
}

// Dialer returns a SOCKS5 proxy.Dialer to the SOCKS listener at
// socksHost:socksPort (the caller passes the runtime's SocksPort address;
// Dialer does not look it up), authenticated with a per-isolation
// username/password pair so tor routes
// requests bearing distinct isolation tags over distinct circuits.
// Grounded on the teacher's Tor.Dialer, generalized to take the isolation
// tag as a parameter instead of hard-coding "isolation:<pid>"
// (SPEC_FULL.md §4.3.2, supplemented feature).
func (r *Runtime) Dialer(isolation string, socksHost string, socksPort int) (proxy.Dialer, error) {
	if r.State() != On {
		return nil, errs.ErrRuntimeNotFound
	}
	auth := &proxy.Auth{
		User:     "torsvc",
		Password: isolation,
	}
	return proxy.SOCKS5("tcp", fmt.Sprintf("%s:%d", socksHost, socksPort), auth, proxy.Direct)
}

// CircuitStatus returns tor's current circuit list via GETINFO
// circuit-status (SPEC_FULL.md §4.3.2, supplemented feature not present
// in the teacher, which never exposed circuit introspection). Routed
// through Execute so it queues behind any in-flight lifecycle job
// instead of racing the control connection directly.
func (r *Runtime) CircuitStatus(ctx context.Context) ([]string, error) {
	out, err := Execute(ctx, r, control.GetInfoCommand("circuit-status"))
	if err != nil {
		return nil, err
	}
	raw, ok := out["circuit-status"]
	if !ok {
		return nil, nil
	}
	lines := strings.Split(raw, "\n")
	result := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return result, nil
}

// stdoutTail buffers the last max lines of a child process's combined
// output for diagnostics, grounded on the platform.syncBuffer used by the ExecSpawner, mirrored
// here over capability.Process.Stdout() so runtime does not depend on
// package platform directly.
type stdoutTail struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newStdoutTail(r io.Reader, maxLines int) *stdoutTail {
	t := &stdoutTail{max: maxLines}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			t.mu.Lock()
			t.data = append(t.data, scanner.Bytes()...)
			t.data = append(t.data, '\n')
			if t.max > 0 && bytes.Count(t.data, []byte{'\n'}) > t.max {
				t.data = t.data[bytes.IndexByte(t.data, '\n')+1:]
			}
			t.mu.Unlock()
		}
	}()
	return t
}

func (t *stdoutTail) Snapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.data)
}
