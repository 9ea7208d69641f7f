package runtime_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/torsvc/tor-runtime/capability"
	"github.com/torsvc/tor-runtime/config"
	"github.com/torsvc/tor-runtime/runtime"
)

// fakeFS is an in-memory capability.FileSystem, standing in for disk I/O
// in tests so the startup/shutdown sequence can run without touching the
// real filesystem.
type fakeFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeFS() *fakeFS { return &fakeFS{files: make(map[string][]byte)} }

func (f *fakeFS) MkdirAll(path string, perm os.FileMode) error { return nil }

func (f *fakeFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (f *fakeFS) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *fakeFS) Chmod(path string, perm os.FileMode) error { return nil }

func (f *fakeFS) Stat(path string) (os.FileInfo, error) { return nil, errors.New("not implemented") }

// fakeProcess implements capability.Process over a channel-based exit
// signal so Kill/Terminate can unblock a concurrent Wait.
type fakeProcess struct {
	stdout   io.Reader
	mu       sync.Mutex
	running  bool
	exitCh   chan struct{}
	exitOnce sync.Once
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{stdout: strings.NewReader(""), running: true, exitCh: make(chan struct{})}
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Pid() int          { return 4242 }

func (p *fakeProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *fakeProcess) exit() {
	p.exitOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(p.exitCh)
	})
}

func (p *fakeProcess) Terminate() error { p.exit(); return nil }
func (p *fakeProcess) Kill() error      { p.exit(); return nil }
func (p *fakeProcess) Wait() error      { <-p.exitCh; return nil }

// fakeSpawner starts a fakeProcess and, after a short delay, writes the
// control-port file into fs, simulating tor's own startup latency.
type fakeSpawner struct {
	fs              *fakeFS
	controlPortFile string
	controlPortLine string
	proc            *fakeProcess
}

func (s *fakeSpawner) Spawn(ctx context.Context, spec capability.ExecSpec) (capability.Process, error) {
	s.proc = newFakeProcess()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.fs.WriteFile(s.controlPortFile, []byte(s.controlPortLine), 0600)
	}()
	return s.proc, nil
}

// fakeConnector dials an in-process fake tor control port over a net.Pipe,
// since no real tor binary is available in this environment.
type fakeConnector struct{}

func (fakeConnector) DialTCP(ctx context.Context, host string, port int) (capability.Stream, error) {
	client, server := net.Pipe()
	go serveFakeTor(server)
	return client, nil
}

func (fakeConnector) DialUnix(ctx context.Context, path string) (capability.Stream, error) {
	return nil, errors.New("unix sockets not used in this test")
}

// serveFakeTor answers just enough of the control protocol to drive a
// Runtime through Starting -> On -> Off: PROTOCOLINFO/AUTHENTICATE with
// the NULL method, TAKEOWNERSHIP, SETEVENTS (which triggers a synthetic
// 100% BOOTSTRAP event), and SIGNAL.
func serveFakeTor(conn net.Conn) {
	defer conn.Close()
	rdr := bufio.NewReader(conn)
	for {
		line, err := rdr.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		var reply []string
		switch {
		case strings.HasPrefix(line, "PROTOCOLINFO"):
			reply = []string{"250-PROTOCOLINFO 1", "250-AUTH METHODS=NULL", `250-VERSION Tor="0.4.8.1"`, "250 OK"}
		case strings.HasPrefix(line, "AUTHENTICATE"):
			reply = []string{"250 OK"}
		case strings.HasPrefix(line, "TAKEOWNERSHIP"):
			reply = []string{"250 OK"}
		case strings.HasPrefix(line, "SETEVENTS"):
			reply = []string{"250 OK"}
			go func() {
				time.Sleep(10 * time.Millisecond)
				_, _ = conn.Write([]byte(`650 STATUS_CLIENT NOTICE BOOTSTRAP PROGRESS=100 TAG=done SUMMARY="Done"` + "\r\n"))
			}()
		case strings.HasPrefix(line, "SIGNAL"):
			reply = []string{"250 OK"}
		case strings.HasPrefix(line, "GETINFO circuit-status"):
			reply = []string{"250+circuit-status=", "1 BUILT $AAAA~relay1", "2 BUILT $BBBB~relay2", ".", "250 OK"}
		case strings.HasPrefix(line, "GETINFO"):
			reply = []string{"250-status/bootstrap-phase=NOTICE BOOTSTRAP PROGRESS=100 TAG=done SUMMARY=\"Done\"", "250 OK"}
		default:
			reply = []string{"510 Unrecognized command"}
		}
		for _, l := range reply {
			if _, err := conn.Write([]byte(l + "\r\n")); err != nil {
				return
			}
		}
	}
}

func TestRuntimeStartReachesOnThenStops(t *testing.T) {
	fs := newFakeFS()
	spawner := &fakeSpawner{fs: fs, controlPortFile: "/work/control_port", controlPortLine: "PORT=127.0.0.1:19051\n"}

	var events []runtime.State
	var mu sync.Mutex

	rt := runtime.New(runtime.Options{
		TorPath:    "/usr/bin/tor",
		WorkDir:    "/work",
		CacheDir:   "/work/data",
		Spawner:    spawner,
		Connector:  fakeConnector{},
		FileSystem: fs,
		Log:        logrus.StandardLogger(),
		Builder:    config.NewBuilder(),
		// The fake process only exits when killed, so keep the post-HALT
		// wait well inside the test's 5s context.
		ShutdownTimeout: 100 * time.Millisecond,
	})
	cancel := rt.Observe(runtime.ObserverFunc(func(e runtime.Event) {
		mu.Lock()
		events = append(events, e.State)
		mu.Unlock()
	}))
	defer cancel()

	job := rt.Start(context.Background())
	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, job.Wait(ctx))
	require.Equal(t, runtime.On, rt.State())

	data, err := fs.ReadFile("/work/torrc")
	require.NoError(t, err)
	require.Contains(t, string(data), "DataDirectory")

	stopJob := rt.Stop(context.Background())
	require.NoError(t, stopJob.Wait(ctx))
	require.Equal(t, runtime.Off, rt.State())

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, events, runtime.Starting)
	require.Contains(t, events, runtime.On)
	require.Contains(t, events, runtime.Stopping)
	require.Contains(t, events, runtime.Off)
}

// TestCircuitStatusRoutesThroughJobQueue confirms CircuitStatus decodes a
// multi-line GETINFO circuit-status data reply by way of runtime.Execute's
// queue-backed dispatch, rather than calling control.Execute on the
// connection directly.
func TestCircuitStatusRoutesThroughJobQueue(t *testing.T) {
	fs := newFakeFS()
	spawner := &fakeSpawner{fs: fs, controlPortFile: "/work/control_port", controlPortLine: "PORT=127.0.0.1:19052\n"}

	rt := runtime.New(runtime.Options{
		TorPath:    "/usr/bin/tor",
		WorkDir:    "/work",
		CacheDir:   "/work/data",
		Spawner:    spawner,
		Connector:  fakeConnector{},
		FileSystem: fs,
		Log:        logrus.StandardLogger(),
		Builder:    config.NewBuilder(),
	})
	defer rt.Close()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, rt.Start(ctx).Wait(ctx))

	circuits, err := rt.CircuitStatus(ctx)
	require.NoError(t, err)
	require.Len(t, circuits, 2)
	require.Contains(t, circuits[0], "BUILT")
}
