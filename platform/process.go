// Package platform supplies the default OS-backed implementations of the
// capability interfaces. It is grounded on the teacher's
// internal/sandbox/process package (process lifecycle) and internal/utils
// (filesystem modes), generalized from a single bwrap-wrapping type into
// the narrower ProcessSpawner/FileSystem/SocketConnector/Executor
// capability surface in package capability.
package platform

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/torsvc/tor-runtime/capability"
)

// execProcess wraps an *exec.Cmd the way the teacher's process.Process
// wraps a bwrap instance, minus the init-pid indirection bubblewrap needs
// (tor is spawned directly, with no sandboxing layer in scope here).
type execProcess struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	pipe io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.pipe }

func (p *execProcess) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	wpid, err := syscall.Wait4(p.cmd.Process.Pid, nil, syscall.WNOHANG, nil)
	if err != nil {
		return false
	}
	return wpid == 0
}

func (p *execProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	_, _ = p.cmd.Process.Wait()
	return err
}

func (p *execProcess) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}
	return cmd.Wait()
}

// ExecSpawner is the default capability.ProcessSpawner, backed by os/exec.
type ExecSpawner struct{}

func NewExecSpawner() *ExecSpawner { return &ExecSpawner{} }

func (ExecSpawner) Spawn(ctx context.Context, spec capability.ExecSpec) (capability.Process, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir

	buf := &syncBuffer{}
	cmd.Stdout = buf
	cmd.Stderr = buf

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &execProcess{cmd: cmd, pipe: buf}, nil
}

// syncBuffer is an io.Writer+io.Reader tail buffer safe for concurrent
// write (from the child's stdout/stderr pump) and read (from the readiness
// scanner), bounded the way SPEC_FULL.md's "line budget" expects: callers
// are responsible for stopping once they've seen enough lines, this buffer
// never discards data on its own.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Read(p)
}

// Snapshot returns the buffered bytes not yet consumed by Read, without
// consuming them, for attaching stdout/stderr tails to ProcessStartError.
func (b *syncBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// Tail returns the last n bytes of data, matching SPEC_FULL.md §4.3's
// "stdoutTail/stderrTail" error fields.
func Tail(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[len(data)-n:])
}
