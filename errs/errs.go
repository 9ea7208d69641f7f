// Package errs defines the error taxonomy shared by every layer of the
// runtime, per SPEC_FULL.md §7 ("Error handling design"). Each error kind
// is a distinct type so callers can use errors.As to recover structured
// detail (status codes, stdout tails, …) instead of parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the kinds that carry no extra structured detail.
var (
	// ErrCancelled is returned via onFailure when a job is cancelled while
	// Enqueued (SPEC_FULL.md §4.2 "Cancellation contract").
	ErrCancelled = errors.New("job cancelled")

	// ErrInterruptedByStop is returned when a pending Start/Restart job is
	// interrupted by a Stop per the §4.2 interrupt rules.
	ErrInterruptedByStop = errors.New("interrupted by stop")

	// ErrConnectionLost is returned to jobs in flight when the control
	// connection's reader observes an I/O or protocol failure.
	ErrConnectionLost = errors.New("control connection lost")

	// ErrTimeout is returned when an execute() deadline elapses.
	ErrTimeout = errors.New("timeout")

	// ErrUnsupported is returned when a capability cannot serve a request
	// on the current platform (e.g. unix sockets on Windows).
	ErrUnsupported = errors.New("unsupported on this platform")

	// ErrRuntimeNotFound is returned by the process-global registry when a
	// lookup by FID misses (SPEC_FULL.md §9, weak owner/observer refs).
	ErrRuntimeNotFound = errors.New("runtime not found")
)

// ConfigError reports an option/argument/invariant violation discovered
// before any I/O, per SPEC_FULL.md §7.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Option, e.Reason)
}

// IoError wraps a filesystem or socket failure.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("io: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("io: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// ProcessStartError reports that tor did not reach readiness, or emitted a
// config-parse error, during startup (SPEC_FULL.md §4.3 step 6-7).
type ProcessStartError struct {
	ExitCode   *int
	StdoutTail string
	StderrTail string
	Cause      error
}

func (e *ProcessStartError) Error() string {
	msg := "process start failed"
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.StdoutTail != "" {
		msg = fmt.Sprintf("%s\n--- stdout tail ---\n%s", msg, e.StdoutTail)
	}
	return msg
}

func (e *ProcessStartError) Unwrap() error { return e.Cause }

// ProtocolError reports a framing, correlation, or authentication failure
// on the control connection.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ControlError reports a well-formed non-2xx reply from tor.
type ControlError struct {
	Status int
	Lines  []string
}

func (e *ControlError) Error() string {
	if len(e.Lines) == 0 {
		return fmt.Sprintf("control: status %d", e.Status)
	}
	return fmt.Sprintf("control: status %d: %s", e.Status, e.Lines[0])
}

// IsAsyncEvent reports whether a status code is a 6xx asynchronous event,
// per SPEC_FULL.md §4.1 framing rules.
func IsAsyncEvent(status int) bool { return status/100 == 6 }

// IsSuccess reports whether a status code is a 2xx success reply.
func IsSuccess(status int) bool { return status/100 == 2 }
