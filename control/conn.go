package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/torsvc/tor-runtime/capability"
	"github.com/torsvc/tor-runtime/errs"
)

// Conn is a live control-protocol connection. Writes are strictly
// serialized (SPEC_FULL.md §4.1 "commands are dispatched one at a time"):
// a caller holds writeMu for the full round trip of a command, so the
// single background reader goroutine can unambiguously attribute the next
// non-async reply to whichever Execute call is currently in flight.
// 6xx replies are routed to the event fan-out instead, mirroring the
// teacher's Tor.eventReader goroutine that feeds a dedicated ctrlEvents
// channel separate from command replies.
type Conn struct {
	stream capability.Stream
	rdr    *bufio.Reader
	log    logrus.FieldLogger

	writeMu sync.Mutex
	replyCh chan replyOrErr

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	events *eventRouter
}

type replyOrErr struct {
	reply Reply
	err   error
}

// Dial opens a control connection over conn (already connected by a
// capability.SocketConnector) and starts its reader goroutine.
func Dial(stream capability.Stream, log logrus.FieldLogger) *Conn {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Conn{
		stream:  stream,
		rdr:     bufio.NewReader(stream),
		log:     log,
		replyCh: make(chan replyOrErr, 1),
		closed:  make(chan struct{}),
		events:  newEventRouter(),
	}
	go c.readLoop()
	return c
}

// Events returns the router used to register SETEVENTS observers.
func (c *Conn) Events() *eventRouter { return c.events }

// ConfigureEvents wires the event router to exec (for dispatching
// callbacks off the reader goroutine) and onPanic, and enables SETEVENTS
// reconciliation: every Subscribe/cancel re-issues SETEVENTS with the
// full updated keyword set over this connection.
func (c *Conn) ConfigureEvents(exec capability.Executor, onPanic capability.UncaughtExceptionHandler) {
	c.events.configure(exec, onPanic, func(ctx context.Context, keywords []string) error {
		_, err := Execute(ctx, c, SetEventsCommand(keywords))
		return err
	})
}

// Close shuts down the underlying stream and unblocks any reader waiting
// on a reply or event.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.stream.Close()
		close(c.closed)
		c.events.closeAll()
	})
	return c.closeErr
}

// Done is closed once the connection is closed, either by Close or by the
// reader loop after a read or protocol failure.
func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) readLoop() {
	for {
		reply, err := readOneReply(c.rdr)
		if err != nil {
			select {
			case c.replyCh <- replyOrErr{err: err}:
			default:
			}
			c.log.WithError(err).Debug("control: read loop exiting")
			_ = c.Close()
			return
		}

		if errs.IsAsyncEvent(reply.Status) {
			c.events.dispatch(reply)
			continue
		}

		c.replyCh <- replyOrErr{reply: reply}
	}
}

// sendRaw writes cmd's rendered lines, terminated per-line with CRLF.
func (c *Conn) sendRaw(lines []string) error {
	for _, l := range lines {
		if _, err := io.WriteString(c.stream, l+"\r\n"); err != nil {
			return &errs.IoError{Op: "write", Err: err}
		}
	}
	return nil
}

// roundTrip serializes one command's send + reply-wait under writeMu, so
// concurrent Execute callers never interleave on the wire.
func (c *Conn) roundTrip(ctx context.Context, lines []string) (Reply, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return Reply{}, errs.ErrConnectionLost
	default:
	}

	if err := c.sendRaw(lines); err != nil {
		return Reply{}, err
	}

	select {
	case re := <-c.replyCh:
		if re.err != nil {
			return Reply{}, re.err
		}
		return re.reply, nil
	case <-c.closed:
		return Reply{}, errs.ErrConnectionLost
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("%w: %v", errs.ErrTimeout, ctx.Err())
	}
}
