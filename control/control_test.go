package control_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/torsvc/tor-runtime/capability"
	"github.com/torsvc/tor-runtime/control"
)

// pipeStream adapts a net.Conn half to capability.Stream; net.Pipe gives
// us a synchronous in-memory duplex pair without touching the network,
// standing in for the teacher's real control-port socket in tests.
type pipeStream struct {
	net.Conn
}

// fakeTor serves a scripted set of control-protocol replies over one side
// of a net.Pipe, reading requests line by line and replying according to
// a caller-supplied handler. This plays the role of a stub tor control
// port for control_test.go, since no real tor binary is available.
type fakeTor struct {
	conn    net.Conn
	rdr     *bufio.Reader
	handler func(line string) []string
}

func newFakeTor(t *testing.T, handler func(string) []string) (*control.Conn, *fakeTor) {
	t.Helper()
	clientSide, serverSide := net.Pipe()

	ft := &fakeTor{conn: serverSide, rdr: bufio.NewReader(serverSide), handler: handler}
	go ft.serve()

	c := control.Dial(pipeStream{clientSide}, logrus.StandardLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c, ft
}

func (f *fakeTor) serve() {
	for {
		line, err := f.rdr.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		for _, out := range f.handler(line) {
			if _, err := f.conn.Write([]byte(out + "\r\n")); err != nil {
				return
			}
		}
	}
}

// sendAsync pushes an unsolicited 650 event line, interleaved with
// whatever command replies are also flowing, to exercise the reader's
// demultiplexing.
func (f *fakeTor) sendAsync(line string) {
	_, _ = f.conn.Write([]byte(line + "\r\n"))
}

func TestProtocolInfoAndAuthenticateNull(t *testing.T) {
	c, _ := newFakeTor(t, func(line string) []string {
		switch {
		case strings.HasPrefix(line, "PROTOCOLINFO"):
			return []string{
				"250-PROTOCOLINFO 1",
				`250-AUTH METHODS=NULL`,
				`250-VERSION Tor="0.4.8.1"`,
				"250 OK",
			}
		case strings.HasPrefix(line, "AUTHENTICATE"):
			return []string{"250 OK"}
		}
		return []string{"510 Unrecognized command"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pi, err := control.Authenticate(ctx, c, control.AuthConfig{})
	require.NoError(t, err)
	require.Equal(t, 1, pi.ProtocolVersion)
	require.Equal(t, []string{"NULL"}, pi.AuthMethods)
	require.Equal(t, "0.4.8.1", pi.TorVersion)
}

func TestGetConfRoundTrip(t *testing.T) {
	c, _ := newFakeTor(t, func(line string) []string {
		if strings.HasPrefix(line, "GETCONF") {
			return []string{"250-SocksPort=9150", "250 ControlPort=9151"}
		}
		return []string{"510 Unrecognized command"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := control.Execute(ctx, c, control.GetConfCommand("SocksPort", "ControlPort"))
	require.NoError(t, err)
	require.Equal(t, []string{"9150"}, out["SocksPort"])
	require.Equal(t, []string{"9151"}, out["ControlPort"])
}

func TestControlErrorOnNonSuccessStatus(t *testing.T) {
	c, _ := newFakeTor(t, func(line string) []string {
		return []string{"552 Unrecognized option"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := control.Execute(ctx, c, control.GetConfCommand("Bogus"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "552")
}

func TestEventSubscribeReceivesAsyncReplies(t *testing.T) {
	var seen []string
	done := make(chan struct{})

	c, ft := newFakeTor(t, func(line string) []string {
		if strings.HasPrefix(line, "SETEVENTS") {
			return []string{"250 OK"}
		}
		return []string{"510 Unrecognized command"}
	})
	c.ConfigureEvents(immediateExecutor{}, nil)

	cancel, err := c.Events().Subscribe(context.Background(), "STATUS_CLIENT", func(r control.Reply) {
		seen = append(seen, r.Lines[0])
		close(done)
	})
	require.NoError(t, err)
	defer cancel()

	ft.sendAsync("650 STATUS_CLIENT NOTICE BOOTSTRAP PROGRESS=100")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async event")
	}
	require.Len(t, seen, 1)
	require.Contains(t, seen[0], "BOOTSTRAP")
}

type immediateExecutor struct{}

func (immediateExecutor) Submit(kind capability.ExecutorKind, fn func()) { fn() }
