package control

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/torsvc/tor-runtime/capability"
)

// Target names where to dial the control port: either TCP host:port or a
// Unix-domain socket path, matching the __ControlPort option's two forms
// (SPEC_FULL.md §4.4).
type Target struct {
	TCPHost  string
	TCPPort  int
	UnixPath string
}

// Open dials target via connector, wraps the stream in a Conn, and runs
// Authenticate against it. On any failure the stream is closed before
// returning, so callers never leak a half-open connection.
func Open(ctx context.Context, connector capability.SocketConnector, target Target, auth AuthConfig, log logrus.FieldLogger) (*Conn, ProtocolInfo, error) {
	var (
		stream capability.Stream
		err    error
	)
	if target.UnixPath != "" {
		stream, err = connector.DialUnix(ctx, target.UnixPath)
	} else {
		stream, err = connector.DialTCP(ctx, target.TCPHost, target.TCPPort)
	}
	if err != nil {
		return nil, ProtocolInfo{}, err
	}

	c := Dial(stream, log)
	pi, err := Authenticate(ctx, c, auth)
	if err != nil {
		_ = c.Close()
		return nil, pi, err
	}
	return c, pi, nil
}
