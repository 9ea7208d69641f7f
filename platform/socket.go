package platform

import (
	"context"
	"fmt"
	"net"
	"runtime"

	"github.com/torsvc/tor-runtime/capability"
	"github.com/torsvc/tor-runtime/errs"
)

// NetConnector is the default capability.SocketConnector, backed by the
// net package. Unix-domain sockets are rejected on Windows, per
// SPEC_FULL.md §4.4 ("unix requires host support (not Windows)").
type NetConnector struct{}

func NewNetConnector() *NetConnector { return &NetConnector{} }

func (NetConnector) DialTCP(ctx context.Context, host string, port int) (capability.Stream, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}

func (NetConnector) DialUnix(ctx context.Context, path string) (capability.Stream, error) {
	if runtime.GOOS == "windows" {
		return nil, fmt.Errorf("%w: unix sockets are not supported on windows", errs.ErrUnsupported)
	}
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}
