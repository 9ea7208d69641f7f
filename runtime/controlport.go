package runtime

import (
	"strconv"
	"strings"

	"github.com/torsvc/tor-runtime/control"
	"github.com/torsvc/tor-runtime/errs"
)

// parseControlPortFile parses the single-line contents tor writes to the
// file named by ControlPortWriteToFile: either "PORT=host:port" or
// "UNIX_SOCKET=path" (control-spec.txt, ControlPortWriteToFile). Grounded
// on the teacher's DoBootstrap, which reads the equivalent "control_port"
// file it writes itself for the sandboxed case; real tor's own file uses
// this PORT=/UNIX_SOCKET= format instead, which SPEC_FULL.md §6 requires
// parsing.
func parseControlPortFile(data []byte) (control.Target, error) {
	line := strings.TrimSpace(string(data))
	for _, l := range strings.Split(line, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		switch {
		case strings.HasPrefix(l, "PORT="):
			hostport := strings.TrimPrefix(l, "PORT=")
			host, portStr, ok := strings.Cut(hostport, ":")
			if !ok {
				return control.Target{}, &errs.ProtocolError{Reason: "malformed PORT= control port file entry: " + l}
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return control.Target{}, &errs.ProtocolError{Reason: "non-numeric control port", Err: err}
			}
			return control.Target{TCPHost: host, TCPPort: port}, nil
		case strings.HasPrefix(l, "UNIX_SOCKET="):
			return control.Target{UnixPath: strings.TrimPrefix(l, "UNIX_SOCKET=")}, nil
		}
	}
	return control.Target{}, &errs.ProtocolError{Reason: "control port file had no PORT= or UNIX_SOCKET= line"}
}
