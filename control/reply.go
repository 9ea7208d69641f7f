// Package control implements the Control Connection (SPEC_FULL.md §4.1):
// a framed line-oriented protocol client with multiplexed request/reply
// and asynchronous event streams. The reply-line state machine is
// grounded on btcpayserver-lnd/tor/controller.go's readResponse; the
// reader-goroutine/channel split needed to let 6xx async events interleave
// with in-flight command replies is grounded on the teacher's
// internal/tor/tor.go Tor.eventReader/ctrlEvents pattern.
package control

import (
	"bufio"
	"strconv"

	"github.com/torsvc/tor-runtime/errs"
)

// Reply is a fully-assembled control-protocol reply: a 3-digit status
// code and the content of each physical reply line (continuation prefix
// stripped), per SPEC_FULL.md §3 "Control Command / Reply".
type Reply struct {
	Status int
	Lines  []string
}

// IsOK reports whether this is the canonical "250 OK" success reply.
func (r Reply) IsOK() bool {
	return r.Status == 250 && len(r.Lines) == 1 && r.Lines[0] == "OK"
}

// readOneReply reads a single (possibly multi-line) reply from rdr,
// following the line grammar in SPEC_FULL.md §4.1: a final line's
// separator is ' ', a continuation line's is '-', and a '+' line
// introduces a "data reply" body terminated by a line containing only
// ".".
func readOneReply(rdr *bufio.Reader) (Reply, error) {
	var reply Reply
	status := -1

	for {
		line, err := readLine(rdr)
		if err != nil {
			return Reply{}, err
		}
		if len(line) < 4 {
			return Reply{}, &errs.ProtocolError{Reason: "reply line shorter than 4 characters: " + line}
		}

		code, err := strconv.Atoi(line[0:3])
		if err != nil {
			return Reply{}, &errs.ProtocolError{Reason: "non-numeric status code: " + line, Err: err}
		}
		if status == -1 {
			status = code
		} else if code != status {
			return Reply{}, &errs.ProtocolError{Reason: "status code changed mid-reply"}
		}

		switch line[3] {
		case ' ':
			reply.Lines = append(reply.Lines, line[4:])
			reply.Status = status
			return reply, nil
		case '-':
			reply.Lines = append(reply.Lines, line[4:])
		case '+':
			reply.Lines = append(reply.Lines, line[4:])
			body, err := readDotBody(rdr)
			if err != nil {
				return Reply{}, err
			}
			reply.Lines = append(reply.Lines, body...)
		default:
			return Reply{}, &errs.ProtocolError{Reason: "invalid reply separator in line: " + line}
		}
	}
}

// readLine reads one \r\n-terminated line, trimming the terminator.
func readLine(rdr *bufio.Reader) (string, error) {
	line, err := rdr.ReadString('\n')
	if err != nil {
		return "", &errs.IoError{Op: "read", Err: err}
	}
	line = trimCRLF(line)
	return line, nil
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// readDotBody reads lines until a line consisting of a single "." and
// returns them, per SPEC_FULL.md §4.1's "'+'" data-reply framing. Per
// SPEC_FULL.md §6, these bytes are not assumed to be valid UTF-8 (e.g.
// CELL_STATS), so no decoding beyond CRLF-stripping is performed.
func readDotBody(rdr *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := readLine(rdr)
		if err != nil {
			return nil, err
		}
		if line == "." {
			return lines, nil
		}
		// A leading ".." in the data is an escaped "." per the dot-encoding
		// rule in the Tor control spec.
		if len(line) >= 2 && line[0] == '.' && line[1] == '.' {
			line = line[1:]
		}
		lines = append(lines, line)
	}
}
