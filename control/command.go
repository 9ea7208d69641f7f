package control

import (
	"context"

	"github.com/torsvc/tor-runtime/errs"
)

// Command[R] is a typed control-protocol request, generalizing the
// teacher's per-command classes (ControlCommand subclasses in
// internal/tor/tor.go) into a single generic shape: Render produces the
// wire lines, Decode turns a successful Reply into R. This replaces a
// sealed command-class hierarchy with a tagged-union-by-construction
// pattern idiomatic to Go, per SPEC_FULL.md §4.1.2.
type Command[R any] struct {
	Render func() []string
	Decode func(Reply) (R, error)
}

// Execute sends cmd over c and decodes its reply. It is a package-level
// generic function rather than a generic method because Go methods
// cannot carry additional type parameters beyond the receiver's.
func Execute[R any](ctx context.Context, c *Conn, cmd Command[R]) (R, error) {
	var zero R
	reply, err := c.roundTrip(ctx, cmd.Render())
	if err != nil {
		return zero, err
	}
	if !errs.IsSuccess(reply.Status) {
		return zero, &errs.ControlError{Status: reply.Status, Lines: reply.Lines}
	}
	return cmd.Decode(reply)
}
