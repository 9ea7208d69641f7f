package config

import (
	"bytes"
	"fmt"
	"strings"
)

// RenderTorrc renders the config to torrc line form: "Option Argument\n"
// per item, UTF-8, newline-separated, hidden-service blocks contiguous in
// declaration order, per SPEC_FULL.md §6.
func (c *TorConfig) RenderTorrc() []byte {
	var buf bytes.Buffer
	for _, s := range c.settings {
		for _, it := range s.Items {
			arg := renderArgument(it)
			if strings.Contains(arg, " ") && !strings.HasPrefix(arg, "unix:") {
				fmt.Fprintf(&buf, "%s \"%s\"\n", it.Option, arg)
			} else {
				fmt.Fprintf(&buf, "%s %s\n", it.Option, arg)
			}
		}
	}
	return buf.Bytes()
}

// RenderArgv renders the config as `--OptionName Argument` argv pairs, for
// options the command line accepts, per SPEC_FULL.md §6.
func (c *TorConfig) RenderArgv() []string {
	var argv []string
	for _, s := range c.settings {
		for _, it := range s.Items {
			argv = append(argv, "--"+it.Option, renderArgument(it))
		}
	}
	return argv
}

func renderArgument(it Item) string {
	return it.Argument
}
