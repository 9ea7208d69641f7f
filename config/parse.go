package config

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/torsvc/tor-runtime/errs"
)

// ParseTorrc parses torrc line-format bytes (as rendered by RenderTorrc)
// back into a Builder, per the round-trip law in SPEC_FULL.md §8:
// "Parse(Render(config)) == config (modulo declaration order of unordered
// options)". Contiguous HiddenServiceDir/HiddenServiceVersion/
// HiddenServicePort runs are reassembled into a single hidden-service
// block.
func ParseTorrc(data []byte) (*Builder, error) {
	b := NewBuilder()

	var hsDir string
	var hsVersion int
	var hsPorts []string
	inBlock := false

	flushBlock := func() error {
		if !inBlock {
			return nil
		}
		if hsVersion == 0 {
			return &errs.ConfigError{Option: "HiddenServiceVersion", Reason: "missing in hidden-service block"}
		}
		if len(hsPorts) == 0 {
			return &errs.ConfigError{Option: "HiddenServicePort", Reason: "missing in hidden-service block"}
		}
		b.AddHiddenService(hsDir, hsVersion, hsPorts...)
		hsDir, hsVersion, hsPorts, inBlock = "", 0, nil, false
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		option, argument, ok := splitLine(line)
		if !ok {
			return nil, &errs.ConfigError{Reason: "malformed torrc line: " + line}
		}
		argument = unquote(argument)

		switch option {
		case "HiddenServiceDir":
			if err := flushBlock(); err != nil {
				return nil, err
			}
			hsDir = argument
			inBlock = true
		case "HiddenServiceVersion":
			if !inBlock {
				return nil, &errs.ConfigError{Option: option, Reason: "HiddenServiceVersion without a preceding HiddenServiceDir"}
			}
			v, err := strconv.Atoi(argument)
			if err != nil {
				return nil, &errs.ConfigError{Option: option, Reason: "version must be an integer"}
			}
			hsVersion = v
		case "HiddenServicePort":
			if !inBlock {
				return nil, &errs.ConfigError{Option: option, Reason: "HiddenServicePort without a preceding HiddenServiceDir"}
			}
			hsPorts = append(hsPorts, argument)
		default:
			if err := flushBlock(); err != nil {
				return nil, err
			}
			b.Put(option, argument)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &errs.IoError{Op: "scan", Err: err}
	}
	if err := flushBlock(); err != nil {
		return nil, err
	}

	return b, nil
}

func splitLine(line string) (option, argument string, ok bool) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, "", true
	}
	return line[:idx], strings.TrimSpace(line[idx+1:]), true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
