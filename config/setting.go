package config

// Item is one (option, argument) pair within a Setting. A hidden-service
// block is a single Setting holding several Items — one per
// HiddenServiceDir/HiddenServiceVersion/HiddenServicePort line — so that
// it always renders (and is removed) as a contiguous unit, per
// SPEC_FULL.md §3 ("Multi-item settings (hidden services) must be stored
// and rendered as a contiguous block").
type Item struct {
	Option   string
	Argument string
}

// Setting is one declared configuration entry: a plain option has exactly
// one Item; a hidden-service block has its directory, version, and one or
// more port items, in declaration order.
type Setting struct {
	Items []Item
}

// primaryOption returns the option name used to index/compare this
// Setting (the first item's option — for a hidden-service block this is
// HiddenServiceDir).
func (s Setting) primaryOption() string {
	if len(s.Items) == 0 {
		return ""
	}
	return s.Items[0].Option
}

// isDisableFor reports whether this is a single-item setting for option
// with argument "0" (the port-disable sentinel, SPEC_FULL.md §3/§4.4).
func (s Setting) isDisableFor(option string) bool {
	return len(s.Items) == 1 && s.Items[0].Option == option && s.Items[0].Argument == "0"
}

func (s Setting) equalTuple(other Setting) bool {
	if len(s.Items) != len(other.Items) {
		return false
	}
	for i := range s.Items {
		if s.Items[i] != other.Items[i] {
			return false
		}
	}
	return true
}
