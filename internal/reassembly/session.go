package reassembly

import "strings"

// UnknownSession is the key used when a display string yields no usable prefix.
const UnknownSession = "unknown"

// SessionKey extracts a best-effort connection key from the host's display
// representation of a session, "<id>.<description>". The key is the text before
// the first '.', or the whole trimmed string when it has none.
func SessionKey(display string) string {
	display = strings.TrimSpace(display)
	if display == "" {
		return UnknownSession
	}
	idx := strings.IndexByte(display, '.')
	switch {
	case idx < 0:
		return display
	case idx == 0:
		return UnknownSession
	default:
		return display[:idx]
	}
}
