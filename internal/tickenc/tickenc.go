// Package tickenc implements a reversible, ASCII-safe byte encoding used
// wherever an arbitrary byte string (typically a POSIX path) needs to be
// embedded in a text format: the resource store's canonical directory hash
// and the JSON byte fields of a runnable descriptor.
//
// Bytes in the safe set (printable ASCII 0x20-0x7E minus the escape
// character) pass through unchanged; everything else is escaped as a tick
// `'` followed by two uppercase hex digits.
package tickenc

import (
	"fmt"
	"strings"
)

const escape = '\''

func isSafe(b byte) bool {
	if b == escape {
		return false
	}
	// Printable ASCII, excluding control characters and DEL.
	return b >= 0x20 && b < 0x7f
}

// Encode returns the tick-encoded form of b.
func Encode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if isSafe(c) {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "%c%02X", escape, c)
		}
	}
	return sb.String()
}

// Decode reverses Encode. It returns an error if s contains a malformed
// escape sequence.
func Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != escape {
			out = append(out, c)
			continue
		}
		if i+2 >= len(s) {
			return nil, fmt.Errorf("tickenc: truncated escape at offset %d", i)
		}
		var b byte
		if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &b); err != nil {
			return nil, fmt.Errorf("tickenc: invalid escape %q at offset %d: %w", s[i:i+3], i, err)
		}
		out = append(out, b)
		i += 2
	}
	return out, nil
}
