// Package sanitize turns raw terminal output into plain text suitable for
// classification and previews.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Sanitize removes terminal control sequences (CSI, OSC, DCS/APC/PM/SOS
// strings, two-byte ESC sequences, 8-bit C1 sequences), invalid UTF-8, and
// every remaining control character except newline. The result is never
// longer than the input and Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	if isPlain(s) {
		return s
	}

	s = ansi.Strip(s)
	s = strings.ToValidUTF8(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r != '\n' && unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Bytes sanitizes a raw output snapshot.
func Bytes(p []byte) string {
	return Sanitize(string(p))
}

// Tail returns the last n runes of s. It returns s unchanged when it holds
// n runes or fewer, and "" when n <= 0.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := len(s); i > 0; {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
		count++
		if count == n {
			return s[i:]
		}
	}
	return s
}

// isPlain reports whether s is valid UTF-8 with no control runes besides
// newline, so it can be returned as-is.
func isPlain(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= utf8.RuneSelf {
			// Non-ASCII: fall back to the full check below.
			return plainRunes(s[i:])
		}
		if c != '\n' && (c < 0x20 || c == 0x7f) {
			return false
		}
	}
	return true
}

func plainRunes(s string) bool {
	for _, r := range s {
		if r == utf8.RuneError {
			return false
		}
		if r != '\n' && unicode.IsControl(r) {
			return false
		}
	}
	return true
}
