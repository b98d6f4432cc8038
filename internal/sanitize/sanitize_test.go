package sanitize

import (
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "hello world\n", "hello world\n"},
		{"sgr color", "\x1b[32mok\x1b[0m done", "ok done"},
		{"cursor movement", "a\x1b[2K\x1b[1Gb", "ab"},
		{"osc title bel", "\x1b]0;my title\x07$ ls\n", "$ ls\n"},
		{"osc title st", "\x1b]2;title\x1b\\prompt", "prompt"},
		{"osc hyperlink", "\x1b]8;;http://x\x1b\\link\x1b]8;;\x1b\\", "link"},
		{"dcs string", "\x1bPq#0;2;0;0;0\x1b\\after", "after"},
		{"carriage return", "line\r\n", "line\n"},
		{"tabs and bell", "a\tb\x07c", "abc"},
		{"delete", "x\x7fy", "xy"},
		{"c1 rune", "a\u009bb", "ab"},
		{"invalid utf8", "ok\xff\xfe!", "ok!"},
		{"cjk preserved", "\x1b[1m构建讨论\x1b[0m\n", "构建讨论\n"},
		{"newlines kept", "a\n\nb", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitizeProperties(t *testing.T) {
	inputs := []string{
		"\x1b[31mred\x1b[0m\r\n~/src/dontbeterm $ \x1b[K",
		"\x1b]0;t\x07\x1b[?2004h$ git status\r\n",
		"\x1b\x1b[[[\x07\x07",
		"bad\xc3\x28utf8\x1b[",
		"\x9b31mraw c1",
		"混合\x1b[1m中文\x1b[0m\ttext",
	}

	for _, in := range inputs {
		out := Sanitize(in)
		assert.LessOrEqual(t, len(out), len(in), "output longer than input for %q", in)
		assert.True(t, utf8.ValidString(out), "invalid utf8 for %q", in)
		assert.Equal(t, out, Sanitize(out), "not idempotent for %q", in)
		for _, r := range out {
			if r != '\n' {
				assert.False(t, unicode.IsControl(r), "control rune %U left in %q", r, out)
			}
		}
	}
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "hi\n", Bytes([]byte("\x1b[1mhi\x1b[0m\r\n")))
	assert.Equal(t, "", Bytes(nil))
}

func TestTail(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"zero", "abc", 0, ""},
		{"negative", "abc", -1, ""},
		{"shorter", "abc", 5, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii", "abcdef", 2, "ef"},
		{"multibyte", "新对话会话", 2, "会话"},
		{"mixed", "ab会话", 3, "b会话"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tail(tt.s, tt.n))
		})
	}
}
