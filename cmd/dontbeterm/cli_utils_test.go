package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"strings"
	"testing"
)

func TestNormalizeArgs(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("json", false, "")
	fs.Bool("no-cli", false, "")
	fs.String("file", "", "")
	fs.String("lang", "", "")

	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags already first",
			args:     []string{"-json", "notes.log"},
			expected: []string{"-json", "notes.log"},
		},
		{
			name:     "bool flag after positional",
			args:     []string{"notes.log", "-no-cli"},
			expected: []string{"-no-cli", "notes.log"},
		},
		{
			name:     "value flag after positional",
			args:     []string{"notes.log", "-lang", "zh"},
			expected: []string{"-lang", "zh", "notes.log"},
		},
		{
			name:     "flag with equals",
			args:     []string{"notes.log", "--file=x.log"},
			expected: []string{"--file=x.log", "notes.log"},
		},
		{
			name:     "double dash stops reordering",
			args:     []string{"-json", "--", "-not-a-flag"},
			expected: []string{"-json", "-not-a-flag"},
		},
		{
			name:     "lone dash is positional",
			args:     []string{"-", "-json"},
			expected: []string{"-json", "-"},
		},
		{
			name:     "empty",
			args:     []string{},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeArgs(fs, tt.args)
			if len(got) != len(tt.expected) {
				t.Fatalf("normalizeArgs(%v) = %v, want %v", tt.args, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("normalizeArgs(%v)[%d] = %q, want %q", tt.args, i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestCLIOutput(t *testing.T) {
	var out, errOut bytes.Buffer

	NewCLIOutput(false, &out, &errOut).Print("plain\n", map[string]string{"k": "v"})
	if out.String() != "plain\n" {
		t.Errorf("text Print wrote %q", out.String())
	}

	out.Reset()
	NewCLIOutput(true, &out, &errOut).Print("plain\n", map[string]string{"k": "v"})
	var decoded map[string]string
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON Print wrote invalid JSON %q: %v", out.String(), err)
	}
	if decoded["k"] != "v" {
		t.Errorf("decoded = %v", decoded)
	}

	NewCLIOutput(false, &out, &errOut).Error("boom", ErrCodeIO)
	if !strings.Contains(errOut.String(), "Error: boom") {
		t.Errorf("text Error wrote %q to stderr", errOut.String())
	}
}
