package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muesli/termenv"
)

const missingCLI = "dontbeterm-no-such-cli"

var padding = strings.Repeat("compiling crate output line\n", 5)

func TestTopicHeuristicFromStdin(t *testing.T) {
	var out, errOut bytes.Buffer
	code := handleTopic([]string{"-no-cli"}, strings.NewReader("~/projects/dontbeterm\n$ npm run build\n"+padding), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, errOut.String())
	}
	if got := out.String(); got != "dontbeterm\theuristic\n" {
		t.Errorf("output = %q", got)
	}
}

func TestTopicCommandLabel(t *testing.T) {
	var out, errOut bytes.Buffer
	code := handleTopic([]string{"-no-cli"}, strings.NewReader("$ make test\nok\n"+padding), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, errOut.String())
	}
	if got := out.String(); got != "make session\theuristic\n" {
		t.Errorf("output = %q", got)
	}
}

func TestTopicShortInputIsSentinel(t *testing.T) {
	var out, errOut bytes.Buffer
	code := handleTopic([]string{"-no-cli"}, strings.NewReader("/srv/www/shop\n$ make\n"), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, errOut.String())
	}
	if got := out.String(); got != "new conversation\theuristic\n" {
		t.Errorf("output = %q", got)
	}
}

func TestTopicChineseSentinel(t *testing.T) {
	var out, errOut bytes.Buffer
	code := handleTopic([]string{"-lang", "zh", "-no-cli"}, strings.NewReader("hello\n"), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, errOut.String())
	}
	if got := out.String(); got != "新对话\theuristic\n" {
		t.Errorf("output = %q", got)
	}
}

func TestTopicMissingCLIFallsBack(t *testing.T) {
	input := "$ cargo build\n" + strings.Repeat("compiling crate output line\n", 10)
	var out, errOut bytes.Buffer
	code := handleTopic([]string{"-cmd", missingCLI, "-json"}, strings.NewReader(input), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, errOut.String())
	}

	var got topicOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if got.Label != "cargo session" || got.Provenance != "heuristic" {
		t.Errorf("label = %q (%s), want heuristic cargo session", got.Label, got.Provenance)
	}
	if got.State != "failed" {
		t.Errorf("state = %q, want failed", got.State)
	}
	if got.Error == "" {
		t.Error("expected the classifier error in the output")
	}
}

func TestTopicFromFileArgument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	if err := os.WriteFile(path, []byte("/srv/www/shop\n$ ls\n"+padding), 0o644); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	code := handleTopic([]string{path, "-no-cli"}, strings.NewReader(""), &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, errOut.String())
	}
	if got := out.String(); got != "shop\theuristic\n" {
		t.Errorf("output = %q", got)
	}
}

func TestTopicArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing file", []string{"-file", filepath.Join(t.TempDir(), "nope")}, 1},
		{"file twice", []string{"-file", "a", "b"}, 2},
		{"extra args", []string{"a", "b"}, 2},
		{"bad language", []string{"-lang", "fr"}, 2},
		{"unknown flag", []string{"-bogus"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			if code := handleTopic(tt.args, strings.NewReader(""), &out, &errOut); code != tt.code {
				t.Errorf("exit = %d, want %d (stderr %q)", code, tt.code, errOut.String())
			}
			if out.Len() != 0 {
				t.Errorf("unexpected stdout %q", out.String())
			}
		})
	}
}

func TestCLICheckMissingShowsGuide(t *testing.T) {
	var out, errOut bytes.Buffer
	code := handleCLICheck([]string{"-cmd", missingCLI, "-test"}, &out, &errOut)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	text := out.String()
	for _, want := range []string{missingCLI + " is not available", "Claude CLI setup", "Troubleshooting:", "command not found: " + missingCLI} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Test prompt") {
		t.Error("smoke test must not run when the CLI is missing")
	}
}

func TestCLICheckJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	handleCLICheck([]string{"-cmd", missingCLI, "-json"}, &out, &errOut)

	var got struct {
		Command string `json:"command"`
		Status  struct {
			Available bool `json:"available"`
		} `json:"status"`
		Guide *struct {
			Steps []json.RawMessage `json:"steps"`
		} `json:"guide"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if got.Command != missingCLI || got.Status.Available {
		t.Errorf("got command %q available %v", got.Command, got.Status.Available)
	}
	if got.Guide == nil || len(got.Guide.Steps) == 0 {
		t.Error("expected setup guide steps")
	}
}

func TestParseServeFlags(t *testing.T) {
	flags, err := parseServeFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if flags.listen != "127.0.0.1:8421" || flags.token != "" {
		t.Errorf("defaults = %+v", flags)
	}

	flags, err = parseServeFlags([]string{"-token", "s3cret", "--listen=0.0.0.0:9000"})
	if err != nil {
		t.Fatal(err)
	}
	if flags.listen != "0.0.0.0:9000" || flags.token != "s3cret" {
		t.Errorf("parsed = %+v", flags)
	}

	if _, err := parseServeFlags([]string{"extra"}); err == nil {
		t.Error("expected an error for a positional argument")
	}
}

func TestIsNestedSession(t *testing.T) {
	t.Setenv("DONTBETERM", "")
	if isNestedSession() {
		t.Error("not nested without DONTBETERM")
	}
	t.Setenv("DONTBETERM", "1")
	if !isNestedSession() {
		t.Error("nested with DONTBETERM=1")
	}
	if runTUI() != 1 {
		t.Error("runTUI must refuse to start inside a tab")
	}
}

func TestColorProfileFromEnv(t *testing.T) {
	tests := []struct {
		in   string
		want termenv.Profile
		ok   bool
	}{
		{"truecolor", termenv.TrueColor, true},
		{"256", termenv.ANSI256, true},
		{" 16 ", termenv.ANSI, true},
		{"NONE", termenv.Ascii, true},
		{"", termenv.Ascii, false},
		{"rainbow", termenv.Ascii, false},
	}
	for _, tt := range tests {
		got, ok := colorProfileFromEnv(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("colorProfileFromEnv(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDetectColorProfile(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}
	tests := []struct {
		name string
		vars map[string]string
		want termenv.Profile
	}{
		{"colorterm", map[string]string{"COLORTERM": "truecolor"}, termenv.TrueColor},
		{"tmux", map[string]string{"TERM": "tmux-256color"}, termenv.TrueColor},
		{"windows terminal", map[string]string{"WT_SESSION": "x"}, termenv.TrueColor},
		{"plain xterm", map[string]string{"TERM": "xterm"}, termenv.ANSI256},
		{"nothing", map[string]string{}, termenv.ANSI256},
	}
	for _, tt := range tests {
		if got := detectColorProfile(env(tt.vars)); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
