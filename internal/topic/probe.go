package topic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/procutil"
)

const (
	probeVersionTimeout = 5 * time.Second
	probeTestTimeout    = 10 * time.Second
	probeTestPrompt     = "Say OK"
)

// CLIStatus describes whether the classifier CLI can be used.
type CLIStatus struct {
	Available bool      `json:"available"`
	Version   string    `json:"version,omitempty"`
	Path      string    `json:"path,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
	Error     string    `json:"error,omitempty"`
}

// CLITestResult is the outcome of a smoke-test prompt.
type CLITestResult struct {
	Success bool          `json:"success"`
	Output  string        `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// CLIProbe checks for the classifier CLI and caches the last result.
type CLIProbe struct {
	command string
	log     *slog.Logger

	mu      sync.RWMutex
	status  CLIStatus
	checked bool

	sf singleflight.Group
}

// NewCLIProbe creates a probe for command ("claude" when empty).
func NewCLIProbe(command string, log *slog.Logger) *CLIProbe {
	if command == "" {
		command = DefaultSettings().Command
	}
	if log == nil {
		log = logging.ForComponent(logging.CompClassifier)
	}
	return &CLIProbe{command: command, log: log}
}

// Command returns the probed command name.
func (p *CLIProbe) Command() string {
	return p.command
}

// Status returns the cached status and whether a check has completed.
func (p *CLIProbe) Status() (CLIStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status, p.checked
}

// Check looks the command up in PATH and asks for its version. Concurrent
// calls share one check.
func (p *CLIProbe) Check(ctx context.Context) CLIStatus {
	v, _, _ := p.sf.Do("check", func() (interface{}, error) {
		st := p.check(ctx)
		p.mu.Lock()
		p.status = st
		p.checked = true
		p.mu.Unlock()
		return st, nil
	})
	return v.(CLIStatus)
}

func (p *CLIProbe) check(ctx context.Context) CLIStatus {
	st := CLIStatus{LastCheck: time.Now()}

	path, err := exec.LookPath(p.command)
	if err != nil {
		st.Error = fmt.Sprintf("%s not found in PATH", p.command)
		p.log.Warn("cli_not_found", slog.String("command", p.command))
		return st
	}
	st.Path = path

	ctx, cancel := context.WithTimeout(ctx, probeVersionTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.WaitDelay = time.Second
	procutil.Prepare(cmd)
	out, err := cmd.CombinedOutput()
	if err != nil {
		st.Error = "version check failed: " + err.Error()
		p.log.Warn("cli_version_failed", slog.String("path", path), slog.String("error", err.Error()))
		return st
	}

	st.Available = true
	st.Version = strings.TrimSpace(string(out))
	p.log.Info("cli_available", slog.String("path", path), slog.String("version", st.Version))
	return st
}

// Test sends a tiny prompt through the CLI to verify it answers, with a 10s
// deadline.
func (p *CLIProbe) Test(ctx context.Context) CLITestResult {
	ctx, cancel := context.WithTimeout(ctx, probeTestTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.command, "-p", probeTestPrompt)
	cmd.Stdin = strings.NewReader("test\n")
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxStderr}
	cmd.WaitDelay = time.Second
	procutil.Prepare(cmd)

	start := time.Now()
	err := procutil.Start(cmd)
	if err == nil {
		err = cmd.Wait()
	}
	res := CLITestResult{Elapsed: time.Since(start)}

	out := strings.TrimSpace(stdout.String())
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Error = "timed out after " + probeTestTimeout.String()
	case err != nil:
		res.Error = strings.TrimSpace(stderr.String())
		if res.Error == "" {
			res.Error = err.Error()
		}
	case out == "":
		res.Error = "no output received"
	default:
		res.Success = true
		res.Output = out
	}

	p.log.Info("cli_test",
		slog.Bool("success", res.Success),
		slog.String("error", res.Error),
		slog.Duration("elapsed", res.Elapsed))
	return res
}

// GuideStep is one setup instruction.
type GuideStep struct {
	Step        int    `json:"step"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GuideIssue pairs a common failure with its fix.
type GuideIssue struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

// Guide is the setup guide shown when the CLI is unavailable.
type Guide struct {
	Title           string       `json:"title"`
	Steps           []GuideStep  `json:"steps"`
	Troubleshooting []GuideIssue `json:"troubleshooting"`
}

// SetupGuide returns install and troubleshooting instructions for command.
func SetupGuide(command string) Guide {
	if command == "" {
		command = DefaultSettings().Command
	}
	return Guide{
		Title: "Claude CLI setup",
		Steps: []GuideStep{
			{1, "Install the Claude Code CLI", "See https://docs.anthropic.com/en/docs/claude-code for install instructions"},
			{2, "Verify the install", "Run: " + command + " --version"},
			{3, "Log in", "Run " + command + " once and follow the login prompt"},
			{4, "Try a prompt", `Run: echo "test" | ` + command + ` -p "Say hello"`},
		},
		Troubleshooting: []GuideIssue{
			{"command not found: " + command, "The CLI is not installed or not on PATH. Reinstall it or add its directory to PATH, or set [topic] command in config.toml."},
			{"Authentication required", "Log in by running " + command + " interactively."},
			{"Network error", "Check that the Anthropic API is reachable from this machine."},
		},
	}
}
