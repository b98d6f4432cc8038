package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dontbeterm/dontbeterm/internal/config"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

type cliCheckOutput struct {
	Command string               `json:"command"`
	Status  topic.CLIStatus      `json:"status"`
	Test    *topic.CLITestResult `json:"test,omitempty"`
	Guide   *topic.Guide         `json:"guide,omitempty"`
}

// handleCLICheck reports whether the classifier CLI is usable. Exit status
// is 1 when it is missing or the smoke test fails.
func handleCLICheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cli-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	runTest := fs.Bool("test", false, "Also send a short test prompt")
	command := fs.String("cmd", "", "Classifier CLI command (default from config)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: dontbeterm cli-check [options]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Check the topic classifier CLI.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	out := NewCLIOutput(*jsonOutput, stdout, stderr)
	if fs.NArg() > 0 {
		out.Error(fmt.Sprintf("unexpected arguments: %v", fs.Args()), ErrCodeInvalidArgs)
		return 2
	}

	cmd := *command
	if cmd == "" {
		cmd = config.GetTopicSettings().Command
	}
	probe := topic.NewCLIProbe(cmd, logging.ForComponent(logging.CompClassifier))
	ctx := context.Background()

	result := cliCheckOutput{Command: probe.Command(), Status: probe.Check(ctx)}
	ok := result.Status.Available
	if !ok {
		guide := topic.SetupGuide(probe.Command())
		result.Guide = &guide
	} else if *runTest {
		res := probe.Test(ctx)
		result.Test = &res
		ok = res.Success
	}

	out.Print(formatCLICheck(result), result)
	if !ok {
		return 1
	}
	return 0
}

func formatCLICheck(r cliCheckOutput) string {
	var b strings.Builder
	if r.Status.Available {
		fmt.Fprintf(&b, "%s %s is available\n", successSymbol, r.Command)
		if r.Status.Path != "" {
			fmt.Fprintf(&b, "  Path:    %s\n", r.Status.Path)
		}
		if r.Status.Version != "" {
			fmt.Fprintf(&b, "  Version: %s\n", r.Status.Version)
		}
	} else {
		fmt.Fprintf(&b, "%s %s is not available", errorSymbol, r.Command)
		if r.Status.Error != "" {
			fmt.Fprintf(&b, ": %s", r.Status.Error)
		}
		b.WriteString("\n")
		b.WriteString("Topic labels fall back to the built-in heuristic.\n")
	}

	if t := r.Test; t != nil {
		if t.Success {
			fmt.Fprintf(&b, "%s Test prompt answered in %s: %s\n", successSymbol, t.Elapsed.Round(time.Millisecond), t.Output)
		} else {
			fmt.Fprintf(&b, "%s Test prompt failed after %s: %s\n", errorSymbol, t.Elapsed.Round(time.Millisecond), t.Error)
		}
	}

	if g := r.Guide; g != nil {
		fmt.Fprintf(&b, "\n%s\n", g.Title)
		for _, s := range g.Steps {
			fmt.Fprintf(&b, "  %d. %s\n     %s\n", s.Step, s.Title, s.Description)
		}
		if len(g.Troubleshooting) > 0 {
			b.WriteString("\nTroubleshooting:\n")
			for _, t := range g.Troubleshooting {
				fmt.Fprintf(&b, "  %s\n    %s\n", t.Problem, t.Solution)
			}
		}
	}
	return b.String()
}
