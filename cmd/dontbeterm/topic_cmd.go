package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dontbeterm/dontbeterm/internal/config"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

// maxTopicInput caps how much of the input is read; only the tail matters.
const maxTopicInput = 4 << 20

type topicOutput struct {
	Label      string           `json:"label"`
	Provenance topic.Provenance `json:"provenance"`
	State      topic.JobState   `json:"state"`
	Reason     string           `json:"reason"`
	Error      string           `json:"error,omitempty"`
	ElapsedMs  int64            `json:"elapsedMs"`
}

// handleTopic labels text from stdin or -file the same way a tab refresh
// does and prints "label<TAB>provenance".
func handleTopic(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("topic", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "Read the session text from this file instead of stdin")
	noCLI := fs.Bool("no-cli", false, "Skip the classifier CLI and use the heuristic only")
	lang := fs.String("lang", "", "Label language: en or zh (default from config)")
	command := fs.String("cmd", "", "Classifier CLI command (default from config)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: dontbeterm topic [options] [file]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Label a terminal transcript.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintln(stderr, "  history | dontbeterm topic")
		fmt.Fprintln(stderr, "  dontbeterm topic -no-cli -json session.log")
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	out := NewCLIOutput(*jsonOutput, stdout, stderr)

	path := *file
	switch fs.NArg() {
	case 0:
	case 1:
		if path != "" {
			out.Error("give the input either as -file or as an argument, not both", ErrCodeInvalidArgs)
			return 2
		}
		path = fs.Arg(0)
	default:
		out.Error(fmt.Sprintf("unexpected arguments: %v", fs.Args()[1:]), ErrCodeInvalidArgs)
		return 2
	}

	raw, err := readTopicInput(path, stdin)
	if err != nil {
		out.Error(err.Error(), ErrCodeIO)
		return 1
	}

	settings := config.GetTopicSettings()
	if *lang != "" {
		if *lang != topic.LangEnglish && *lang != topic.LangChinese {
			out.Error(fmt.Sprintf("unsupported language %q (want en or zh)", *lang), ErrCodeInvalidArgs)
			return 2
		}
		settings.Language = *lang
		settings.Prompt = ""
	}
	if *command != "" {
		settings.Command = *command
	}

	log := logging.ForComponent(logging.CompTopic)
	var classifier topic.Classifier
	if !*noCLI {
		classifier = topic.NewCLIClassifier(settings, log)
	}
	res := topic.NewPipeline(settings, classifier, log).Detect(context.Background(), raw)

	payload := topicOutput{
		Label:      res.Label.Text,
		Provenance: res.Label.Provenance,
		State:      res.State,
		Reason:     res.Reason,
		ElapsedMs:  res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		payload.Error = res.Err.Error()
	}
	out.Print(fmt.Sprintf("%s\t%s\n", res.Label.Text, res.Label.Provenance), payload)
	return 0
}

func readTopicInput(path string, stdin io.Reader) (string, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxTopicInput))
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
