package topic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/procutil"
	"github.com/dontbeterm/dontbeterm/internal/sanitize"
)

// Classifier failure causes. All of them mean "no usable label".
var (
	ErrStaging      = errors.New("stage sample")
	ErrSpawn        = errors.New("spawn classifier")
	ErrProcess      = errors.New("classifier exited with error")
	ErrEmptyOutput  = errors.New("classifier produced no output")
	ErrInvalidLabel = errors.New("classifier label rejected")
	ErrTimeout      = errors.New("classifier timed out")
	ErrPanic        = errors.New("classifier panicked")
)

// Outcome is the result of one classifier attempt. Label is set only when
// State is StateSucceeded; Err is set otherwise.
type Outcome struct {
	State JobState
	Label string
	Err   error
}

// Classifier turns a bounded sample of sanitized text into a short label.
// Implementations must always return a final Outcome.
type Classifier interface {
	Classify(ctx context.Context, sample string) Outcome
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, sample string) Outcome

func (f ClassifierFunc) Classify(ctx context.Context, sample string) Outcome {
	return f(ctx, sample)
}

func failed(cause error, err error) Outcome {
	if err == nil {
		return Outcome{State: StateFailed, Err: cause}
	}
	return Outcome{State: StateFailed, Err: fmt.Errorf("%w: %w", cause, err)}
}

// maxStderr bounds how much of the classifier's stderr is kept for logs.
const maxStderr = 4 << 10

// CLIClassifier runs "<command> -p <prompt>" with the sample staged in a
// temp file and fed on stdin. Every invocation has its own deadline; on
// expiry the whole process group is killed.
type CLIClassifier struct {
	command   string
	prompt    string
	sentinel  string
	maxRunes  int
	timeout   time.Duration
	killGrace time.Duration
	tempDir   string
	log       *slog.Logger
}

// NewCLIClassifier builds a classifier from settings. A nil logger uses the
// classifier component logger.
func NewCLIClassifier(settings Settings, log *slog.Logger) *CLIClassifier {
	s := settings.WithDefaults()
	if log == nil {
		log = logging.ForComponent(logging.CompClassifier)
	}
	return &CLIClassifier{
		command:   s.Command,
		prompt:    s.Prompt,
		sentinel:  LocaleFor(s.Language).Sentinel,
		maxRunes:  s.MaxLabelRunes,
		timeout:   s.Timeout,
		killGrace: s.KillGrace,
		tempDir:   s.TempDir,
		log:       log,
	}
}

// Classify implements Classifier. The staged file is removed on every path.
func (c *CLIClassifier) Classify(ctx context.Context, sample string) Outcome {
	staged, err := c.stage(sample)
	if err != nil {
		c.log.Warn("classifier_staging_failed", slog.String("error", err.Error()))
		return failed(ErrStaging, err)
	}
	defer func() {
		if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("classifier_cleanup_failed", slog.String("file", staged), slog.String("error", err.Error()))
		}
	}()

	stdin, err := os.Open(staged)
	if err != nil {
		return failed(ErrStaging, err)
	}
	defer stdin.Close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.command, "-p", c.prompt)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxStderr}
	cmd.WaitDelay = c.killGrace
	procutil.Prepare(cmd)

	start := time.Now()
	if err := procutil.Start(cmd); err != nil {
		c.log.Warn("classifier_spawn_failed",
			slog.String("command", c.command),
			slog.String("error", err.Error()))
		return failed(ErrSpawn, err)
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); waitErr != nil && ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			c.log.Warn("classifier_timeout",
				slog.Int("pid", cmd.Process.Pid),
				slog.Duration("elapsed", elapsed))
			return Outcome{State: StateTimedOut, Err: ErrTimeout}
		}
		return failed(ErrProcess, ctxErr)
	}
	if waitErr != nil {
		c.log.Warn("classifier_process_failed",
			slog.String("error", waitErr.Error()),
			slog.String("stderr", strings.TrimSpace(stderr.String())),
			slog.Duration("elapsed", elapsed))
		return failed(ErrProcess, waitErr)
	}

	candidate := LastLine(stdout.String())
	label, err := ValidateLabel(candidate, c.sentinel, c.maxRunes)
	if err != nil {
		c.log.Info("classifier_label_rejected",
			slog.String("candidate", candidate),
			slog.String("error", err.Error()))
		return Outcome{State: StateFailed, Err: err}
	}

	c.log.Debug("classifier_label",
		slog.String("label", label),
		slog.Duration("elapsed", elapsed))
	return Outcome{State: StateSucceeded, Label: label}
}

func (c *CLIClassifier) stage(sample string) (string, error) {
	f, err := os.CreateTemp(c.tempDir, "topic-*.txt")
	if err != nil {
		return "", err
	}
	name := f.Name()
	_, werr := f.WriteString(sample)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// LastLine returns the last non-blank line of out, trimmed.
func LastLine(out string) string {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// labelQuotes are stripped from both ends of a classifier answer.
const labelQuotes = "\"'`“”‘’「」『』"

// ValidateLabel cleans a classifier answer and checks it: the result must be
// non-empty, shorter than maxRunes runes, and different from sentinel.
func ValidateLabel(candidate, sentinel string, maxRunes int) (string, error) {
	label := strings.TrimSpace(sanitize.Sanitize(candidate))
	label = strings.TrimSpace(strings.Trim(label, labelQuotes))
	if label == "" {
		return "", ErrEmptyOutput
	}
	if label == sentinel {
		return "", fmt.Errorf("%w: sentinel %q", ErrInvalidLabel, label)
	}
	if n := utf8.RuneCountInString(label); n >= maxRunes {
		return "", fmt.Errorf("%w: %d runes, limit %d", ErrInvalidLabel, n, maxRunes)
	}
	return label, nil
}

// limitedWriter keeps the first n bytes and discards the rest.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n > 0 {
		keep := p
		if len(keep) > l.n {
			keep = keep[:l.n]
		}
		l.n -= len(keep)
		if _, err := l.w.Write(keep); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
