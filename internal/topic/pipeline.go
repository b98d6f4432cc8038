package topic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/sanitize"
)

// Reasons attached to results, for logs and the event stream.
const (
	ReasonClassifier    = "classifier"
	ReasonInputTooShort = "input_too_short"
	ReasonNoClassifier  = "no_classifier"
	ReasonStaging       = "staging_failed"
	ReasonSpawn         = "spawn_failed"
	ReasonProcess       = "process_failed"
	ReasonEmptyOutput   = "empty_output"
	ReasonInvalidLabel  = "invalid_label"
	ReasonTimeout       = "timeout"
	ReasonPanic         = "panic"
	ReasonUnknown       = "failed"
)

// Job is one classification request: a session and the raw output snapshot
// taken when the refresh was triggered.
type Job struct {
	SessionID string
	Sample    string
}

// Result is the settled outcome of a Job. Label is never empty.
type Result struct {
	SessionID string
	Label     Label
	State     JobState
	Reason    string
	Err       error
	Elapsed   time.Duration
}

// Pipeline decides between the classifier and the heuristic namer and
// guarantees a label for every job.
type Pipeline struct {
	settings   Settings
	namer      *Namer
	classifier Classifier
	log        *slog.Logger
}

// NewPipeline creates a pipeline. A nil classifier means every job takes the
// heuristic path.
func NewPipeline(settings Settings, classifier Classifier, log *slog.Logger) *Pipeline {
	s := settings.WithDefaults()
	if log == nil {
		log = logging.ForComponent(logging.CompTopic)
	}
	return &Pipeline{
		settings:   s,
		namer:      NewNamer(s.Language, s.TrivialCommands),
		classifier: classifier,
		log:        log,
	}
}

// Settings returns the effective settings.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Namer returns the heuristic namer used for fallbacks.
func (p *Pipeline) Namer() *Namer {
	return p.namer
}

// Detect resolves one raw output snapshot to a label. It never fails and
// blocks at most for the classifier's own deadline plus kill grace.
func (p *Pipeline) Detect(ctx context.Context, raw string) Result {
	start := time.Now()
	text := strings.TrimSpace(sanitize.Sanitize(raw))

	// Too little to go on: the sentinel, even if a path or command is visible.
	if utf8.RuneCountInString(text) < p.settings.MinSample {
		return Result{
			Label:   Label{Text: p.namer.Sentinel(), Provenance: ProvenanceHeuristic},
			State:   StateSucceeded,
			Reason:  ReasonInputTooShort,
			Elapsed: time.Since(start),
		}
	}
	if p.classifier == nil {
		return Result{
			Label:   p.namer.Name(text),
			State:   StateSucceeded,
			Reason:  ReasonNoClassifier,
			Elapsed: time.Since(start),
		}
	}

	out := p.classify(ctx, sanitize.Tail(text, p.settings.MaxSample))
	if out.State == StateSucceeded {
		label, err := ValidateLabel(out.Label, p.namer.Sentinel(), p.settings.MaxLabelRunes)
		if err == nil {
			return Result{
				Label:   Label{Text: label, Provenance: ProvenanceClassifier},
				State:   StateSucceeded,
				Reason:  ReasonClassifier,
				Elapsed: time.Since(start),
			}
		}
		out = Outcome{State: StateFailed, Err: err}
	}
	if !out.State.Final() || out.State == StateSucceeded {
		out.State = StateFailed
	}

	return Result{
		Label:   p.namer.Name(text),
		State:   out.State,
		Reason:  reasonFor(out.Err),
		Err:     out.Err,
		Elapsed: time.Since(start),
	}
}

// classify calls the classifier, turning a panic into a failed outcome.
func (p *Pipeline) classify(ctx context.Context, sample string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{State: StateFailed, Err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
	}()
	return p.classifier.Classify(ctx, sample)
}

// DetectAll runs one job per entry concurrently and returns once every job
// has settled. emit, when non-nil, is called as each job resolves; calls are
// serialized. Results are returned in job order.
func (p *Pipeline) DetectAll(ctx context.Context, jobs []Job, emit func(Result)) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	var (
		g      errgroup.Group
		emitMu sync.Mutex
	)
	if p.settings.MaxConcurrent > 0 {
		g.SetLimit(p.settings.MaxConcurrent)
	}

	batchStart := time.Now()
	for i, job := range jobs {
		g.Go(func() error {
			r := p.Detect(ctx, job.Sample)
			r.SessionID = job.SessionID
			results[i] = r

			attrs := []any{
				slog.String("session_id", r.SessionID),
				slog.String("state", string(r.State)),
				slog.String("reason", r.Reason),
				slog.String("label", r.Label.Text),
				slog.String("provenance", string(r.Label.Provenance)),
				slog.Duration("elapsed", r.Elapsed),
			}
			if r.Err != nil {
				attrs = append(attrs, slog.String("error", r.Err.Error()))
			}
			p.log.Info("topic_resolved", attrs...)

			if emit != nil {
				emitMu.Lock()
				defer emitMu.Unlock()
				emit(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.log.Debug("topic_batch_settled",
		slog.Int("jobs", len(jobs)),
		slog.Duration("elapsed", time.Since(batchStart)))
	return results
}

func reasonFor(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrStaging):
		return ReasonStaging
	case errors.Is(err, ErrSpawn):
		return ReasonSpawn
	case errors.Is(err, ErrEmptyOutput):
		return ReasonEmptyOutput
	case errors.Is(err, ErrInvalidLabel):
		return ReasonInvalidLabel
	case errors.Is(err, ErrPanic):
		return ReasonPanic
	case errors.Is(err, ErrProcess):
		return ReasonProcess
	default:
		return ReasonUnknown
	}
}
