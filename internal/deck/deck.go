// Package deck ties the session registry, the topic pipeline and the
// terminals together. The TUI and the web surface drive everything through
// a Deck.
package deck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"golang.org/x/time/rate"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/sanitize"
	"github.com/dontbeterm/dontbeterm/internal/session"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

// What happens to a tab whose shell exits.
const (
	OnExitClose = "close"
	OnExitMark  = "mark"
)

// DefaultSnapshotBytes of raw scrollback read per tab on refresh.
const DefaultSnapshotBytes = 16 * 1024

// Terminals runs the processes behind tabs. *pty.Manager implements it.
type Terminals interface {
	session.Backend
	Write(id string, p []byte) error
	Resize(id string, cols, rows uint16) error
	OnExit(fn func(id string, code int))
	CloseAll()
}

// Settings are the parts of the deck that follow the config file.
type Settings struct {
	Topic         topic.Settings
	SnapshotBytes int
	OnExit        string
}

// Options configure a Deck.
type Options struct {
	Terminals Terminals
	Settings  Settings

	// Classifier overrides the CLI classifier built from Settings.Topic.
	Classifier topic.Classifier

	// DefaultTitle for tabs opened without a directory.
	DefaultTitle string

	// ReplaceLimiter bounds how often a last tab whose shell exited is
	// replaced by a fresh one. Default: 3 per 10s.
	ReplaceLimiter *rate.Limiter

	Logger *slog.Logger
}

// Deck is the application core.
type Deck struct {
	reg       *session.Registry
	terminals Terminals
	log       *slog.Logger

	classifier topic.Classifier // nil: build a CLIClassifier from settings

	mu        sync.RWMutex
	settings  Settings
	pipeline  *topic.Pipeline
	analyzing map[string]int

	replaceLimiter *rate.Limiter

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	autoMu     sync.Mutex
	autoCancel context.CancelFunc
}

// New creates a deck. Terminals may be nil for a deck without processes.
func New(opts Options) *Deck {
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent(logging.CompDeck)
	}
	if opts.ReplaceLimiter == nil {
		opts.ReplaceLimiter = rate.NewLimiter(rate.Every(10*time.Second/3), 3)
	}

	d := &Deck{
		terminals:      opts.Terminals,
		log:            opts.Logger,
		classifier:     opts.Classifier,
		analyzing:      make(map[string]int),
		replaceLimiter: opts.ReplaceLimiter,
		subs:           make(map[chan Event]struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	var backend session.Backend
	if opts.Terminals != nil {
		backend = opts.Terminals
	}
	d.reg = session.NewRegistry(session.Options{
		Backend:      backend,
		DefaultTitle: opts.DefaultTitle,
	})
	d.ApplySettings(opts.Settings)

	if opts.Terminals != nil {
		opts.Terminals.OnExit(d.handleExit)
	}
	return d
}

// ApplySettings swaps in new topic settings and exit behaviour. Refreshes
// already running keep the pipeline they started with.
func (d *Deck) ApplySettings(s Settings) {
	s.Topic = s.Topic.WithDefaults()
	if s.SnapshotBytes <= 0 {
		s.SnapshotBytes = DefaultSnapshotBytes
	}
	if s.OnExit != OnExitMark {
		s.OnExit = OnExitClose
	}

	classifier := d.classifier
	if classifier == nil {
		classifier = topic.NewCLIClassifier(s.Topic, nil)
	}
	p := topic.NewPipeline(s.Topic, classifier, nil)

	d.mu.Lock()
	d.settings = s
	d.pipeline = p
	d.mu.Unlock()

	d.log.Debug("deck_settings_applied",
		slog.String("command", s.Topic.Command),
		slog.String("language", s.Topic.Language),
		slog.Duration("timeout", s.Topic.Timeout),
		slog.String("on_exit", s.OnExit))
}

// Settings returns the effective settings.
func (d *Deck) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// Registry exposes the underlying registry for read-only callers.
func (d *Deck) Registry() *session.Registry {
	return d.reg
}

// CreateSession opens a tab and makes it active.
func (d *Deck) CreateSession(opts session.CreateOptions) (session.Session, error) {
	s, err := d.reg.Create(opts)
	if err != nil {
		return session.Session{}, err
	}
	d.publish(Event{Type: EventSessionCreated, SessionID: s.ID, Title: s.Title})
	d.publish(Event{Type: EventActiveChanged, SessionID: s.ID, Title: s.Title})
	return s, nil
}

// CloseSession closes a tab. Closing the last tab opens a replacement first.
func (d *Deck) CloseSession(id string) error {
	before := d.reg.List()
	if err := d.reg.Close(id); err != nil {
		return err
	}
	d.clearAnalyzing(id)

	known := make(map[string]bool, len(before))
	for _, s := range before {
		known[s.ID] = true
	}
	for _, s := range d.reg.List() {
		if !known[s.ID] {
			d.publish(Event{Type: EventSessionCreated, SessionID: s.ID, Title: s.Title})
		}
	}
	d.publish(Event{Type: EventSessionClosed, SessionID: id})
	if a, ok := d.reg.Active(); ok {
		d.publish(Event{Type: EventActiveChanged, SessionID: a.ID, Title: a.Title})
	}
	return nil
}

// RenameSession sets a user title and pins it against automatic titles.
func (d *Deck) RenameSession(id, title string) error {
	if err := d.reg.Rename(id, title); err != nil {
		return err
	}
	s, _ := d.reg.Get(id)
	d.publish(Event{Type: EventSessionRenamed, SessionID: id, Title: s.Title})
	return nil
}

// SetActive makes id the active tab.
func (d *Deck) SetActive(id string) error {
	if err := d.reg.SetActive(id); err != nil {
		return err
	}
	s, _ := d.reg.Get(id)
	d.publish(Event{Type: EventActiveChanged, SessionID: id, Title: s.Title})
	return nil
}

// Next activates the following tab, wrapping around.
func (d *Deck) Next() (session.Session, bool) {
	return d.activated(d.reg.Next())
}

// Prev activates the preceding tab, wrapping around.
func (d *Deck) Prev() (session.Session, bool) {
	return d.activated(d.reg.Prev())
}

// SelectIndex activates the tab at 0-based position i.
func (d *Deck) SelectIndex(i int) (session.Session, error) {
	s, err := d.reg.SelectIndex(i)
	if err != nil {
		return session.Session{}, err
	}
	d.publish(Event{Type: EventActiveChanged, SessionID: s.ID, Title: s.Title})
	return s, nil
}

func (d *Deck) activated(s session.Session, ok bool) (session.Session, bool) {
	if ok {
		d.publish(Event{Type: EventActiveChanged, SessionID: s.ID, Title: s.Title})
	}
	return s, ok
}

// Sessions lists the tabs in order.
func (d *Deck) Sessions() []session.Session {
	return d.reg.List()
}

// Active returns the active tab.
func (d *Deck) Active() (session.Session, bool) {
	return d.reg.Active()
}

// Get returns one tab.
func (d *Deck) Get(id string) (session.Session, bool) {
	return d.reg.Get(id)
}

// Analyzing reports whether a classification is in flight for id.
func (d *Deck) Analyzing(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.analyzing[id] > 0
}

// Preview returns the sanitized tail of a tab's output, at most n bytes of
// raw output.
func (d *Deck) Preview(id string, n int) (string, error) {
	s, ok := d.reg.Get(id)
	if !ok {
		return "", fmt.Errorf("preview %s: %w", id, session.ErrNotFound)
	}
	return sanitize.Bytes(s.Tail(n)), nil
}

// snapshot reads up to n bytes of a tab's scrollback. A full-size read was
// cut somewhere inside the output, so the partial first line is dropped: it
// may begin in the middle of an escape sequence.
func snapshot(s session.Session, n int) []byte {
	b := s.Tail(n)
	if len(b) < n {
		return b
	}
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[i+1:]
	}
	return b
}

// RefreshTopics runs one settle-all batch over every tab without a pinned
// title and applies the resulting labels. It returns when all jobs settled.
func (d *Deck) RefreshTopics(ctx context.Context) []topic.Result {
	d.mu.RLock()
	p := d.pipeline
	snap := d.settings.SnapshotBytes
	d.mu.RUnlock()

	candidates := d.reg.Unpinned()
	jobs := make([]topic.Job, 0, len(candidates))
	for _, s := range candidates {
		jobs = append(jobs, topic.Job{SessionID: s.ID, Sample: string(snapshot(s, snap))})
	}

	d.mu.Lock()
	for _, j := range jobs {
		d.analyzing[j.SessionID]++
	}
	d.mu.Unlock()
	for _, j := range jobs {
		d.publish(Event{Type: EventAnalyzing, SessionID: j.SessionID})
	}

	d.log.Info("topic_refresh_started", slog.Int("jobs", len(jobs)))
	start := time.Now()

	results := p.DetectAll(ctx, jobs, func(r topic.Result) {
		d.doneAnalyzing(r.SessionID)
		ev := Event{
			SessionID:  r.SessionID,
			Label:      r.Label.Text,
			Provenance: r.Label.Provenance,
			State:      r.State,
			Reason:     r.Reason,
		}
		if d.reg.ApplyAutoTitle(r.SessionID, r.Label.Text) {
			ev.Type = EventTopic
			ev.Title = r.Label.Text
		} else {
			ev.Type = EventTopicSkipped
		}
		d.publish(ev)
	})

	d.log.Info("topic_refresh_settled",
		slog.Int("jobs", len(jobs)),
		slog.Duration("elapsed", time.Since(start)))
	d.publish(Event{Type: EventRefreshDone})
	return results
}

// RefreshTopicsAsync starts RefreshTopics in the background. Overlapping
// refreshes are allowed; the last label applied wins.
func (d *Deck) RefreshTopicsAsync() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.RefreshTopics(d.ctx)
	}()
}

// StartAutoRefresh refreshes topics every interval until ctx is done or the
// deck closes. A later call replaces the previous timer; 0 disables it.
func (d *Deck) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	d.autoMu.Lock()
	defer d.autoMu.Unlock()
	if d.autoCancel != nil {
		d.autoCancel()
		d.autoCancel = nil
	}
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d.autoCancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				d.RefreshTopics(d.ctx)
			}
		}
	}()
	d.log.Info("topic_auto_refresh_started", slog.Duration("interval", interval))
}

func (d *Deck) doneAnalyzing(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.analyzing[id] <= 1 {
		delete(d.analyzing, id)
		return
	}
	d.analyzing[id]--
}

func (d *Deck) clearAnalyzing(id string) {
	d.mu.Lock()
	delete(d.analyzing, id)
	d.mu.Unlock()
}

// SendInput writes raw bytes to a tab's terminal.
func (d *Deck) SendInput(id string, data []byte) error {
	if _, ok := d.reg.Get(id); !ok {
		return fmt.Errorf("input %s: %w", id, session.ErrNotFound)
	}
	if d.terminals == nil {
		return nil
	}
	return d.terminals.Write(id, data)
}

// SendCommand types a command line into a tab and presses enter.
func (d *Deck) SendCommand(id, command string) error {
	return d.SendInput(id, []byte(command+"\r"))
}

// Resize changes a tab's terminal size.
func (d *Deck) Resize(id string, cols, rows uint16) error {
	if _, ok := d.reg.Get(id); !ok {
		return fmt.Errorf("resize %s: %w", id, session.ErrNotFound)
	}
	if cols == 0 || rows == 0 {
		return fmt.Errorf("resize %s: invalid size %dx%d", id, cols, rows)
	}
	if d.terminals == nil {
		return nil
	}
	return d.terminals.Resize(id, cols, rows)
}

// ErrNoActiveSession is returned by operations on the active tab when
// there is none.
var ErrNoActiveSession = errors.New("no active session")

// DropPaths types shell-quoted paths, separated by spaces, into the active
// tab without pressing enter.
func (d *Deck) DropPaths(paths []string) error {
	var clean []string
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	s, ok := d.reg.Active()
	if !ok {
		return ErrNoActiveSession
	}
	return d.SendInput(s.ID, []byte(QuotePaths(clean)))
}

// QuotePaths shell-quotes each path and joins them with spaces.
func QuotePaths(paths []string) string {
	return shellescape.QuoteCommand(paths)
}

// handleExit runs when a tab's shell exits on its own.
func (d *Deck) handleExit(id string, code int) {
	if d.ctx.Err() != nil {
		return // shutting down
	}
	s, ok := d.reg.Get(id)
	if !ok {
		return // closed by us
	}
	d.log.Info("session_process_exited", slog.String("session_id", id), slog.Int("exit_code", code))

	d.mu.RLock()
	mode := d.settings.OnExit
	d.mu.RUnlock()

	if mode == OnExitClose {
		if d.reg.Len() > 1 || d.replaceLimiter.Allow() {
			err := d.CloseSession(id)
			if err == nil || errors.Is(err, session.ErrNotFound) {
				return
			}
			d.log.Warn("session_exit_close_failed", slog.String("session_id", id), slog.String("error", err.Error()))
		} else {
			d.log.Warn("session_replacement_rate_limited", slog.String("session_id", id))
		}
	}

	if d.reg.MarkEnded(id) {
		s.Ended = true
		d.publish(Event{Type: EventSessionEnded, SessionID: id, Title: s.DisplayTitle()})
	}
}

// Close stops background refreshes and every terminal.
func (d *Deck) Close() {
	d.StartAutoRefresh(context.Background(), 0)
	d.cancel()
	d.wg.Wait()
	if d.terminals != nil {
		d.terminals.CloseAll()
	}
	d.closeSubscribers()
}
