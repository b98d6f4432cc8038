package session

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dontbeterm/dontbeterm/internal/logging"
)

// DefaultTitle names sessions created without a working directory.
const DefaultTitle = "Terminal"

// Options configure a Registry.
type Options struct {
	// Backend starts the terminal process for each session. Nil means
	// sessions have no output.
	Backend Backend

	// DefaultTitle is used when a session has no cwd (default "Terminal").
	DefaultTitle string

	Logger *slog.Logger
}

// Registry owns the ordered set of sessions. All title writes go through
// Rename or ApplyAutoTitle so the pin cannot be bypassed.
type Registry struct {
	mu        sync.RWMutex
	replaceMu sync.Mutex
	sessions  []*Session
	active    string

	backend      Backend
	defaultTitle string
	log          *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = DefaultTitle
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent(logging.CompSession)
	}
	return &Registry{
		backend:      opts.Backend,
		defaultTitle: opts.DefaultTitle,
		log:          opts.Logger,
	}
}

// Create starts a new session and makes it active. The title is the
// explicit one, else the base name of the cwd, else the default title.
func (r *Registry) Create(opts CreateOptions) (Session, error) {
	id := uuid.NewString()

	title := strings.TrimSpace(opts.Title)
	if title == "" && opts.Cwd != "" {
		title = filepath.Base(filepath.Clean(opts.Cwd))
		if title == "." || title == string(filepath.Separator) {
			title = opts.Cwd
		}
	}
	if title == "" {
		title = r.defaultTitle
	}

	var out Output
	if r.backend != nil {
		var err error
		out, err = r.backend.Start(id, opts)
		if err != nil {
			r.log.Error("session_start_failed",
				slog.String("session_id", id),
				slog.String("cwd", opts.Cwd),
				slog.String("error", err.Error()))
			return Session{}, fmt.Errorf("start session: %w", err)
		}
	}

	s := &Session{
		ID:          id,
		Title:       title,
		Cwd:         opts.Cwd,
		AutoCommand: opts.AutoCommand,
		CreatedAt:   time.Now(),
		Output:      out,
	}

	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.active = id
	snap := *s
	r.mu.Unlock()

	r.log.Info("session_created",
		slog.String("session_id", id),
		slog.String("title", title),
		slog.String("cwd", opts.Cwd),
		slog.String("auto_command", opts.AutoCommand))
	return snap, nil
}

// Rename sets a user-chosen title and pins the session. A blank title keeps
// the current title but still pins it.
func (r *Registry) Rename(id, title string) error {
	title = strings.TrimSpace(title)

	r.mu.Lock()
	s := r.findLocked(id)
	if s == nil {
		r.mu.Unlock()
		return fmt.Errorf("rename %s: %w", id, ErrNotFound)
	}
	if title != "" {
		s.Title = title
	}
	s.Pin = PinPinned
	final := s.Title
	r.mu.Unlock()

	r.log.Info("session_renamed", slog.String("session_id", id), slog.String("title", final))
	return nil
}

// ApplyAutoTitle sets an automatically derived title. It is a no-op, and
// returns false, when the session is pinned, gone, or title is blank.
func (r *Registry) ApplyAutoTitle(id, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findLocked(id)
	if s == nil || s.Pin == PinPinned {
		return false
	}
	s.Title = title
	return true
}

// Close removes a session and stops its process. When it is the only
// session, a replacement is created first; if that fails the session is
// kept and the error returned.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("close %s: %w", id, ErrNotFound)
	}
	if len(r.sessions) > 1 {
		r.removeLocked(idx)
		r.mu.Unlock()
		return r.stopClosed(id)
	}
	r.mu.Unlock()
	return r.closeLast(id)
}

// closeLast closes what was the only session. Replacements are created under
// replaceMu so concurrent closes of the last tab leave exactly one behind.
func (r *Registry) closeLast(id string) error {
	r.replaceMu.Lock()
	defer r.replaceMu.Unlock()

	for {
		r.mu.Lock()
		idx := r.indexLocked(id)
		if idx < 0 {
			r.mu.Unlock()
			return fmt.Errorf("close %s: %w", id, ErrNotFound)
		}
		if len(r.sessions) > 1 {
			r.removeLocked(idx)
			r.mu.Unlock()
			return r.stopClosed(id)
		}
		r.mu.Unlock()

		// A replacement must exist before the last one goes away.
		repl, err := r.Create(CreateOptions{})
		if err != nil {
			return fmt.Errorf("close %s: create replacement: %w", id, err)
		}
		r.log.Info("session_replacement_created",
			slog.String("closed_id", id),
			slog.String("session_id", repl.ID))
	}
}

func (r *Registry) stopClosed(id string) error {
	if r.backend != nil {
		if err := r.backend.Stop(id); err != nil {
			r.log.Warn("session_stop_failed", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}
	r.log.Info("session_closed", slog.String("session_id", id))
	return nil
}

// removeLocked drops sessions[idx] and moves the active marker to the
// session now at the same position, or the new last one.
func (r *Registry) removeLocked(idx int) {
	id := r.sessions[idx].ID
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	if r.active == id {
		r.active = ""
		if n := len(r.sessions); n > 0 {
			r.active = r.sessions[min(idx, n-1)].ID
		}
	}
}

// MarkEnded flags a session whose process exited. The title is untouched;
// DisplayTitle gains the ended suffix.
func (r *Registry) MarkEnded(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findLocked(id)
	if s == nil {
		return false
	}
	s.Ended = true
	return true
}

// List returns snapshots of all sessions in creation order.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, len(r.sessions))
	for i, s := range r.sessions {
		out[i] = *s
	}
	return out
}

// Unpinned returns the sessions eligible for automatic titles, in order.
func (r *Registry) Unpinned() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Session
	for _, s := range r.sessions {
		if s.Pin == PinAuto {
			out = append(out, *s)
		}
	}
	return out
}

// Get returns a snapshot of one session.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.findLocked(id); s != nil {
		return *s, true
	}
	return Session{}, false
}

// Pinned reports whether id exists and is pinned.
func (r *Registry) Pinned(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.findLocked(id)
	return s != nil && s.Pin == PinPinned
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Active returns the active session.
func (r *Registry) Active() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.findLocked(r.active); s != nil {
		return *s, true
	}
	return Session{}, false
}

// SetActive makes id the active session.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLocked(id) == nil {
		return fmt.Errorf("activate %s: %w", id, ErrNotFound)
	}
	r.active = id
	return nil
}

// SelectIndex activates the session at position i (0-based).
func (r *Registry) SelectIndex(i int) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.sessions) {
		return Session{}, fmt.Errorf("select index %d: %w", i, ErrNotFound)
	}
	r.active = r.sessions[i].ID
	return *r.sessions[i], nil
}

// Next activates the session after the active one, wrapping around.
func (r *Registry) Next() (Session, bool) {
	return r.step(1)
}

// Prev activates the session before the active one, wrapping around.
func (r *Registry) Prev() (Session, bool) {
	return r.step(-1)
}

func (r *Registry) step(delta int) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sessions)
	if n == 0 {
		return Session{}, false
	}
	idx := r.indexLocked(r.active)
	switch {
	case idx < 0 && delta > 0:
		idx = 0
	case idx < 0:
		idx = n - 1
	default:
		idx = (idx + delta + n) % n
	}
	r.active = r.sessions[idx].ID
	return *r.sessions[idx], true
}

func (r *Registry) indexLocked(id string) int {
	for i, s := range r.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) findLocked(id string) *Session {
	if i := r.indexLocked(id); i >= 0 {
		return r.sessions[i]
	}
	return nil
}
