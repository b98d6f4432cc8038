package pty

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	creackpty "github.com/creack/pty"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/platform"
	"github.com/dontbeterm/dontbeterm/internal/ringbuf"
	"github.com/dontbeterm/dontbeterm/internal/session"
)

// Options configure a Manager.
type Options struct {
	// Shell to run; defaults to $SHELL, then /bin/sh.
	Shell string
	// Initial window size (default 120x32).
	Cols, Rows uint16
	// ScrollbackBytes per terminal (default 256 KiB).
	ScrollbackBytes int
	// Env is appended to the inherited environment.
	Env []string

	Logger *slog.Logger
}

// Manager starts and tracks one Terminal per session. It implements
// session.Backend.
type Manager struct {
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	terms  map[string]*Terminal
	onExit []func(id string, code int)
}

var _ session.Backend = (*Manager)(nil)

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Cols == 0 {
		opts.Cols = 120
	}
	if opts.Rows == 0 {
		opts.Rows = 32
	}
	if opts.ScrollbackBytes <= 0 {
		opts.ScrollbackBytes = ringbuf.DefaultSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.ForComponent(logging.CompPTY)
	}
	return &Manager{
		opts:  opts,
		log:   opts.Logger,
		terms: make(map[string]*Terminal),
	}
}

// OnExit registers fn to run, on its own goroutine, when a terminal's shell
// exits on its own or is stopped.
func (m *Manager) OnExit(fn func(id string, code int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit = append(m.onExit, fn)
}

// Shell returns the shell new terminals run.
func (m *Manager) Shell() string {
	if m.opts.Shell != "" {
		return m.opts.Shell
	}
	return platform.DefaultShell()
}

// Start launches a shell for session id in opts.Cwd (home when empty) and
// types opts.AutoCommand into it.
func (m *Manager) Start(id string, opts session.CreateOptions) (session.Output, error) {
	t, err := m.StartTerminal(id, opts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// StartTerminal is Start returning the concrete terminal.
func (m *Manager) StartTerminal(id string, opts session.CreateOptions) (*Terminal, error) {
	m.mu.RLock()
	_, exists := m.terms[id]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("terminal %s already running", id)
	}

	dir := opts.Cwd
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home
		}
	}
	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("working directory %q: not a directory", dir)
		}
	}

	shell := m.Shell()
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = append(buildEnv(os.Environ()), m.opts.Env...)

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{Cols: m.opts.Cols, Rows: m.opts.Rows})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	t := newTerminal(id, cmd, ptmx, m.opts.ScrollbackBytes, m.log)

	m.mu.Lock()
	m.terms[id] = t
	m.mu.Unlock()

	m.log.Info("terminal_started",
		slog.String("session_id", id),
		slog.String("shell", shell),
		slog.String("cwd", dir),
		slog.Int("pid", t.Pid()))

	if cmdline := strings.TrimSpace(opts.AutoCommand); cmdline != "" {
		if _, err := t.Write([]byte(cmdline + "\r")); err != nil {
			m.log.Warn("terminal_auto_command_failed",
				slog.String("session_id", id),
				slog.String("error", err.Error()))
		}
	}

	go m.watch(t)
	return t, nil
}

func (m *Manager) watch(t *Terminal) {
	<-t.Done()
	m.mu.RLock()
	hooks := append([]func(string, int){}, m.onExit...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(t.id, t.exitCode)
	}
}

// Stop closes the terminal for id and forgets it.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	t, ok := m.terms[id]
	delete(m.terms, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("stop %s: %w", id, ErrNotFound)
	}
	return t.Close()
}

// Get returns the terminal for id.
func (m *Manager) Get(id string) (*Terminal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.terms[id]
	if !ok {
		return nil, fmt.Errorf("terminal %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// Write sends input to the terminal for id.
func (m *Manager) Write(id string, p []byte) error {
	t, err := m.Get(id)
	if err != nil {
		return err
	}
	_, err = t.Write(p)
	return err
}

// Resize resizes the terminal for id.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	t, err := m.Get(id)
	if err != nil {
		return err
	}
	return t.Resize(cols, rows)
}

// Len returns the number of tracked terminals.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.terms)
}

// CloseAll stops every terminal concurrently and waits for them.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	terms := make([]*Terminal, 0, len(m.terms))
	for id, t := range m.terms {
		terms = append(terms, t)
		delete(m.terms, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range terms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = t.Close()
		}()
	}
	wg.Wait()
}

// buildEnv sets a TERM suitable for full-screen programs when the parent
// environment has none.
func buildEnv(env []string) []string {
	out := make([]string, 0, len(env)+2)
	hasTerm := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "TERM=") {
			if kv == "TERM=" || kv == "TERM=dumb" {
				continue
			}
			hasTerm = true
		}
		out = append(out, kv)
	}
	if !hasTerm {
		out = append(out, "TERM=xterm-256color")
	}
	return append(out, "DONTBETERM=1")
}
