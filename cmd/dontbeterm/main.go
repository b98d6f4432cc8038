package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/dontbeterm/dontbeterm/internal/config"
	"github.com/dontbeterm/dontbeterm/internal/deck"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/pty"
	"github.com/dontbeterm/dontbeterm/internal/session"
	"github.com/dontbeterm/dontbeterm/internal/ui"
)

const Version = "0.4.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

func initColorProfile() {
	// DONTBETERM_COLOR: truecolor, 256, 16, none
	if p, ok := colorProfileFromEnv(os.Getenv("DONTBETERM_COLOR")); ok {
		lipgloss.SetColorProfile(p)
		return
	}
	lipgloss.SetColorProfile(detectColorProfile(os.Getenv))
}

func colorProfileFromEnv(v string) (termenv.Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "truecolor", "true", "24bit":
		return termenv.TrueColor, true
	case "256", "ansi256":
		return termenv.ANSI256, true
	case "16", "ansi", "basic":
		return termenv.ANSI, true
	case "none", "off", "ascii":
		return termenv.Ascii, true
	}
	return termenv.Ascii, false
}

// detectColorProfile prefers TrueColor: most modern terminals support it
// even when they don't advertise it.
func detectColorProfile(getenv func(string) string) termenv.Profile {
	if ct := getenv("COLORTERM"); ct == "truecolor" || ct == "24bit" {
		return termenv.TrueColor
	}

	term := getenv("TERM")
	for _, t := range []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	} {
		if strings.Contains(term, t) {
			return termenv.TrueColor
		}
	}

	if getenv("WT_SESSION") != "" || // Windows Terminal
		getenv("ITERM_SESSION_ID") != "" ||
		getenv("TERMINAL_EMULATOR") != "" || // JetBrains
		getenv("KONSOLE_VERSION") != "" {
		return termenv.TrueColor
	}

	// SSH and older emulators
	return termenv.ANSI256
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("DontBeTerm v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp(os.Stdout)
			return
		case "serve":
			os.Exit(handleServe(args[1:]))
		case "topic":
			os.Exit(handleTopic(args[1:], os.Stdin, os.Stdout, os.Stderr))
		case "cli-check":
			os.Exit(handleCLICheck(args[1:], os.Stdout, os.Stderr))
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			printHelp(os.Stderr)
			os.Exit(2)
		}
	}

	os.Exit(runTUI())
}

// isNestedSession reports whether we run inside one of our own tabs.
func isNestedSession() bool {
	return os.Getenv("DONTBETERM") == "1"
}

func runTUI() int {
	if isNestedSession() {
		fmt.Fprintln(os.Stderr, "Error: Cannot launch the dontbeterm TUI inside a dontbeterm tab.")
		fmt.Fprintln(os.Stderr, "Detach first with Ctrl+Q. CLI commands such as 'dontbeterm topic' still work here.")
		return 1
	}

	warnConfig()
	stopLogging := setupLogging()
	defer stopLogging()
	log := logging.ForComponent(logging.CompUI)

	if err := config.CreateExampleConfig(); err != nil {
		log.Warn("example_config_failed", slog.String("error", err.Error()))
	}

	mgr, d := newDeck()
	defer d.Close()

	cwd, _ := os.Getwd()
	if _, err := d.CreateSession(session.CreateOptions{Cwd: cwd}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start a shell: %v\n", err)
		return 1
	}

	watcher, err := config.NewWatcher()
	if err != nil {
		log.Warn("config_watcher_unavailable", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.StartAutoRefresh(ctx, config.GetTopicSection().AutoRefresh())

	home := ui.NewHome(ui.Options{
		Deck:          d,
		Terminal:      mgr.Get,
		ConfigWatcher: watcher,
		Version:       Version,
	})
	defer home.Close()

	log.Info("tui_started", slog.Int("pid", os.Getpid()), slog.String("version", Version))
	p := tea.NewProgram(home, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newDeck builds the PTY manager and the deck from the config file.
func newDeck() (*pty.Manager, *deck.Deck) {
	ts := config.GetTerminalSettings()
	mgr := pty.NewManager(pty.Options{
		Shell:           ts.Shell,
		Cols:            uint16(ts.Cols),
		Rows:            uint16(ts.Rows),
		ScrollbackBytes: ts.ScrollbackKB * 1024,
	})
	d := deck.New(deck.Options{
		Terminals:    mgr,
		Settings:     config.GetDeckSettings(),
		DefaultTitle: ts.DefaultTitle,
	})
	return mgr, d
}

// warnConfig reports a broken config file once; defaults are used instead.
func warnConfig() {
	if _, err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
}

// setupLogging initialises slog from the [logs] section. Without
// DONTBETERM_DEBUG, records only reach the in-memory ring buffer.
func setupLogging() func() {
	debugMode := os.Getenv("DONTBETERM_DEBUG") != ""
	ls := config.GetLogSettings()
	baseDir, err := config.Dir()
	if err != nil {
		baseDir = ""
	}

	logging.Init(logging.Config{
		Debug:                 debugMode,
		LogDir:                baseDir,
		Level:                 ls.DebugLevel,
		Format:                ls.DebugFormat,
		MaxSizeMB:             ls.DebugMaxMB,
		MaxBackups:            ls.DebugBackups,
		MaxAgeDays:            ls.DebugRetentionDays,
		Compress:              ls.DebugCompress,
		RingBufferSize:        ls.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: ls.AggregateIntervalSeconds,
		PprofEnabled:          debugMode && ls.PprofEnabled,
	})

	// stdlib log users land in slog too.
	log.SetFlags(0)
	log.SetOutput(logging.NewBridgeWriter(logging.CompUI))

	stopDump := func() {}
	if baseDir != "" {
		stopDump = watchDumpSignal(baseDir)
	}
	return func() {
		stopDump()
		log.SetOutput(os.Stderr)
		logging.Shutdown()
	}
}

// dumpRingBuffer writes the in-memory log mirror next to the config.
func dumpRingBuffer(dir string) {
	path := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
	l := logging.ForComponent(logging.CompUI)
	if err := logging.DumpRingBuffer(path); err != nil {
		l.Error("crash_dump_failed", slog.String("error", err.Error()))
		return
	}
	l.Info("crash_dump_written", slog.String("path", path))
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "DontBeTerm v%s\n", Version)
	fmt.Fprintln(w, "Tabbed terminal sessions that name themselves")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: dontbeterm [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  (none)           Start the TUI")
	fmt.Fprintln(w, "  serve            Run the web control surface with one tab")
	fmt.Fprintln(w, "  topic            Label text from stdin or -file, print label<TAB>provenance")
	fmt.Fprintln(w, "  cli-check        Check the classifier CLI and show the setup guide")
	fmt.Fprintln(w, "  version          Show version")
	fmt.Fprintln(w, "  help             Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  dontbeterm serve -listen 127.0.0.1:9000 -token s3cret")
	fmt.Fprintln(w, "  history | dontbeterm topic")
	fmt.Fprintln(w, "  dontbeterm topic -file session.log -no-cli")
	fmt.Fprintln(w, "  dontbeterm cli-check -test")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment Variables:")
	fmt.Fprintln(w, "  DONTBETERM_HOME      Config directory (default ~/.dontbeterm)")
	fmt.Fprintln(w, "  DONTBETERM_DEBUG     Write debug.log; SIGUSR1 dumps the log buffer")
	fmt.Fprintln(w, "  DONTBETERM_COLOR     Color mode: truecolor, 256, 16, none")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Keyboard shortcuts (in TUI):")
	fmt.Fprintln(w, "  n          New shell tab")
	fmt.Fprintln(w, "  c          New tab running claude in a directory")
	fmt.Fprintln(w, "  Enter      Attach to tab (Ctrl+Q detaches)")
	fmt.Fprintln(w, "  x          Close tab")
	fmt.Fprintln(w, "  r          Rename tab (pins the title)")
	fmt.Fprintln(w, "  R          Refresh topic labels")
	fmt.Fprintln(w, "  Tab/1-9    Switch tabs")
	fmt.Fprintln(w, "  m          Send a preset command to the active tab")
	fmt.Fprintln(w, "  /          Search")
	fmt.Fprintln(w, "  y          Copy debug logs")
	fmt.Fprintln(w, "  q          Quit")
}
