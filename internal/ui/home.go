package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/dontbeterm/dontbeterm/internal/clipboard"
	"github.com/dontbeterm/dontbeterm/internal/config"
	"github.com/dontbeterm/dontbeterm/internal/deck"
	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/pty"
	"github.com/dontbeterm/dontbeterm/internal/session"
	"github.com/dontbeterm/dontbeterm/internal/topic"
)

var uiLog = logging.ForComponent(logging.CompUI)

const (
	// tickInterval redraws the preview while shells produce output.
	tickInterval  = time.Second
	statusTimeout = 4 * time.Second
	cliTimeout    = 10 * time.Second

	previewBytes = 8 * 1024
	minListWidth = 24
	maxListWidth = 48
)

type inputMode int

const (
	modeNormal inputMode = iota
	modeRename
	modeNewDir
)

// TerminalLookup finds the terminal behind a tab for attaching.
type TerminalLookup func(id string) (*pty.Terminal, error)

// Options configure the TUI.
type Options struct {
	Deck *deck.Deck

	// Terminal resolves tabs for attach; nil disables attaching.
	Terminal TerminalLookup

	// Probe reports classifier CLI status. Default: a probe for the
	// configured topic command.
	Probe *topic.CLIProbe

	// ConfigWatcher, when set, makes config edits apply live.
	ConfigWatcher *config.Watcher

	// QuickCommands for the command menu. Default: the [terminal] section.
	QuickCommands []string

	Version string

	// Output receives the clear-screen sequence after detaching. Default: stdout.
	Output io.Writer

	Logger *slog.Logger
}

// Home is the main bubbletea model: the tab list with a preview pane.
type Home struct {
	deck     *deck.Deck
	terminal TerminalLookup
	probe    *topic.CLIProbe
	watcher  *config.Watcher
	version  string
	output   io.Writer
	log      *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	events      <-chan deck.Event
	unsubscribe func()

	theme        string // configured: dark, light or system
	themeWatcher *ThemeWatcher

	keys     keyMap
	search   *Search
	commands *CommandMenu
	input    textinput.Model
	mode     inputMode
	renameID string
	showHelp bool

	width  int
	height int

	cliStatus  topic.CLIStatus
	cliChecked bool
	refreshing bool

	status    string
	statusErr bool
	statusSeq int
}

type (
	deckEventMsg     deck.Event
	deckClosedMsg    struct{}
	tickMsg          time.Time
	cliStatusMsg     topic.CLIStatus
	configChangedMsg struct{ cfg *config.Config }
	clearStatusMsg   struct{ seq int }
	copyDoneMsg      struct {
		result *clipboard.CopyResult
		err    error
	}
)

// NewHome creates the model and subscribes to deck events.
func NewHome(opts Options) *Home {
	if opts.Logger == nil {
		opts.Logger = uiLog
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Probe == nil {
		opts.Probe = topic.NewCLIProbe(config.GetTopicSettings().Command, nil)
	}
	if opts.QuickCommands == nil {
		opts.QuickCommands = config.GetTerminalSettings().QuickCommands
	}

	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 50

	h := &Home{
		deck:     opts.Deck,
		terminal: opts.Terminal,
		probe:    opts.Probe,
		watcher:  opts.ConfigWatcher,
		version:  opts.Version,
		output:   opts.Output,
		log:      opts.Logger,
		keys:     defaultKeyMap(),
		search:   NewSearch(),
		commands: NewCommandMenu(opts.QuickCommands),
		input:    ti,
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.events, h.unsubscribe = h.deck.Subscribe()
	h.setTheme(config.GetTheme())
	return h
}

// Close releases the subscription and watchers. The deck is left running.
func (h *Home) Close() {
	h.cancel()
	h.unsubscribe()
	if h.themeWatcher != nil {
		h.themeWatcher.Close()
	}
}

func (h *Home) Init() tea.Cmd {
	cmds := []tea.Cmd{
		listenForEvents(h.events),
		h.tick(),
		h.checkCLI(),
	}
	if h.watcher != nil {
		cmds = append(cmds, listenForConfig(h.watcher))
	}
	if h.themeWatcher != nil {
		cmds = append(cmds, listenForThemeChange(h.themeWatcher))
	}
	return tea.Batch(cmds...)
}

func listenForEvents(events <-chan deck.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return deckClosedMsg{}
		}
		return deckEventMsg(ev)
	}
}

func listenForConfig(w *config.Watcher) tea.Cmd {
	return func() tea.Msg {
		cfg, ok := <-w.Changes()
		if !ok {
			return nil
		}
		return configChangedMsg{cfg: cfg}
	}
}

func (h *Home) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (h *Home) checkCLI() tea.Cmd {
	probe := h.probe
	parent := h.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, cliTimeout)
		defer cancel()
		return cliStatusMsg(probe.Check(ctx))
	}
}

func (h *Home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h.width = msg.Width
		h.height = msg.Height
		h.search.SetSize(msg.Width, msg.Height)
		h.commands.SetSize(msg.Width, msg.Height)
		h.input.Width = min(50, max(msg.Width-20, 10))
		return h, nil

	case deckEventMsg:
		return h, tea.Batch(h.handleDeckEvent(deck.Event(msg)), listenForEvents(h.events))

	case deckClosedMsg:
		return h, nil

	case tickMsg:
		return h, h.tick()

	case cliStatusMsg:
		h.cliStatus = topic.CLIStatus(msg)
		h.cliChecked = true
		return h, nil

	case configChangedMsg:
		return h, tea.Batch(h.applyConfig(), listenForConfig(h.watcher))

	case themeChangedMsg:
		if h.themeWatcher == nil {
			return h, nil
		}
		InitTheme(msg.theme)
		return h, listenForThemeChange(h.themeWatcher)

	case attachDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, pty.ErrExited) {
			return h, h.setError(fmt.Sprintf("attach: %v", msg.err))
		}
		return h, nil

	case copyDoneMsg:
		if msg.err != nil {
			return h, h.setError(fmt.Sprintf("copy logs: %v", msg.err))
		}
		return h, h.setStatus(fmt.Sprintf("Copied %d lines of debug logs (%s)", msg.result.LineCount, msg.result.Method))

	case clearStatusMsg:
		if msg.seq == h.statusSeq {
			h.status = ""
			h.statusErr = false
		}
		return h, nil

	case tea.KeyMsg:
		return h.handleKey(msg)
	}
	return h, nil
}

func (h *Home) handleDeckEvent(ev deck.Event) tea.Cmd {
	switch ev.Type {
	case deck.EventSessionCreated, deck.EventSessionClosed, deck.EventSessionRenamed, deck.EventTopic:
		if h.search.IsVisible() {
			h.search.SetItems(h.deck.Sessions())
		}
	case deck.EventRefreshDone:
		h.refreshing = false
		return h.setStatus("Topics refreshed")
	case deck.EventSessionEnded:
		return h.setStatus(fmt.Sprintf("%s: shell exited", ev.Title))
	}
	return nil
}

func (h *Home) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if h.search.IsVisible() {
		picked, cmd := h.search.Update(msg)
		if picked {
			if s, ok := h.search.Selected(); ok {
				if err := h.deck.SetActive(s.ID); err != nil {
					return h, h.setError(err.Error())
				}
			}
		}
		return h, cmd
	}
	if h.commands.IsVisible() {
		if h.commands.Update(msg) {
			if c, ok := h.commands.Selected(); ok {
				return h, h.sendQuickCommand(c)
			}
		}
		return h, nil
	}
	if h.mode != modeNormal {
		return h.handleInputKey(msg)
	}
	if h.showHelp {
		h.showHelp = false
		return h, nil
	}

	switch {
	case key.Matches(msg, h.keys.Quit):
		return h, tea.Quit

	case key.Matches(msg, h.keys.New):
		return h, h.createTab(session.CreateOptions{})

	case key.Matches(msg, h.keys.Claude):
		cwd, _ := os.Getwd()
		h.openInput(modeNewDir, cwd, "directory for "+h.probe.Command())
		return h, textinput.Blink

	case key.Matches(msg, h.keys.Close):
		if s, ok := h.deck.Active(); ok {
			if err := h.deck.CloseSession(s.ID); err != nil {
				return h, h.setError(err.Error())
			}
		}
		return h, nil

	case key.Matches(msg, h.keys.Rename):
		if s, ok := h.deck.Active(); ok {
			h.renameID = s.ID
			h.openInput(modeRename, s.Title, "new title")
			return h, textinput.Blink
		}
		return h, nil

	case key.Matches(msg, h.keys.Refresh):
		if len(h.deck.Registry().Unpinned()) == 0 {
			return h, h.setStatus("Every tab has a pinned title")
		}
		h.refreshing = true
		h.deck.RefreshTopicsAsync()
		return h, h.setStatus("Refreshing topics...")

	case key.Matches(msg, h.keys.Next):
		h.deck.Next()
		return h, nil

	case key.Matches(msg, h.keys.Prev):
		h.deck.Prev()
		return h, nil

	case key.Matches(msg, h.keys.Select):
		idx := int(msg.Runes[0] - '1')
		if _, err := h.deck.SelectIndex(idx); err != nil {
			return h, h.setError(fmt.Sprintf("no tab %d", idx+1))
		}
		return h, nil

	case key.Matches(msg, h.keys.Attach):
		return h, h.attachActive()

	case key.Matches(msg, h.keys.Search):
		h.search.SetItems(h.deck.Sessions())
		h.search.Show()
		return h, textinput.Blink

	case key.Matches(msg, h.keys.Command):
		if _, ok := h.deck.Active(); !ok {
			return h, h.setError("no tab to send commands to")
		}
		h.commands.Show()
		return h, nil

	case key.Matches(msg, h.keys.CopyLog):
		return h, h.copyLogs()

	case key.Matches(msg, h.keys.Help):
		h.showHelp = true
		return h, nil
	}
	return h, nil
}

func (h *Home) openInput(mode inputMode, value, placeholder string) {
	h.mode = mode
	h.input.Placeholder = placeholder
	h.input.SetValue(value)
	h.input.CursorEnd()
	h.input.Focus()
}

func (h *Home) closeInput() {
	h.mode = modeNormal
	h.renameID = ""
	h.input.Blur()
	h.input.SetValue("")
}

func (h *Home) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		h.closeInput()
		return h, nil
	case "enter":
		value := strings.TrimSpace(h.input.Value())
		mode, id := h.mode, h.renameID
		h.closeInput()
		switch mode {
		case modeRename:
			if err := h.deck.RenameSession(id, value); err != nil {
				return h, h.setError(err.Error())
			}
			return h, nil
		case modeNewDir:
			dir, err := resolveDir(value)
			if err != nil {
				return h, h.setError(err.Error())
			}
			return h, h.createTab(session.CreateOptions{Cwd: dir, AutoCommand: h.probe.Command()})
		}
		return h, nil
	}

	var cmd tea.Cmd
	h.input, cmd = h.input.Update(msg)
	return h, cmd
}

// resolveDir expands "~" and checks that dir exists. Empty means the
// current directory.
func resolveDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return abs, nil
}

func (h *Home) createTab(opts session.CreateOptions) tea.Cmd {
	s, err := h.deck.CreateSession(opts)
	if err != nil {
		h.log.Warn("ui_create_tab_failed", slog.String("cwd", opts.Cwd), slog.String("error", err.Error()))
		return h.setError(err.Error())
	}
	return h.setStatus("Opened " + s.Title)
}

func (h *Home) attachActive() tea.Cmd {
	s, ok := h.deck.Active()
	if !ok {
		return nil
	}
	if s.Ended {
		return h.setError(s.DisplayTitle() + ": shell has exited")
	}
	if h.terminal == nil {
		return h.setError("attach is not available")
	}
	term, err := h.terminal(s.ID)
	if err != nil {
		return h.setError(err.Error())
	}
	h.log.Debug("ui_attach", slog.String("session_id", s.ID))
	return attach(s.ID, term, h.output)
}

// sendQuickCommand types a preset command line into the active tab.
func (h *Home) sendQuickCommand(command string) tea.Cmd {
	s, ok := h.deck.Active()
	if !ok {
		return h.setError("no tab to send commands to")
	}
	if s.Ended {
		return h.setError(s.DisplayTitle() + ": shell has exited")
	}
	if err := h.deck.SendCommand(s.ID, command); err != nil {
		return h.setError(fmt.Sprintf("send %q: %v", command, err))
	}
	h.log.Debug("ui_quick_command", slog.String("session_id", s.ID), slog.String("command", command))
	return h.setStatus(fmt.Sprintf("Sent %q to %s", command, s.DisplayTitle()))
}

func (h *Home) copyLogs() tea.Cmd {
	version := h.version
	return func() tea.Msg {
		res, err := clipboard.Copy(logging.Report("dontbeterm", version), true)
		return copyDoneMsg{result: res, err: err}
	}
}

// applyConfig pushes a reloaded config into the deck and the theme.
func (h *Home) applyConfig() tea.Cmd {
	h.deck.ApplySettings(config.GetDeckSettings())
	h.deck.StartAutoRefresh(h.ctx, config.GetTopicSection().AutoRefresh())
	h.commands.SetItems(config.GetTerminalSettings().QuickCommands)

	var cmds []tea.Cmd
	if h.setTheme(config.GetTheme()) {
		cmds = append(cmds, listenForThemeChange(h.themeWatcher))
	}
	if cmd := config.GetTopicSettings().Command; cmd != h.probe.Command() {
		h.probe = topic.NewCLIProbe(cmd, nil)
		h.cliChecked = false
		cmds = append(cmds, h.checkCLI())
	}
	if h.watcher != nil && h.watcher.Warning() != "" {
		cmds = append(cmds, h.setError(h.watcher.Warning()))
	} else {
		cmds = append(cmds, h.setStatus("Config reloaded"))
	}
	return tea.Batch(cmds...)
}

// setTheme applies a configured theme, starting the OS watcher for "system".
// It reports whether a new watcher was started.
func (h *Home) setTheme(theme string) bool {
	h.theme = theme
	if theme != "system" {
		if h.themeWatcher != nil {
			h.themeWatcher.Close()
			h.themeWatcher = nil
		}
		InitTheme(theme)
		return false
	}
	InitTheme(config.ResolveTheme())
	if h.themeWatcher != nil {
		return false
	}
	h.themeWatcher = NewThemeWatcher(h.ctx, h.log)
	return h.themeWatcher != nil
}

func (h *Home) setStatus(s string) tea.Cmd {
	return h.flash(s, false)
}

func (h *Home) setError(s string) tea.Cmd {
	h.log.Debug("ui_error", slog.String("message", s))
	return h.flash(s, true)
}

func (h *Home) flash(s string, isErr bool) tea.Cmd {
	h.statusSeq++
	h.status = s
	h.statusErr = isErr
	seq := h.statusSeq
	return tea.Tick(statusTimeout, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func (h *Home) View() string {
	if h.width == 0 || h.height == 0 {
		return "Loading..."
	}
	themeMu.RLock()
	defer themeMu.RUnlock()

	if h.search.IsVisible() {
		return h.search.View()
	}
	if h.commands.IsVisible() {
		target := ""
		if s, ok := h.deck.Active(); ok {
			target = s.DisplayTitle()
		}
		return h.commands.View(target)
	}
	if h.showHelp {
		return centerInScreen(overlayBox(h.helpView(), h.width), h.width, h.height)
	}

	header := h.headerView()
	footer := h.footerView()
	bodyHeight := max(h.height-lipgloss.Height(header)-lipgloss.Height(footer), 3)

	listWidth := min(max(h.width/3, minListWidth), maxListWidth)
	previewWidth := max(h.width-listWidth, 10)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		h.listView(listWidth, bodyHeight),
		h.previewView(previewWidth, bodyHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (h *Home) headerView() string {
	title := TitleStyle.Render("DontBeTerm")
	count := DimStyle.Render(fmt.Sprintf(" %d tabs ", h.deck.Registry().Len()))

	var cli string
	switch {
	case !h.cliChecked:
		cli = DimStyle.Render(h.probe.Command() + ": checking")
	case h.cliStatus.Available:
		cli = SuccessStyle.Render("● ") + DimStyle.Render(h.probe.Command()+" "+h.cliStatus.Version)
	default:
		cli = ErrorStyle.Render("● ") + DimStyle.Render(h.probe.Command()+" unavailable, labels use heuristics")
	}

	left := title + count
	gap := max(h.width-lipgloss.Width(left)-lipgloss.Width(cli), 1)
	return left + strings.Repeat(" ", gap) + cli
}

func (h *Home) listView(width, height int) string {
	inner := max(width-2, 4)
	active, _ := h.deck.Active()

	var lines []string
	for i, s := range h.deck.Sessions() {
		if len(lines) >= height-2 {
			break
		}
		lines = append(lines, h.tabLine(i, s, s.ID == active.ID, inner))
	}
	if len(lines) == 0 {
		lines = append(lines, DimStyle.Render(" no tabs, press n"))
	}
	return ListPanelStyle.Width(inner).Height(height - 2).Render(strings.Join(lines, "\n"))
}

func (h *Home) tabLine(i int, s session.Session, selected bool, width int) string {
	index := " "
	if i < 9 {
		index = fmt.Sprintf("%d", i+1)
	}

	var suffix string
	if h.deck.Analyzing(s.ID) {
		suffix = " " + IconAnalyzing + " " + AnalyzingMarker
	} else if s.ManuallyRenamed() {
		suffix = " " + IconPinned
	}

	// index, space, padding
	avail := max(width-3-runewidth.StringWidth(suffix), 1)
	title := runewidth.Truncate(s.DisplayTitle(), avail, "…")
	title = runewidth.FillRight(title, avail)

	switch {
	case selected:
		return TabSelectedStyle.Width(width).Render(index + " " + title + suffix)
	case s.Ended:
		return TabEndedStyle.Render(TabIndexStyle.Render(index) + " " + title)
	}
	styledSuffix := suffix
	if h.deck.Analyzing(s.ID) {
		styledSuffix = AnalyzingStyle.Render(suffix)
	} else if suffix != "" {
		styledSuffix = TabPinStyle.Render(suffix)
	}
	return TabStyle.Render(TabIndexStyle.Render(index) + " " + title + styledSuffix)
}

func (h *Home) previewView(width, height int) string {
	inner := max(width-4, 4)
	rows := max(height-2, 1)

	s, ok := h.deck.Active()
	if !ok {
		return PreviewPanelStyle.Width(inner).Height(rows).Render("")
	}

	head := []string{PreviewTitleStyle.Render(runewidth.Truncate(s.DisplayTitle(), inner, "…"))}
	meta := "auto title"
	if s.ManuallyRenamed() {
		meta = "pinned title"
	}
	if s.Cwd != "" {
		meta += " · " + s.Cwd
	}
	if s.AutoCommand != "" {
		meta += " · " + s.AutoCommand
	}
	head = append(head, PreviewMetaStyle.Render(runewidth.Truncate(meta, inner, "…")), "")

	text, err := h.deck.Preview(s.ID, previewBytes)
	if err != nil {
		text = ""
	}
	content := previewLines(text, inner, rows-len(head))
	return PreviewPanelStyle.Width(inner).Height(rows).
		Render(strings.Join(head, "\n") + "\n" + PreviewContentStyle.Render(strings.Join(content, "\n")))
}

// previewLines returns the last n non-trailing-blank lines of text, each
// truncated to width cells.
func previewLines(text string, width, n int) []string {
	if n <= 0 {
		return nil
	}
	lines := strings.Split(strings.TrimRight(text, "\n "), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		l = strings.ReplaceAll(l, "\t", "    ")
		lines[i] = runewidth.Truncate(l, width, "")
	}
	return lines
}

func (h *Home) footerView() string {
	var parts []string
	switch h.mode {
	case modeRename:
		parts = append(parts, OverlayTitleStyle.Render(" Rename: ")+h.input.View())
	case modeNewDir:
		parts = append(parts, OverlayTitleStyle.Render(" New "+h.probe.Command()+" tab in: ")+h.input.View())
	}
	if h.status != "" {
		style := InfoStyle
		if h.statusErr {
			style = ErrorStyle
		}
		parts = append(parts, " "+style.Render(runewidth.Truncate(h.status, max(h.width-2, 1), "…")))
	} else if h.refreshing {
		parts = append(parts, " "+AnalyzingStyle.Render(AnalyzingMarker))
	}
	parts = append(parts, h.keys.menuView(h.width))
	return strings.Join(parts, "\n")
}

func (h *Home) helpView() string {
	var b strings.Builder
	b.WriteString(OverlayTitleStyle.Render("Keys"))
	b.WriteString("\n\n")
	for _, binding := range h.keys.fullHelp() {
		help := binding.Help()
		b.WriteString(MenuKeyStyle.UnsetBackground().Render(runewidth.FillRight(help.Key, 12)))
		b.WriteString(help.Desc)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("press any key to close"))
	return b.String()
}
