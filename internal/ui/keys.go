package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	New     key.Binding
	Claude  key.Binding
	Close   key.Binding
	Rename  key.Binding
	Refresh key.Binding
	Next    key.Binding
	Prev    key.Binding
	Select  key.Binding
	Attach  key.Binding
	Search  key.Binding
	Command key.Binding
	CopyLog key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new shell"),
		),
		Claude: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "claude in dir"),
		),
		Close: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "close"),
		),
		Rename: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rename"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "refresh topics"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab", "down", "j"),
			key.WithHelp("tab", "next"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "up", "k"),
			key.WithHelp("shift+tab", "prev"),
		),
		Select: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("1-9", "select"),
		),
		Attach: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "attach (ctrl+q detaches)"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Command: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "commands menu"),
		),
		CopyLog: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy debug logs"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// shortHelp is what fits in the menu bar.
func (k keyMap) shortHelp() []key.Binding {
	return []key.Binding{k.Attach, k.New, k.Claude, k.Rename, k.Refresh, k.Command, k.Search, k.Help, k.Quit}
}

func (k keyMap) fullHelp() []key.Binding {
	return []key.Binding{
		k.Attach, k.New, k.Claude, k.Close, k.Rename, k.Refresh,
		k.Next, k.Prev, k.Select, k.Command, k.Search, k.CopyLog, k.Help, k.Quit,
	}
}

// menuView renders the bottom menu bar.
func (k keyMap) menuView(width int) string {
	items := make([]string, 0, len(k.shortHelp()))
	for _, b := range k.shortHelp() {
		h := b.Help()
		items = append(items, MenuKey(h.Key, firstWord(h.Desc)))
	}
	return MenuStyle.Width(width).Render(strings.Join(items, MenuSeparatorStyle.Render(" │ ")))
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
