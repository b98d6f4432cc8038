package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
)

// CommandMenu is the quick-command overlay: a short list of preset command
// lines, one of which is typed into the active tab.
type CommandMenu struct {
	items   []string
	cursor  int
	width   int
	height  int
	visible bool
}

// NewCommandMenu creates a hidden menu.
func NewCommandMenu(items []string) *CommandMenu {
	m := &CommandMenu{}
	m.SetItems(items)
	return m
}

// SetItems replaces the presets.
func (m *CommandMenu) SetItems(items []string) {
	m.items = append([]string(nil), items...)
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
}

// Items returns the presets in menu order.
func (m *CommandMenu) Items() []string {
	return m.items
}

func (m *CommandMenu) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Show opens the menu on the first entry.
func (m *CommandMenu) Show() {
	m.visible = true
	m.cursor = 0
}

func (m *CommandMenu) Hide() {
	m.visible = false
}

func (m *CommandMenu) IsVisible() bool {
	return m.visible
}

// Selected returns the highlighted command.
func (m *CommandMenu) Selected() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return "", false
	}
	return m.items[m.cursor], true
}

// Update handles keys while the menu is visible. picked is true when enter
// or a digit chose a command; the menu hides itself then and on esc.
func (m *CommandMenu) Update(msg tea.KeyMsg) (picked bool) {
	if !m.visible {
		return false
	}
	switch k := msg.String(); k {
	case "esc", "q":
		m.Hide()
	case "enter":
		m.Hide()
		return len(m.items) > 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if i := int(k[0] - '1'); i < len(m.items) {
			m.cursor = i
			m.Hide()
			return true
		}
	}
	return false
}

func (m *CommandMenu) View(target string) string {
	if !m.visible {
		return ""
	}

	var b strings.Builder
	b.WriteString(OverlayTitleStyle.Render("Commands"))
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("sent to " + runewidth.Truncate(target, 40, "…")))
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(DimStyle.Render("  no commands configured"))
		b.WriteString("\n")
	}
	for i, c := range m.items {
		index := " "
		if i < 9 {
			index = fmt.Sprintf("%d", i+1)
		}
		if i == m.cursor {
			b.WriteString(ResultSelectedStyle.Render("› " + index + " " + c))
		} else {
			b.WriteString(ResultItemStyle.Render("  " + index + " " + c))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("  [Enter/1-9] Send  [↑↓] Navigate  [Esc] Cancel"))

	return centerInScreen(overlayBox(b.String(), m.width), m.width, m.height)
}
