package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/dontbeterm/dontbeterm/internal/session"
)

const maxSearchResults = 10

// tabSource adapts a tab list to fuzzy.Source.
type tabSource []session.Session

func (s tabSource) String(i int) string {
	return s[i].DisplayTitle()
}

func (s tabSource) Len() int {
	return len(s)
}

// filterTabs returns tabs matching query, best match first.
func filterTabs(tabs []session.Session, query string) []session.Session {
	if strings.TrimSpace(query) == "" {
		return tabs
	}
	matches := fuzzy.FindFrom(query, tabSource(tabs))
	out := make([]session.Session, 0, len(matches))
	for _, m := range matches {
		out = append(out, tabs[m.Index])
	}
	return out
}

// Search is the tab search overlay.
type Search struct {
	input   textinput.Model
	all     []session.Session
	results []session.Session
	cursor  int
	width   int
	height  int
	visible bool
}

// NewSearch creates a hidden search overlay.
func NewSearch() *Search {
	ti := textinput.New()
	ti.Placeholder = "Search tabs..."
	ti.CharLimit = 100
	ti.Width = 40
	return &Search{input: ti}
}

// SetItems replaces the tabs being searched.
func (s *Search) SetItems(tabs []session.Session) {
	s.all = tabs
	s.updateResults()
}

// SetSize sets the dimensions of the overlay
func (s *Search) SetSize(width, height int) {
	s.width = width
	s.height = height
}

// Show opens the overlay with an empty query.
func (s *Search) Show() {
	s.visible = true
	s.input.SetValue("")
	s.input.Focus()
	s.updateResults()
}

// Hide closes the overlay.
func (s *Search) Hide() {
	s.visible = false
	s.input.Blur()
}

// IsVisible returns whether the overlay is shown.
func (s *Search) IsVisible() bool {
	return s.visible
}

// Selected returns the highlighted tab.
func (s *Search) Selected() (session.Session, bool) {
	if len(s.results) == 0 {
		return session.Session{}, false
	}
	if s.cursor >= len(s.results) {
		s.cursor = len(s.results) - 1
	}
	return s.results[s.cursor], true
}

// Update handles keys while the overlay is visible. picked is true when
// enter chose a tab; the overlay hides itself on enter and esc.
func (s *Search) Update(msg tea.Msg) (picked bool, cmd tea.Cmd) {
	if !s.visible {
		return false, nil
	}
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return false, nil
	}

	switch keyMsg.String() {
	case "esc":
		s.Hide()
		return false, nil
	case "enter":
		s.Hide()
		return len(s.results) > 0, nil
	case "up", "ctrl+k":
		if s.cursor > 0 {
			s.cursor--
		}
		return false, nil
	case "down", "ctrl+j":
		if s.cursor < len(s.results)-1 {
			s.cursor++
		}
		return false, nil
	}

	s.input, cmd = s.input.Update(msg)
	s.updateResults()
	return false, cmd
}

func (s *Search) updateResults() {
	s.results = filterTabs(s.all, s.input.Value())
	s.cursor = 0
}

// View renders the overlay
func (s *Search) View() string {
	if !s.visible {
		return ""
	}

	var b strings.Builder
	b.WriteString(OverlayTitleStyle.Render("Search tabs"))
	b.WriteString("\n\n")
	b.WriteString(SearchBoxStyle.Render(s.input.View()))
	b.WriteString("\n\n")

	shown := s.results
	if len(shown) > maxSearchResults {
		shown = shown[:maxSearchResults]
	}
	for i, tab := range shown {
		if i == s.cursor {
			b.WriteString(ResultSelectedStyle.Render("› " + tab.DisplayTitle()))
		} else {
			b.WriteString(ResultItemStyle.Render("  " + tab.DisplayTitle()))
		}
		b.WriteString("\n")
	}
	b.WriteString(DimStyle.Render("  " + formatCount(len(s.results))))
	b.WriteString("\n")
	b.WriteString(DimStyle.Render("  [Enter] Select  [↑↓] Navigate  [Esc] Cancel"))

	return centerInScreen(overlayBox(b.String(), s.width), s.width, s.height)
}

func formatCount(count int) string {
	switch count {
	case 0:
		return "No results"
	case 1:
		return "1 result"
	default:
		return fmt.Sprintf("%d results", count)
	}
}

// overlayBox wraps content in the overlay border, narrowing it on small screens.
func overlayBox(content string, screenWidth int) string {
	w := 60
	if screenWidth > 0 && screenWidth < w+10 {
		w = max(screenWidth-10, 30)
	}
	return OverlayStyle.Width(w).Render(content)
}

// centerInScreen centers content in the terminal
func centerInScreen(content string, screenWidth, screenHeight int) string {
	if screenWidth <= 0 || screenHeight <= 0 {
		return content
	}
	return lipgloss.Place(screenWidth, screenHeight, lipgloss.Center, lipgloss.Center, content)
}
