package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

var currentTheme Theme = ThemeDark

type palette struct {
	Bg, Surface, Border, Text, TextDim  lipgloss.Color
	Accent, Purple, Cyan, Green, Yellow lipgloss.Color
	Orange, Red                         lipgloss.Color
}

// Dark Theme - Tokyo Night
var darkColors = palette{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Purple:  lipgloss.Color("#bb9af7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Orange:  lipgloss.Color("#ff9e64"),
	Red:     lipgloss.Color("#f7768e"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = palette{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Purple:  lipgloss.Color("#7847bd"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Orange:  lipgloss.Color("#965027"),
	Red:     lipgloss.Color("#8c4351"),
}

// Active color variables (set by InitTheme)
var (
	ColorBg      lipgloss.Color
	ColorSurface lipgloss.Color
	ColorBorder  lipgloss.Color
	ColorText    lipgloss.Color
	ColorTextDim lipgloss.Color
	ColorAccent  lipgloss.Color
	ColorPurple  lipgloss.Color
	ColorCyan    lipgloss.Color
	ColorGreen   lipgloss.Color
	ColorYellow  lipgloss.Color
	ColorOrange  lipgloss.Color
	ColorRed     lipgloss.Color
)

// themeMu protects the color and style variables during live theme switches.
var themeMu sync.RWMutex

// InitTheme sets the active color palette. Anything but "light" selects the
// dark palette.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()

	p := darkColors
	currentTheme = ThemeDark
	if theme == string(ThemeLight) {
		p = lightColors
		currentTheme = ThemeLight
	}
	ColorBg = p.Bg
	ColorSurface = p.Surface
	ColorBorder = p.Border
	ColorText = p.Text
	ColorTextDim = p.TextDim
	ColorAccent = p.Accent
	ColorPurple = p.Purple
	ColorCyan = p.Cyan
	ColorGreen = p.Green
	ColorYellow = p.Yellow
	ColorOrange = p.Orange
	ColorRed = p.Red

	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	InitTheme("dark")
}

// Base Styles
var (
	TitleStyle   lipgloss.Style
	DimStyle     lipgloss.Style
	ErrorStyle   lipgloss.Style
	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
)

// Tab list styles
var (
	TabStyle         lipgloss.Style
	TabSelectedStyle lipgloss.Style
	TabIndexStyle    lipgloss.Style
	TabPinStyle      lipgloss.Style
	TabEndedStyle    lipgloss.Style
	AnalyzingStyle   lipgloss.Style
	ListPanelStyle   lipgloss.Style
)

// Preview pane styles
var (
	PreviewPanelStyle   lipgloss.Style
	PreviewTitleStyle   lipgloss.Style
	PreviewMetaStyle    lipgloss.Style
	PreviewContentStyle lipgloss.Style
)

// Menu bar styles
var (
	MenuStyle          lipgloss.Style
	MenuKeyStyle       lipgloss.Style
	MenuDescStyle      lipgloss.Style
	MenuSeparatorStyle lipgloss.Style
)

// Overlay styles (search, rename, new tab, help)
var (
	OverlayStyle        lipgloss.Style
	OverlayTitleStyle   lipgloss.Style
	SearchBoxStyle      lipgloss.Style
	ResultItemStyle     lipgloss.Style
	ResultSelectedStyle lipgloss.Style
)

// Glyphs used in the tab list.
const (
	IconSelected  = "▶"
	IconPinned    = "📌"
	IconAnalyzing = "◐"
)

// AnalyzingMarker is shown next to a tab while its topic is being classified.
const AnalyzingMarker = "analyzing..."

func initStyles() {
	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		Background(ColorSurface).
		Padding(0, 1)

	DimStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(ColorRed).
		Bold(true)

	SuccessStyle = lipgloss.NewStyle().
		Foreground(ColorGreen).
		Bold(true)

	WarningStyle = lipgloss.NewStyle().
		Foreground(ColorYellow).
		Bold(true)

	InfoStyle = lipgloss.NewStyle().
		Foreground(ColorCyan)

	TabStyle = lipgloss.NewStyle().
		Foreground(ColorText).
		PaddingLeft(1)

	TabSelectedStyle = lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorAccent).
		Bold(true).
		PaddingLeft(1)

	TabIndexStyle = lipgloss.NewStyle().
		Foreground(ColorPurple)

	TabPinStyle = lipgloss.NewStyle().
		Foreground(ColorOrange)

	TabEndedStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim).
		Italic(true).
		PaddingLeft(1)

	AnalyzingStyle = lipgloss.NewStyle().
		Foreground(ColorYellow).
		Italic(true)

	ListPanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	PreviewPanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	PreviewTitleStyle = lipgloss.NewStyle().
		Foreground(ColorCyan).
		Bold(true).
		Underline(true)

	PreviewMetaStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	PreviewContentStyle = lipgloss.NewStyle().
		Foreground(ColorText)

	MenuStyle = lipgloss.NewStyle().
		Background(ColorSurface).
		Foreground(ColorText).
		Padding(0, 1)

	MenuKeyStyle = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Background(ColorSurface).
		Bold(true)

	MenuDescStyle = lipgloss.NewStyle().
		Foreground(ColorText).
		Background(ColorSurface)

	MenuSeparatorStyle = lipgloss.NewStyle().
		Foreground(ColorBorder).
		Background(ColorSurface)

	OverlayStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(1, 2)

	OverlayTitleStyle = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true)

	SearchBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(0, 1).
		Foreground(ColorText)

	ResultItemStyle = lipgloss.NewStyle().
		Padding(0, 2)

	ResultSelectedStyle = lipgloss.NewStyle().
		Padding(0, 2).
		Background(ColorAccent).
		Foreground(ColorBg)
}

// MenuKey renders one "key desc" pair of the menu bar.
func MenuKey(key, desc string) string {
	return MenuKeyStyle.Render(key) + MenuDescStyle.Render(" "+desc)
}
