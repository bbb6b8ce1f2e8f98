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

// Dark Theme - Tokyo Night
var darkColors = struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Green, Yellow, Red         lipgloss.Color
}{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Red:     lipgloss.Color("#f7768e"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Green, Yellow, Red         lipgloss.Color
}{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
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
	ColorGreen   lipgloss.Color
	ColorYellow  lipgloss.Color
	ColorRed     lipgloss.Color
)

// Styles rebuilt by InitTheme
var (
	styleTitle      lipgloss.Style
	styleStatusBar  lipgloss.Style
	styleWorking    lipgloss.Style
	styleIdle       lipgloss.Style
	styleTabActive  lipgloss.Style
	styleTab        lipgloss.Style
	styleHint       lipgloss.Style
	stylePaneBorder lipgloss.Style
	stylePicker     lipgloss.Style
	stylePickerSel  lipgloss.Style
)

var themeMu sync.RWMutex

// InitTheme sets the active color palette based on theme name.
// Must be called before any UI rendering.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()

	if theme == "light" {
		currentTheme = ThemeLight
		ColorBg = lightColors.Bg
		ColorSurface = lightColors.Surface
		ColorBorder = lightColors.Border
		ColorText = lightColors.Text
		ColorTextDim = lightColors.TextDim
		ColorAccent = lightColors.Accent
		ColorGreen = lightColors.Green
		ColorYellow = lightColors.Yellow
		ColorRed = lightColors.Red
	} else {
		currentTheme = ThemeDark
		ColorBg = darkColors.Bg
		ColorSurface = darkColors.Surface
		ColorBorder = darkColors.Border
		ColorText = darkColors.Text
		ColorTextDim = darkColors.TextDim
		ColorAccent = darkColors.Accent
		ColorGreen = darkColors.Green
		ColorYellow = darkColors.Yellow
		ColorRed = darkColors.Red
	}

	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	styleStatusBar = lipgloss.NewStyle().Background(ColorSurface).Foreground(ColorText)
	styleWorking = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	styleIdle = lipgloss.NewStyle().Foreground(ColorGreen)
	styleTabActive = lipgloss.NewStyle().Bold(true).Foreground(ColorBg).Background(ColorAccent).Padding(0, 1)
	styleTab = lipgloss.NewStyle().Foreground(ColorTextDim).Padding(0, 1)
	styleHint = lipgloss.NewStyle().Foreground(ColorTextDim)
	stylePaneBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorBorder)
	stylePicker = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorAccent).Padding(0, 1)
	stylePickerSel = lipgloss.NewStyle().Foreground(ColorBg).Background(ColorAccent)
}

// CurrentTheme returns the active theme.
func CurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func init() {
	InitTheme("dark")
}
