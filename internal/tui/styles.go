package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Rampart palette
var (
	ColorAccent = lipgloss.Color("#F4A261") // amber, titles and focus
	ColorDeep   = lipgloss.Color("#596E79") // secondary text and borders
	ColorDark   = lipgloss.Color("#2C3E50")
	ColorText   = lipgloss.Color("#E0E0E0")
	ColorAlert  = lipgloss.Color("#FF6B6B") // blocked, errors
	ColorGood   = lipgloss.Color("#4ECDC4") // allowed, success
	ColorWarn   = lipgloss.Color("#FFE66D") // challenged, warnings
	ColorMuted  = lipgloss.Color("#6c757d")
)

var (
	StyleBase = lipgloss.NewStyle().Foreground(ColorText)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDeep).
			Padding(0, 1)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	StyleSubtitle = lipgloss.NewStyle().
			Foreground(ColorDeep).
			Italic(true)

	StyleStatusGood = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(ColorAlert).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDeep).
			Padding(0, 1).
			Margin(0, 1)

	StyleDialog = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(1, 2)

	StyleFieldError = lipgloss.NewStyle().Foreground(ColorAlert)

	StyleApp = lipgloss.NewStyle().Margin(1, 2)

	StyleTopBar = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorDeep).
			Padding(0, 1).
			MarginBottom(1)

	StyleBreadcrumb = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleMenuItem = lipgloss.NewStyle().
			Foreground(ColorDeep).
			Padding(0, 1)

	StyleMenuItemActive = lipgloss.NewStyle().
				Foreground(ColorDark).
				Background(ColorAccent).
				Bold(true).
				Padding(0, 1)

	StyleMenuKey = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Faint(true)

	StyleHelp = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleToastGood = lipgloss.NewStyle().
			Foreground(ColorDark).
			Background(ColorGood).
			Padding(0, 1)

	StyleToastBad = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorAlert).
			Padding(0, 1)
)

// tableStyles are shared by every list view.
func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorDeep).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorAccent).
		Background(ColorDeep).
		Bold(false)
	return s
}

// actionStyle colors a WAF action.
func actionStyle(action string) lipgloss.Style {
	switch action {
	case "block", "blocked", "deny":
		return StyleStatusBad
	case "challenge":
		return StyleStatusWarn
	default:
		return StyleStatusGood
	}
}
