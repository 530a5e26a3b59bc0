package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	skyBlue    = lipgloss.Color("#1DA1F2")
	accentBlue = lipgloss.Color("#5B7083")
	okGreen    = lipgloss.Color("#17BF63")
	amber      = lipgloss.Color("#FFAD1F")
	warnOrange = lipgloss.Color("#F45D22")
	failRed    = lipgloss.Color("#E0245E")
	inkBg      = lipgloss.Color("#15202B")
	panelBg    = lipgloss.Color("#192734")
	mutedText  = lipgloss.Color("#8899A6")
	faintText  = lipgloss.Color("#5C6E7E")
)

var (
	baseStyle = lipgloss.NewStyle().Background(inkBg).Foreground(mutedText)

	logoStyle = lipgloss.NewStyle().
			Foreground(skyBlue).
			Bold(true).
			Padding(1, 0).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentBlue).
			Background(panelBg).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Foreground(inkBg).
			Background(skyBlue).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(skyBlue)
	valueStyle = lipgloss.NewStyle().Foreground(amber).Bold(true)
	rateStyle  = lipgloss.NewStyle().Foreground(skyBlue).Italic(true)

	successStyle = lipgloss.NewStyle().Foreground(okGreen).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warnOrange).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(failRed).Bold(true)

	// one row per account
	rowStyle       = lipgloss.NewStyle().PaddingLeft(2)
	rowActiveStyle = rowStyle.Foreground(okGreen).Bold(true)
	rowDoneStyle   = rowStyle.Foreground(mutedText)

	logTimestampStyle = lipgloss.NewStyle().Foreground(faintText)
	logMessageStyle   = lipgloss.NewStyle().Foreground(mutedText)

	helpStyle = lipgloss.NewStyle().Foreground(faintText).Padding(1, 0, 0, 2)
)
