package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderLogo())

	// Main content area with two columns
	leftColumn := m.renderLeftColumn()
	rightColumn := m.renderRightColumn()

	mainContent := lipgloss.JoinHorizontal(
		lipgloss.Top,
		leftColumn,
		"  ", // spacing
		rightColumn,
	)
	sections = append(sections, mainContent)

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m Model) renderLogo() string {
	logo := `
╔═══════════════════════════════════════════════╗
║  ▀█▀ █ █ █ ▄▀█ █▀█ █▀▀ █ █ █ █ █ █▀▀           ║
║   █  ▀▄▀▄▀ █▀█ █▀▄ █▄▄ █▀█ █ ▀▄▀ ██▄           ║
║        TIMELINE ARCHIVE SYNC - MEDIA VAULT    ║
╚═══════════════════════════════════════════════╝`

	return logoStyle.Width(m.width).Render(logo)
}

func (m Model) renderLeftColumn() string {
	width := (m.width - 4) / 2

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderAccountsPanel(width),
	)
}

func (m Model) renderRightColumn() string {
	width := (m.width - 4) / 2

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderArchivePanel(width),
		m.renderLogsPanel(width),
	)
}

// renderStatsPanel renders the run totals
func (m Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" SYNC STATS ")

	elapsed := time.Since(m.sessionStartTime)
	var speed float64
	if secs := elapsed.Seconds(); secs > 0 {
		speed = float64(m.totalSize) / secs
	}

	stats := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Session Time:"), valueStyle.Render(formatDuration(elapsed))),
		fmt.Sprintf("%s %s", labelStyle.Render("Accounts:"), valueStyle.Render(fmt.Sprintf("%d/%d done", m.Completed(), len(m.accountOrder)))),
		fmt.Sprintf("%s %s", labelStyle.Render("Downloaded:"), valueStyle.Render(fmt.Sprintf("%d files (%s)", m.totalDownloaded, FormatBytes(m.totalSize)))),
		fmt.Sprintf("%s %s", labelStyle.Render("Already Present:"), valueStyle.Render(fmt.Sprintf("%d files", m.totalSkipped))),
		fmt.Sprintf("%s %s", labelStyle.Render("Average Speed:"), rateStyle.Render(FormatSpeed(speed))),
	}
	if m.totalFailed > 0 {
		stats = append(stats, errorStyle.Render(fmt.Sprintf("✗ %d media failed", m.totalFailed)))
	}
	if m.finished {
		stats = append(stats, m.renderRunResult())
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func (m Model) renderRunResult() string {
	switch {
	case m.runErr != nil:
		return errorStyle.Render("✗ RUN FAILED")
	case m.report == nil:
		return warningStyle.Render("■ STOPPED")
	}
	_, partial, failed := m.report.Counts()
	switch {
	case m.report.Fatal != nil:
		return errorStyle.Render("✗ RUN ABORTED")
	case partial > 0 || failed > 0:
		return warningStyle.Render("! FINISHED WITH PROBLEMS")
	default:
		return successStyle.Render("✓ ALL ACCOUNTS SYNCED")
	}
}

// renderAccountsPanel renders one row per account
func (m Model) renderAccountsPanel(width int) string {
	title := titleStyle.Render(" ACCOUNTS ")

	if len(m.accountOrder) == 0 {
		content := lipgloss.NewStyle().Foreground(mutedText).Render("No accounts")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var rows []string
	for _, name := range m.accountOrder {
		rows = append(rows, m.renderAccountItem(m.accounts[name], width-4))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

func (m Model) renderAccountItem(item *AccountItem, width int) string {
	name := "@" + item.Account

	switch item.State {
	case AccountQueued:
		return rowStyle.Render("⏳ " + name)
	case AccountFetching:
		return rowActiveStyle.Render(fmt.Sprintf("%s %s fetching timeline... %d posts", m.spinner.View(), name, item.Fetched))
	case AccountDownloading:
		info := rowActiveStyle.Render(fmt.Sprintf("%s %s %d/%d media", m.spinner.View(), name, item.MediaDone, item.MediaTotal))
		if item.MediaFailed > 0 {
			info += " " + errorStyle.Render(fmt.Sprintf("%d failed", item.MediaFailed))
		}
		bar := m.progressBars[item.Account]
		bar.Width = width - 4
		if bar.Width < 10 {
			bar.Width = 10
		}
		return lipgloss.JoinVertical(lipgloss.Left, info, rowStyle.Render(bar.ViewAs(item.Percent())))
	case AccountFailed:
		return rowStyle.Render(errorStyle.Render("✗ "+name) + " " + logMessageStyle.Render(item.Summary))
	default:
		style := successStyle
		if item.MediaFailed > 0 {
			style = warningStyle
		}
		return rowDoneStyle.Render(style.Render("✓ "+name) + " " + item.Summary)
	}
}

// renderArchivePanel renders where and what the run archives
func (m Model) renderArchivePanel(width int) string {
	title := titleStyle.Render(" ARCHIVE ")

	kinds := m.options.Kinds
	if kinds == "" {
		kinds = "none"
	}
	content := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Output:"), valueStyle.Render(m.options.OutputDir)),
		fmt.Sprintf("%s %s", labelStyle.Render("Media:"), valueStyle.Render(kinds)),
		fmt.Sprintf("%s %s", labelStyle.Render("Workers:"), valueStyle.Render(fmt.Sprintf("%d", m.options.Workers))),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

// renderLogsPanel renders the logs panel
func (m Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" SYNC LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	maxMsgLen := width - 25
	var logs []string
	for i := start; i < len(m.logMessages); i++ {
		log := m.logMessages[i]
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))

		text := log.Message
		if maxMsgLen > 3 && len(text) > maxMsgLen {
			text = text[:maxMsgLen-3] + "..."
		}

		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, logMessageStyle.Render(text)))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(mutedText).Render("No logs yet...")
	}

	logsHeight := m.height - 20
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m Model) renderHelp() string {
	help := `
  Navigation:
    q/Q      - Quit (cancels a running sync; finished media is kept)
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Status Indicators:
    ` + successStyle.Render("Green") + `    - Synced
    ` + warningStyle.Render("Orange") + `   - Partial, some media failed
    ` + errorStyle.Render("Red") + `      - Failed

  Icons:
    ⏳       - Waiting for a slot
    ✓        - Account synced
    ✗        - Account failed
`

	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
