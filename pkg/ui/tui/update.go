package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"twarchive/internal/downloader"
	"twarchive/pkg/syncer"
)

// Message types for the TUI

// AccountStartedMsg is sent when an account's sync begins
type AccountStartedMsg struct {
	Account string
}

// PostsFetchedMsg carries the running count of fetched posts
type PostsFetchedMsg struct {
	Account string
	Fetched int
}

// MediaQueuedMsg is sent when an account's downloads are queued
type MediaQueuedMsg struct {
	Account string
	Total   int
}

// MediaFinishedMsg is sent for every finished media item
type MediaFinishedMsg struct {
	Account string
	Result  downloader.Result
}

// AccountFinishedMsg carries an account's final report
type AccountFinishedMsg struct {
	Report syncer.AccountReport
}

// RunFinishedMsg is sent once the orchestrator returns
type RunFinishedMsg struct {
	Report *syncer.Report
	Err    error
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case AccountStartedMsg:
		m.StartAccount(msg.Account)
		m.AddLogMessage("INFO", "Syncing @"+msg.Account)
		return m, nil

	case PostsFetchedMsg:
		m.UpdateFetched(msg.Account, msg.Fetched)
		return m, nil

	case MediaQueuedMsg:
		m.QueueMedia(msg.Account, msg.Total)
		item := m.accounts[msg.Account]
		m.AddLogMessage("INFO", fmt.Sprintf("@%s: %d posts fetched, %d media queued", msg.Account, item.Fetched, msg.Total))
		return m, nil

	case MediaFinishedMsg:
		m.FinishMedia(msg.Account, msg.Result)
		if msg.Result.Failed() {
			m.AddLogMessage("ERROR", fmt.Sprintf("@%s: %d/%d failed - %v", msg.Account, msg.Result.Job.PostID, msg.Result.Job.Slot, msg.Result.Err))
		}
		return m, nil

	case AccountFinishedMsg:
		m.FinishAccount(msg.Report)
		level := "SUCCESS"
		switch msg.Report.Outcome {
		case syncer.OutcomePartial:
			level = "WARN"
		case syncer.OutcomeFailed:
			level = "ERROR"
		}
		m.AddLogMessage(level, "@"+msg.Report.Account+": "+msg.Report.Summary())
		return m, nil

	case RunFinishedMsg:
		m.FinishRun(msg.Report, msg.Err)
		if msg.Err != nil {
			m.AddLogMessage("ERROR", "Run failed: "+msg.Err.Error())
		} else {
			m.AddLogMessage("INFO", "Run finished, press q to exit")
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if !m.finished && m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = []LogMessage{}
		return m, nil
	}

	return m, nil
}

// Commands

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
