package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"twarchive/internal/downloader"
	"twarchive/pkg/syncer"
)

// AccountState is where an account is in its sync
type AccountState int

const (
	AccountQueued AccountState = iota
	AccountFetching
	AccountDownloading
	AccountDone
	AccountFailed
)

func (s AccountState) String() string {
	switch s {
	case AccountQueued:
		return "queued"
	case AccountFetching:
		return "fetching"
	case AccountDownloading:
		return "downloading"
	case AccountDone:
		return "done"
	case AccountFailed:
		return "failed"
	default:
		return fmt.Sprintf("AccountState(%d)", int(s))
	}
}

// AccountItem is the live view of one account
type AccountItem struct {
	Account      string
	State        AccountState
	Fetched      int
	MediaTotal   int
	MediaDone    int
	MediaFailed  int
	MediaSkipped int
	Bytes        int64
	StartTime    time.Time
	Summary      string
}

// Percent returns the share of queued media that has finished
func (a *AccountItem) Percent() float64 {
	if a.MediaTotal == 0 {
		if a.State == AccountDone {
			return 1
		}
		return 0
	}
	p := float64(a.MediaDone) / float64(a.MediaTotal)
	if p > 1 {
		p = 1
	}
	return p
}

// Options describes the run shown by the TUI
type Options struct {
	Accounts  []string
	OutputDir string
	Kinds     string
	Workers   int
}

// Model represents the TUI model. It is only mutated from Update, so it
// needs no locking.
type Model struct {
	// UI components
	spinner      spinner.Model
	progressBars map[string]progress.Model

	// Sync state
	accounts     map[string]*AccountItem
	accountOrder []string
	options      Options

	// Stats
	totalDownloaded  int
	totalSkipped     int
	totalFailed      int
	totalSize        int64
	sessionStartTime time.Time

	// Run completion
	finished bool
	report   *syncer.Report
	runErr   error
	onQuit   func()

	// UI state
	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model with every account queued
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(skyBlue)

	m := Model{
		spinner:          s,
		progressBars:     make(map[string]progress.Model),
		accounts:         make(map[string]*AccountItem),
		options:          opts,
		sessionStartTime: time.Now(),
		logMessages:      []LogMessage{},
		maxLogMessages:   50,
	}
	for _, account := range opts.Accounts {
		m.account(account)
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// account returns the item for name, registering it on first sight
func (m *Model) account(name string) *AccountItem {
	if item, ok := m.accounts[name]; ok {
		return item
	}
	item := &AccountItem{Account: name, State: AccountQueued}
	m.accounts[name] = item
	m.accountOrder = append(m.accountOrder, name)

	p := progress.New(progress.WithGradient(string(accentBlue), string(skyBlue)))
	p.Width = 40
	m.progressBars[name] = p
	return item
}

// StartAccount marks an account as fetching its timeline
func (m *Model) StartAccount(name string) {
	item := m.account(name)
	item.State = AccountFetching
	item.StartTime = time.Now()
}

// UpdateFetched records the running count of fetched posts
func (m *Model) UpdateFetched(name string, fetched int) {
	m.account(name).Fetched = fetched
}

// QueueMedia moves an account to its download phase
func (m *Model) QueueMedia(name string, total int) {
	item := m.account(name)
	item.State = AccountDownloading
	item.MediaTotal = total
}

// FinishMedia records one finished media item
func (m *Model) FinishMedia(name string, res downloader.Result) {
	item := m.account(name)
	item.MediaDone++

	switch {
	case res.Failed():
		item.MediaFailed++
		m.totalFailed++
	case res.Skipped:
		item.MediaSkipped++
		m.totalSkipped++
	case res.Err == nil:
		item.Bytes += res.Size
		m.totalDownloaded++
		m.totalSize += res.Size
	}
}

// FinishAccount applies an account's final report
func (m *Model) FinishAccount(report syncer.AccountReport) {
	item := m.account(report.Account)
	item.Summary = report.Summary()
	if report.Outcome == syncer.OutcomeFailed {
		item.State = AccountFailed
	} else {
		item.State = AccountDone
	}
}

// FinishRun marks the whole run as over
func (m *Model) FinishRun(report *syncer.Report, err error) {
	m.finished = true
	m.report = report
	m.runErr = err
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := mutedText
	switch level {
	case "ERROR":
		color = failRed
	case "WARN":
		color = warnOrange
	case "SUCCESS":
		color = okGreen
	case "INFO":
		color = skyBlue
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Accounts returns the account items in display order
func (m *Model) Accounts() []*AccountItem {
	items := make([]*AccountItem, 0, len(m.accountOrder))
	for _, name := range m.accountOrder {
		items = append(items, m.accounts[name])
	}
	return items
}

// Completed returns how many accounts reached a final state
func (m *Model) Completed() int {
	n := 0
	for _, item := range m.accounts {
		if item.State == AccountDone || item.State == AccountFailed {
			n++
		}
	}
	return n
}

// Finished reports whether the run is over
func (m *Model) Finished() bool {
	return m.finished
}

// FormatBytes formats bytes to human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed formats speed in bytes per second
func FormatSpeed(bytesPerSecond float64) string {
	return fmt.Sprintf("%s/s", FormatBytes(int64(bytesPerSecond)))
}
