package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"twarchive/internal/downloader"
	"twarchive/pkg/syncer"
)

var _ syncer.Observer = (*TUI)(nil)

// TUI renders a sync run full screen and doubles as its progress observer
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a new TUI instance. onQuit is called when the user quits
// before the run finished; callers use it to cancel the run.
func NewTUI(opts Options, onQuit func()) *TUI {
	model := NewModel(opts)
	model.onQuit = onQuit
	program := tea.NewProgram(&model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   &model,
	}
}

// Start runs the TUI until the user quits
func (t *TUI) Start() error {
	go t.program.Send(TickMsg{})

	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) AccountStarted(account string) {
	t.Send(AccountStartedMsg{Account: account})
}

func (t *TUI) PostsFetched(account string, fetched int) {
	t.Send(PostsFetchedMsg{Account: account, Fetched: fetched})
}

func (t *TUI) MediaQueued(account string, total int) {
	t.Send(MediaQueuedMsg{Account: account, Total: total})
}

func (t *TUI) MediaFinished(account string, res downloader.Result) {
	t.Send(MediaFinishedMsg{Account: account, Result: res})
}

func (t *TUI) AccountFinished(report syncer.AccountReport) {
	t.Send(AccountFinishedMsg{Report: report})
}

// Finish shows the run's final state
func (t *TUI) Finish(report *syncer.Report, err error) {
	t.Send(RunFinishedMsg{Report: report, Err: err})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
