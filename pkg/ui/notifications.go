package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"twarchive/pkg/syncer"
)

const appName = "twarchive"

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name", appName, title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("%s").Show($toast)
	`, title, message, appName)

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// Notifier prints a message and mirrors it as a desktop notification
type Notifier struct {
	sender NotificationSender
	out    io.Writer
}

// NewNotifier creates a Notifier for the current platform. Unsupported
// platforms only print.
func NewNotifier() *Notifier {
	var sender NotificationSender

	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	case "windows":
		sender = &WindowsNotificationSender{}
	}

	return NewNotifierWith(sender, os.Stdout)
}

// NewNotifierWith creates a Notifier with an explicit sender and console writer.
// A nil sender disables desktop notifications.
func NewNotifierWith(sender NotificationSender, out io.Writer) *Notifier {
	if out == nil {
		out = io.Discard
	}
	return &Notifier{sender: sender, out: out}
}

// SendNotification sends an informational notification
func (n *Notifier) SendNotification(title, message string) {
	n.emit(Cyan(title), Yellow(message), title, message)
}

// SendError sends an error notification
func (n *Notifier) SendError(title, message string) {
	n.emit(Red(title), Red(message), title, message)
}

// SendSuccess sends a success notification
func (n *Notifier) SendSuccess(title, message string) {
	n.emit(Green(title), Green(message), title, message)
}

// NotifyReport announces the end of a sync run
func (n *Notifier) NotifyReport(report *syncer.Report) {
	title, message := ReportNotification(report)
	switch report.ExitCode() {
	case syncer.ExitSuccess:
		n.SendSuccess(title, message)
	case syncer.ExitPartial:
		n.SendNotification(title, message)
	default:
		n.SendError(title, message)
	}
}

func (n *Notifier) emit(coloredTitle, coloredMessage, title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", coloredTitle, coloredMessage)

	if n.sender != nil {
		// notifications are best effort
		_ = n.sender.Send(title, message)
	}
}

// ReportNotification builds the title and one-line body for a finished run
func ReportNotification(report *syncer.Report) (title, message string) {
	success, partial, failed := report.Counts()

	switch report.ExitCode() {
	case syncer.ExitSuccess:
		title = "Sync complete"
	case syncer.ExitPartial:
		title = "Sync finished with problems"
	default:
		title = "Sync failed"
	}

	var downloaded, newPosts int
	for _, a := range report.Accounts {
		downloaded += a.Downloaded
		newPosts += a.NewPosts
	}

	parts := []string{fmt.Sprintf("%d ok", success)}
	if partial > 0 {
		parts = append(parts, fmt.Sprintf("%d partial", partial))
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	message = fmt.Sprintf("%s; %d new posts, %d media downloaded", strings.Join(parts, ", "), newPosts, downloaded)
	if report.Fatal != nil {
		message += "; run aborted"
	}
	return title, message
}
