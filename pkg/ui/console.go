package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"twarchive/internal/downloader"
	"twarchive/pkg/syncer"
)

type accountProgress struct {
	fetched    int
	queued     int
	finished   int
	failed     int
	bytes      int64
	lastReport time.Time
}

var _ syncer.Observer = (*ConsoleObserver)(nil)

// ConsoleObserver prints sync progress as plain lines. It is safe for
// concurrent use by several accounts.
type ConsoleObserver struct {
	mu       sync.Mutex
	out      io.Writer
	verbose  bool
	interval time.Duration
	accounts map[string]*accountProgress
}

// NewConsoleObserver creates an observer writing to out. In verbose mode
// every media item is reported, otherwise progress is throttled.
func NewConsoleObserver(out io.Writer, verbose bool) *ConsoleObserver {
	return &ConsoleObserver{
		out:      out,
		verbose:  verbose,
		interval: 2 * time.Second,
		accounts: make(map[string]*accountProgress),
	}
}

func (c *ConsoleObserver) progress(account string) *accountProgress {
	p, ok := c.accounts[account]
	if !ok {
		p = &accountProgress{}
		c.accounts[account] = p
	}
	return p
}

func (c *ConsoleObserver) AccountStarted(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accounts[account] = &accountProgress{lastReport: time.Now()}
	fmt.Fprintf(c.out, "%s @%s syncing\n", Cyan("→"), account)
}

func (c *ConsoleObserver) PostsFetched(account string, fetched int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.progress(account).fetched = fetched
}

func (c *ConsoleObserver) MediaQueued(account string, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.progress(account)
	p.queued = total
	fmt.Fprintf(c.out, "  @%s: %d new posts fetched, %d media queued\n", account, p.fetched, total)
}

func (c *ConsoleObserver) MediaFinished(account string, res downloader.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.progress(account)
	p.finished++
	p.bytes += res.Size
	if res.Failed() {
		p.failed++
	}

	if c.verbose {
		switch {
		case res.Failed():
			fmt.Fprintf(c.out, "  %s %d/%d: %v\n", Red("✗"), res.Job.PostID, res.Job.Slot, res.Err)
		case res.Skipped:
			fmt.Fprintf(c.out, "  %s %d/%d already present\n", Dim("•"), res.Job.PostID, res.Job.Slot)
		case res.Err == nil:
			fmt.Fprintf(c.out, "  %s %s (%s in %s)\n", Green("✓"), res.Ref.FileName, formatBytes(res.Size), formatDuration(res.Duration))
		}
		return
	}

	if p.finished == p.queued || time.Since(p.lastReport) >= c.interval {
		p.lastReport = time.Now()
		fmt.Fprintf(c.out, "  @%s: %s\n", account, progressLine(p))
	}
}

func (c *ConsoleObserver) AccountFinished(report syncer.AccountReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.accounts, report.Account)

	line := fmt.Sprintf("@%s: %s in %s", report.Account, report.Summary(), formatDuration(report.Duration))
	switch report.Outcome {
	case syncer.OutcomeSuccess:
		fmt.Fprintf(c.out, "%s %s\n", Green("✓"), line)
	case syncer.OutcomePartial:
		fmt.Fprintf(c.out, "%s %s\n", Yellow("!"), line)
	default:
		fmt.Fprintf(c.out, "%s %s\n", Red("✗"), line)
	}
}

func progressLine(p *accountProgress) string {
	percent := 100.0
	if p.queued > 0 {
		percent = float64(p.finished) / float64(p.queued) * 100
	}
	line := fmt.Sprintf("[%3.0f%%] %d/%d media, %s", percent, p.finished, p.queued, formatBytes(p.bytes))
	if p.failed > 0 {
		line += fmt.Sprintf(", %d failed", p.failed)
	}
	return line
}

func formatBytes(bytes int64) string {
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

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
