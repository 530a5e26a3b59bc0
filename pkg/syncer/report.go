package syncer

import (
	"fmt"
	"strings"
	"time"

	"twarchive/pkg/timeline"
)

// Outcome is the per-account result of a run
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartial
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Exit codes of a sync run
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitPartial = 2
)

// AccountReport summarizes one account's sync
type AccountReport struct {
	Account     string
	Outcome     Outcome
	FetchStatus timeline.Status
	NewPosts    int
	TotalPosts  int
	Downloaded  int
	// Skipped counts media adopted from files already on disk
	Skipped     int
	FailedMedia int
	// Pending counts enabled media left untouched because the run was interrupted
	Pending      int
	StaleSession bool
	Committed    bool
	Err          error
	Duration     time.Duration
}

// Summary renders the outcome the way the run report prints it
func (r AccountReport) Summary() string {
	var s string
	switch r.Outcome {
	case OutcomeSuccess:
		s = "success"
	case OutcomePartial:
		s = fmt.Sprintf("partial (%d media failed)", r.FailedMedia)
	default:
		reason := "unknown error"
		if r.Err != nil {
			reason = r.Err.Error()
		}
		return fmt.Sprintf("failed (%s)", reason)
	}
	if r.FetchStatus == timeline.StatusTruncated {
		s += ", history truncated at the retrieval ceiling"
	}
	return s
}

// Report is the outcome of a whole run
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Accounts  []AccountReport
	// Fatal is set when the run was aborted, e.g. because a manifest could not be written
	Fatal error
}

// Counts returns the number of accounts per outcome
func (r *Report) Counts() (success, partial, failed int) {
	for _, a := range r.Accounts {
		switch a.Outcome {
		case OutcomeSuccess:
			success++
		case OutcomePartial:
			partial++
		default:
			failed++
		}
	}
	return success, partial, failed
}

// ExitCode maps the report to a process exit status: 0 when every account
// succeeded, 1 when nothing was archived or the run aborted, 2 otherwise.
func (r *Report) ExitCode() int {
	if r.Fatal != nil || len(r.Accounts) == 0 {
		return ExitFailure
	}
	success, partial, failed := r.Counts()
	switch {
	case failed == len(r.Accounts):
		return ExitFailure
	case partial > 0 || failed > 0:
		return ExitPartial
	case success == len(r.Accounts):
		return ExitSuccess
	default:
		return ExitFailure
	}
}

// String renders a multi-line summary
func (r *Report) String() string {
	var b strings.Builder
	for _, a := range r.Accounts {
		fmt.Fprintf(&b, "@%s: %s", a.Account, a.Summary())
		if a.Outcome != OutcomeFailed {
			fmt.Fprintf(&b, " [%d new posts, %d media downloaded, %d already present]", a.NewPosts, a.Downloaded, a.Skipped)
		}
		b.WriteByte('\n')
	}
	if r.Fatal != nil {
		fmt.Fprintf(&b, "run aborted: %v\n", r.Fatal)
	}
	return b.String()
}
