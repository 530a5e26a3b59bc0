package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"twarchive/pkg/archive"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
	"twarchive/pkg/ratelimit"
	"twarchive/pkg/retry"
	"twarchive/pkg/twitter"
)

// PageFetcher is the upstream call the Fetcher drives
type PageFetcher interface {
	FetchTimelinePage(ctx context.Context, userID string, opts twitter.PageOptions) (*twitter.TimelinePage, error)
}

// Status is the terminal state of one fetch
type Status int

const (
	StatusCompleted Status = iota
	StatusTruncated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTruncated:
		return "truncated-by-ceiling"
	case StatusFailed:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrCursorLoop is returned when the upstream hands back the cursor it was just given
var ErrCursorLoop = errors.New("upstream returned the same pagination cursor twice")

// Request describes one account's fetch
type Request struct {
	Account string
	UserID  string
	// Kinds is the media selection of the run. It is informational: posts keep
	// refs of every kind, and Kinds only feeds Result.Eligible for logging.
	Kinds archive.KindSet
	// ResumeBoundary is the largest archived post id; zero means a fresh archive
	ResumeBoundary uint64
}

// Result holds the posts retrieved, newest first, and how the fetch ended.
// Posts are valid even when Status is StatusFailed.
type Result struct {
	Posts  []archive.Post
	Status Status
	Pages  int
	// Eligible counts fetched refs whose kind is in Request.Kinds
	Eligible int
	Err      error
}

// Options tunes pagination
type Options struct {
	PageSize int
	Ceiling  int
}

// Fetcher pages through one account's timeline at a time. Page requests are
// strictly sequential because each needs the cursor of the previous one.
type Fetcher struct {
	client  PageFetcher
	limiter ratelimit.Limiter
	retry   *retry.Config
	opts    Options
	logger  logger.Logger

	// OnPage is called after every page with the running post count
	OnPage func(account string, fetched int)
}

// NewFetcher creates a Fetcher
func NewFetcher(client PageFetcher, limiter ratelimit.Limiter, retryCfg *retry.Config, opts Options, log logger.Logger) *Fetcher {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.PageSize <= 0 || opts.PageSize > twitter.MaxPageSize {
		opts.PageSize = twitter.MaxPageSize
	}
	return &Fetcher{
		client:  client,
		limiter: limiter,
		retry:   retryCfg,
		opts:    opts,
		logger:  log,
	}
}

// Fetch retrieves posts newer than req.ResumeBoundary. It stops at the
// retrieval ceiling, at the end of history, or at the first post at or below
// the boundary. A page that keeps failing ends the fetch with StatusFailed and
// whatever was already retrieved.
func (f *Fetcher) Fetch(ctx context.Context, req Request) *Result {
	log := f.logger.WithField("account", req.Account)
	res := &Result{Posts: []archive.Post{}}

	ceiling := f.opts.Ceiling
	token := ""
	for {
		remaining := -1
		if ceiling > 0 {
			remaining = ceiling - len(res.Posts)
		}

		pageSize := f.opts.PageSize
		if remaining >= 0 && remaining < pageSize {
			pageSize = remaining
		}
		opts := twitter.PageOptions{
			MaxResults:      pageSize,
			PaginationToken: token,
			SinceID:         req.ResumeBoundary,
		}

		page, err := retry.DoWithResult(ctx, func(ctx context.Context) (*twitter.TimelinePage, error) {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			page, err := f.client.FetchTimelinePage(ctx, req.UserID, opts)
			if err != nil && errs.Is(err, errs.ErrorTypeRateLimit) {
				if wait := errs.RetryAfterOf(err); wait > 0 {
					f.limiter.PauseUntil(time.Now().Add(wait))
				}
			}
			return page, err
		}, f.retry.WithLogger(log))
		if err != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("fetch page %d: %w", res.Pages+1, err)
			log.WithError(err).WarnWithFields("Timeline fetch aborted", map[string]interface{}{
				"pages":   res.Pages,
				"fetched": len(res.Posts),
			})
			return f.finish(res, req)
		}
		res.Pages++

		if page.Rate.Known && page.Rate.Remaining == 0 {
			f.limiter.PauseUntil(page.Rate.Reset)
		}

		hitBoundary := false
		leftover := false
		for _, p := range page.Posts {
			if p.ID <= req.ResumeBoundary {
				hitBoundary = true
				break
			}
			if remaining >= 0 && len(res.Posts) >= ceiling {
				leftover = true
				break
			}
			p.Author = req.Account
			res.Posts = append(res.Posts, p)
		}

		logger.LogSyncProgress(log, req.Account, len(res.Posts), ceiling)
		if f.OnPage != nil {
			f.OnPage(req.Account, len(res.Posts))
		}

		switch {
		case hitBoundary:
			res.Status = StatusCompleted
			return f.finish(res, req)
		case ceiling > 0 && len(res.Posts) >= ceiling:
			if leftover || page.NextToken != "" {
				res.Status = StatusTruncated
			} else {
				res.Status = StatusCompleted
			}
			return f.finish(res, req)
		case page.NextToken == "":
			res.Status = StatusCompleted
			return f.finish(res, req)
		case page.NextToken == token:
			res.Status = StatusFailed
			res.Err = ErrCursorLoop
			return f.finish(res, req)
		}
		token = page.NextToken
	}
}

func (f *Fetcher) finish(res *Result, req Request) *Result {
	for _, p := range res.Posts {
		for _, m := range p.Media {
			if req.Kinds.Has(m.Kind) {
				res.Eligible++
			}
		}
	}
	f.logger.InfoWithFields("Timeline fetch finished", map[string]interface{}{
		"account":  req.Account,
		"status":   res.Status.String(),
		"posts":    len(res.Posts),
		"pages":    res.Pages,
		"eligible": res.Eligible,
	})
	return res
}
