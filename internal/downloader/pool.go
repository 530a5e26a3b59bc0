package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"twarchive/pkg/archive"
	"twarchive/pkg/logger"
	"twarchive/pkg/ratelimit"
	"twarchive/pkg/retry"
)

// Job is one media slot of one post
type Job struct {
	Account string
	PostID  uint64
	Slot    int
	Ref     archive.MediaRef
}

// Result is the outcome of a Job. Ref is the updated MediaRef; it equals
// Job.Ref when the kind is disabled or the download was interrupted.
type Result struct {
	Job      Job
	Ref      archive.MediaRef
	Skipped  bool
	Disabled bool
	Err      error
	Duration time.Duration
	Size     int64
}

// Failed reports whether the item permanently failed in this run
func (r Result) Failed() bool {
	return r.Ref.Status == archive.StatusFailed
}

// MediaSource opens a media stream
type MediaSource interface {
	OpenMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error)
}

// MediaStorage persists media files under deterministic names
type MediaStorage interface {
	IsDownloaded(name string) bool
	Save(name string, r io.Reader) (int64, error)
}

// Config configures a Pool
type Config struct {
	Workers int
	Kinds   archive.KindSet
}

// Pool downloads media through a fixed set of workers. Jobs go in through
// Submit, outcomes come back on Results; workers share no other state.
type Pool struct {
	numWorkers int
	kinds      archive.KindSet
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	closeOnce  sync.Once

	source  MediaSource
	storage MediaStorage
	limiter ratelimit.Limiter
	retry   *retry.Config
	logger  logger.Logger
}

// NewPool creates a download pool. Call Start before submitting jobs.
func NewPool(cfg Config, source MediaSource, storage MediaStorage, limiter ratelimit.Limiter, retryCfg *retry.Config, log logger.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Pool{
		numWorkers: cfg.Workers,
		kinds:      cfg.Kinds,
		jobQueue:   make(chan Job, cfg.Workers*2),
		results:    make(chan Result, cfg.Workers),
		source:     source,
		storage:    storage,
		limiter:    limiter,
		retry:      retryCfg,
		logger:     log,
	}
}

// Start launches the workers. They stop once Close is called and the queue drains.
func (p *Pool) Start(ctx context.Context) {
	p.logger.DebugWithFields("Starting download pool", map[string]interface{}{
		"num_workers": p.numWorkers,
		"kinds":       p.kinds.String(),
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("download pool is shutting down: %w", ctx.Err())
	}
}

// Close signals that no more jobs will be submitted. Results is closed once
// every queued job has produced its result.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
		go func() {
			p.wg.Wait()
			close(p.results)
		}()
	})
}

// Results returns the channel of job outcomes
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	// Jobs are drained even after cancellation so every submitted job yields
	// exactly one result; Download returns immediately for a done context.
	for job := range p.jobQueue {
		p.results <- p.Download(ctx, job)
	}

	p.logger.DebugWithFields("Download worker stopped", map[string]interface{}{
		"worker_id": id,
	})
}

// Download runs one job to completion. Disabled kinds are never fetched, a
// non-empty file already on disk is adopted without a request, and a
// download that exhausts its retries yields a failed ref.
func (p *Pool) Download(ctx context.Context, job Job) Result {
	start := time.Now()
	res := Result{Job: job, Ref: job.Ref}

	if !p.kinds.Has(job.Ref.Kind) {
		res.Skipped = true
		res.Disabled = true
		return res
	}
	if job.Ref.Status == archive.StatusDownloaded {
		res.Skipped = true
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	name := archive.FileNameFor(job.PostID, job.Slot, job.Ref)
	if p.storage.IsDownloaded(name) {
		res.Ref = job.Ref.Downloaded(name)
		res.Skipped = true
		logger.LogDownload(p.logger, job.Account, job.PostID, job.Slot, job.Ref.Kind.String(), true, nil)
		return res
	}

	src, err := ResolveURL(job.Ref)
	if err != nil {
		res.Ref = job.Ref.Failed()
		res.Err = err
		return res
	}

	log := p.logger.WithFields(map[string]interface{}{
		"account": job.Account,
		"post_id": job.PostID,
		"slot":    job.Slot,
	})
	err = retry.Do(ctx, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		body, err := p.source.OpenMedia(ctx, src)
		if err != nil {
			return err
		}
		defer body.Close()
		n, err := p.storage.Save(name, body)
		res.Size = n
		return err
	}, p.retry.WithLogger(log))
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Ref = job.Ref.Downloaded(name)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Interrupted, not failed: the ref stays as it was so the next run retries it
		res.Err = err
	default:
		res.Ref = job.Ref.Failed()
		res.Err = err
	}

	logger.LogDownload(p.logger, job.Account, job.PostID, job.Slot, job.Ref.Kind.String(), false, res.Err)
	return res
}

// ResolveURL returns the highest quality source for a media ref
func ResolveURL(ref archive.MediaRef) (string, error) {
	u, err := url.Parse(ref.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid media url %q", ref.URL)
	}

	switch ref.Kind {
	case archive.KindPhoto:
		q := u.Query()
		q.Set("name", "orig")
		u.RawQuery = q.Encode()
		return u.String(), nil
	case archive.KindVideo, archive.KindAnimatedImage:
		// The highest bitrate variant was already chosen when the post was fetched
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported media kind %s", ref.Kind)
	}
}
