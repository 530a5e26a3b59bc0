package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"twarchive/internal/downloader"
	"twarchive/pkg/archive"
	"twarchive/pkg/config"
	"twarchive/pkg/logger"
	"twarchive/pkg/ratelimit"
	"twarchive/pkg/retry"
	"twarchive/pkg/session"
	"twarchive/pkg/storage"
	"twarchive/pkg/timeline"
	"twarchive/pkg/twitter"
)

var (
	// ErrNoAccounts is returned when a run is started without accounts
	ErrNoAccounts = errors.New("no accounts to sync")
	// ErrUserMismatch is returned when a handle now resolves to a different user than the archive
	ErrUserMismatch = errors.New("handle resolves to a different user than the existing archive")
	// ErrManifestWrite marks a failure to persist a manifest; it aborts the run
	ErrManifestWrite = errors.New("failed to write manifest")
)

// Client is the upstream surface a sync needs
type Client interface {
	LookupUser(ctx context.Context, handle string) (*twitter.User, error)
	timeline.PageFetcher
	downloader.MediaSource
}

// Orchestrator runs full syncs over a set of accounts
type Orchestrator struct {
	client   Client
	store    *archive.Store
	cfg      *config.Config
	retry    *retry.Config
	observer Observer
	logger   logger.Logger

	// Page and media limiters are shared by every account of the run
	pageLimiter  ratelimit.Limiter
	mediaLimiter ratelimit.Limiter
}

// New creates an orchestrator over cfg. The configuration is read, never modified.
func New(cfg *config.Config, client Client, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNopLogger()
	}

	var pageLimiter, mediaLimiter ratelimit.Limiter = ratelimit.Unlimited{}, ratelimit.Unlimited{}
	if cfg.RateLimit.PageRequestsPerWindow > 0 {
		pageLimiter = ratelimit.NewSlidingWindow(cfg.RateLimit.PageRequestsPerWindow, cfg.RateLimit.PageWindow)
	}
	if cfg.RateLimit.MediaRequestsPerMinute > 0 {
		mediaLimiter = ratelimit.NewTokenBucket(cfg.RateLimit.MediaRequestsPerMinute, time.Minute)
	}

	return &Orchestrator{
		client:       client,
		store:        archive.NewStore(cfg.Output.BaseDirectory, cfg.Output.ManifestName, log),
		cfg:          cfg,
		retry:        retry.FromConfig(cfg.Retry, log),
		observer:     NopObserver{},
		logger:       log,
		pageLimiter:  pageLimiter,
		mediaLimiter: mediaLimiter,
	}
}

// SetObserver installs a progress observer
func (o *Orchestrator) SetObserver(obs Observer) {
	if obs == nil {
		obs = NopObserver{}
	}
	o.observer = obs
}

// Store returns the archive store the orchestrator writes to
func (o *Orchestrator) Store() *archive.Store {
	return o.store
}

// EnabledKinds returns the media kinds switched on in the download settings
func EnabledKinds(d config.DownloadConfig) archive.KindSet {
	var kinds []archive.MediaKind
	if d.Photos {
		kinds = append(kinds, archive.KindPhoto)
	}
	if d.Videos {
		kinds = append(kinds, archive.KindVideo)
	}
	if d.AnimatedImages {
		kinds = append(kinds, archive.KindAnimatedImage)
	}
	return archive.NewKindSet(kinds...)
}

// NormalizeAccounts cleans and deduplicates handles, keeping the first
// occurrence order. Handles that cannot be normalized are returned as they were given.
func NormalizeAccounts(handles []string) (accounts, invalid []string) {
	seen := make(map[string]bool, len(handles))
	for _, h := range handles {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		account, err := archive.NormalizeAccount(h)
		if err != nil {
			invalid = append(invalid, h)
			continue
		}
		if seen[account] {
			continue
		}
		seen[account] = true
		accounts = append(accounts, account)
	}
	return accounts, invalid
}

// Run syncs every account with the given media selection. Accounts are
// independent: one failing never affects another, unless fail-fast is
// configured. The returned error is non-nil only when the run was aborted;
// the report is always returned.
func (o *Orchestrator) Run(ctx context.Context, handles []string, kinds archive.KindSet) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	accounts, invalid := NormalizeAccounts(handles)
	for _, h := range invalid {
		_, err := archive.NormalizeAccount(h)
		report.Accounts = append(report.Accounts, AccountReport{
			Account: h,
			Outcome: OutcomeFailed,
			Err:     err,
		})
	}
	if len(accounts) == 0 && len(invalid) == 0 {
		report.Fatal = ErrNoAccounts
		return report, ErrNoAccounts
	}

	log := o.logger.WithField("run_id", report.RunID)
	log.InfoWithFields("Starting sync", map[string]interface{}{
		"accounts": len(accounts),
		"kinds":    kinds.String(),
		"parallel": o.cfg.Sync.ConcurrentAccounts,
	})

	results := make([]AccountReport, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	limit := o.cfg.Sync.ConcurrentAccounts
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, account := range accounts {
		g.Go(func() error {
			rep, err := o.syncAccount(gctx, account, kinds, log)
			results[i] = rep
			o.observer.AccountFinished(rep)
			if err != nil {
				return err
			}
			if o.cfg.Sync.FailFast && rep.Outcome == OutcomeFailed {
				return fmt.Errorf("@%s failed: %w", account, rep.Err)
			}
			return nil
		})
	}
	err := g.Wait()
	report.Accounts = append(report.Accounts, results...)

	if err != nil && errors.Is(err, ErrManifestWrite) {
		report.Fatal = err
	}

	success, partial, failed := report.Counts()
	log.InfoWithFields("Sync finished", map[string]interface{}{
		"success":  success,
		"partial":  partial,
		"failed":   failed,
		"duration": time.Since(report.StartedAt).String(),
	})
	return report, report.Fatal
}

// syncAccount runs the full pipeline for one account. The error return is
// reserved for failures that must abort the whole run.
func (o *Orchestrator) syncAccount(ctx context.Context, account string, kinds archive.KindSet, runLog logger.Logger) (AccountReport, error) {
	start := time.Now()
	rep := AccountReport{Account: account, Outcome: OutcomeFailed}
	log := runLog.WithField("account", account)
	o.observer.AccountStarted(account)

	fail := func(err error) (AccountReport, error) {
		rep.Outcome = OutcomeFailed
		rep.Err = err
		rep.Duration = time.Since(start)
		log.WithError(err).Warn("Account sync failed")
		return rep, nil
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	unlock, err := o.store.Lock(account)
	if err != nil {
		return fail(err)
	}
	defer unlock()

	user, err := retry.DoWithResult(ctx, func(ctx context.Context) (*twitter.User, error) {
		return o.client.LookupUser(ctx, account)
	}, o.retry.WithLogger(log))
	if err != nil {
		return fail(fmt.Errorf("lookup @%s: %w", account, err))
	}

	// The lock above only covers this process; the marker covers other ones.
	sessions, err := session.NewManager(o.store.AccountDir(account), log)
	if err != nil {
		return fail(err)
	}
	if o.cfg.Sync.SessionTimeout > 0 {
		sessions.StaleAfter = o.cfg.Sync.SessionTimeout
	}
	marker, stale, err := sessions.Begin(account)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := sessions.End(marker); err != nil {
			log.WithError(err).Warn("Failed to clear session marker")
		}
	}()
	rep.StaleSession = stale != nil

	current, err := o.store.Load(account)
	if err != nil {
		return fail(err)
	}
	if current.UserID != "" && current.UserID != user.ID {
		return fail(fmt.Errorf("%w: archive has %s, upstream has %s", ErrUserMismatch, current.UserID, user.ID))
	}

	media, err := storage.NewManager(o.store.AccountDir(account))
	if err != nil {
		return fail(err)
	}
	o.cleanup(account, media, log)

	fetcher := timeline.NewFetcher(o.client, o.pageLimiter, o.retry, timeline.Options{
		PageSize: o.cfg.Twitter.PageSize,
		Ceiling:  o.cfg.Twitter.RetrievalCeiling,
	}, log)
	fetcher.OnPage = o.observer.PostsFetched

	fetched := fetcher.Fetch(ctx, timeline.Request{
		Account:        account,
		UserID:         user.ID,
		Kinds:          kinds,
		ResumeBoundary: current.ResumeBoundary,
	})
	rep.FetchStatus = fetched.Status
	if fetched.Status == timeline.StatusFailed {
		// Merging a partial fetch would move the resume boundary past posts
		// that were never retrieved, so nothing is kept.
		return fail(fetched.Err)
	}

	candidate, added := archive.Merge(current, fetched.Posts)
	rep.NewPosts = added
	changed := added > 0
	if candidate.UserID != user.ID {
		candidate.UserID = user.ID
		changed = true
	}

	mediaChanged, err := o.downloadMedia(ctx, account, candidate, media, kinds, &rep, log)
	if err != nil {
		return fail(err)
	}
	changed = changed || mediaChanged

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if changed {
		if err := o.store.Commit(ctx, candidate); err != nil {
			if ctx.Err() != nil {
				return fail(err)
			}
			rep, _ = fail(fmt.Errorf("%w for @%s: %w", ErrManifestWrite, account, err))
			return rep, rep.Err
		}
		rep.Committed = true
	}

	rep.TotalPosts = len(candidate.Posts)
	rep.Err = nil
	rep.Outcome = OutcomeSuccess
	if rep.FailedMedia > 0 {
		rep.Outcome = OutcomePartial
	}
	rep.Duration = time.Since(start)

	log.InfoWithFields("Account synced", map[string]interface{}{
		"outcome":      rep.Outcome.String(),
		"fetch_status": rep.FetchStatus.String(),
		"new_posts":    rep.NewPosts,
		"total_posts":  rep.TotalPosts,
		"downloaded":   rep.Downloaded,
		"skipped":      rep.Skipped,
		"failed_media": rep.FailedMedia,
		"committed":    rep.Committed,
	})
	return rep, nil
}

// cleanup removes temp files an interrupted run left behind
func (o *Orchestrator) cleanup(account string, media *storage.Manager, log logger.Logger) {
	manifests, err := o.store.CleanupTemp(account)
	if err != nil {
		log.WithError(err).Warn("Failed to remove temporary manifests")
	}
	partials, err := media.CleanupPartials()
	if err != nil {
		log.WithError(err).Warn("Failed to remove partial downloads")
	}
	if manifests+partials > 0 {
		log.InfoWithFields("Removed leftovers of an interrupted run", map[string]interface{}{
			"manifests": manifests,
			"partials":  partials,
		})
	}
}

// downloadMedia resolves every enabled, not yet downloaded media ref of m
// through a worker pool and records the outcomes in m. This includes refs
// left pending or failed by earlier runs.
func (o *Orchestrator) downloadMedia(ctx context.Context, account string, m *archive.Manifest, media *storage.Manager, kinds archive.KindSet, rep *AccountReport, log logger.Logger) (bool, error) {
	var jobs []downloader.Job
	for _, p := range m.Posts {
		for slot, ref := range p.Media {
			if !kinds.Has(ref.Kind) || ref.Status == archive.StatusDownloaded {
				continue
			}
			jobs = append(jobs, downloader.Job{Account: account, PostID: p.ID, Slot: slot, Ref: ref})
		}
	}
	o.observer.MediaQueued(account, len(jobs))
	if len(jobs) == 0 {
		return false, nil
	}

	pool := downloader.NewPool(downloader.Config{
		Workers: o.cfg.Download.ConcurrentDownloads,
		Kinds:   kinds,
	}, o.client, media, o.mediaLimiter, o.retry, log)
	pool.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer pool.Close()
		for _, job := range jobs {
			if err := pool.Submit(ctx, job); err != nil {
				return
			}
		}
	}()

	changed := false
	var applyErr error
	for res := range pool.Results() {
		o.observer.MediaFinished(account, res)
		if res.Disabled {
			continue
		}

		switch {
		case res.Ref.Status == archive.StatusDownloaded && res.Skipped:
			rep.Skipped++
		case res.Ref.Status == archive.StatusDownloaded:
			rep.Downloaded++
		case res.Ref.Status == archive.StatusFailed:
			rep.FailedMedia++
			log.WithError(res.Err).WarnWithFields("Media download failed", map[string]interface{}{
				"post_id": res.Job.PostID,
				"slot":    res.Job.Slot,
				"kind":    res.Job.Ref.Kind.String(),
			})
		default:
			rep.Pending++
		}

		c, err := m.ApplyMedia(res.Job.PostID, res.Job.Slot, res.Ref)
		if err != nil && applyErr == nil {
			applyErr = err
		}
		changed = changed || c
	}
	wg.Wait()

	// Jobs never submitted because of cancellation stay pending
	submitted := rep.Skipped + rep.Downloaded + rep.FailedMedia + rep.Pending
	if submitted < len(jobs) {
		rep.Pending += len(jobs) - submitted
	}
	return changed, applyErr
}
