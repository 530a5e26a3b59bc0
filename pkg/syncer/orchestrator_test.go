package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twarchive/pkg/archive"
	"twarchive/pkg/config"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
	"twarchive/pkg/session"
	"twarchive/pkg/timeline"
	"twarchive/pkg/twitter"
)

// fakeUpstream serves accounts from memory. Cursors are offsets into the post list.
type fakeUpstream struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	bodies   map[string]string
	broken   map[string]bool
	media    map[string]int
	rawMedia []string
}

type fakeAccount struct {
	id        string
	posts     []archive.Post // oldest first
	pagesFail bool
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		accounts: map[string]*fakeAccount{},
		bodies:   map[string]string{},
		broken:   map[string]bool{},
		media:    map[string]int{},
	}
}

func (f *fakeUpstream) addAccount(handle, id string) *fakeAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := &fakeAccount{id: id}
	f.accounts[handle] = acc
	return acc
}

// publish adds a new newest post, optionally with media whose bodies become available
func (f *fakeUpstream) publish(handle string, id uint64, media ...archive.MediaKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.accounts[handle]
	post := archive.Post{
		ID:        id,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		Text:      fmt.Sprintf("post %d", id),
		Media:     []archive.MediaRef{},
	}
	for slot, kind := range media {
		var u string
		if kind == archive.KindPhoto {
			u = fmt.Sprintf("https://pbs.example/media/%d_%d.jpg", id, slot)
		} else {
			u = fmt.Sprintf("https://video.example/%s/%d_%d.mp4", kind, id, slot)
		}
		f.bodies[u] = fmt.Sprintf("%s-%d-%d", kind, id, slot)
		post.Media = append(post.Media, archive.MediaRef{Kind: kind, URL: u, Status: archive.StatusPending})
	}
	acc.posts = append(acc.posts, post)
}

func (f *fakeUpstream) breakMedia(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broken[u] = true
}

func (f *fakeUpstream) fixMedia(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.broken, u)
}

func (f *fakeUpstream) resetMediaCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = map[string]int{}
}

func (f *fakeUpstream) mediaCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.media {
		n += c
	}
	return n
}

func (f *fakeUpstream) callsMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for u, c := range f.media {
		if strings.Contains(u, substr) {
			n += c
		}
	}
	return n
}

func (f *fakeUpstream) LookupUser(ctx context.Context, handle string) (*twitter.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[handle]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, http.StatusOK, "user %s not found", handle)
	}
	return &twitter.User{ID: acc.id, Username: handle}, nil
}

func (f *fakeUpstream) FetchTimelinePage(ctx context.Context, userID string, opts twitter.PageOptions) (*twitter.TimelinePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var acc *fakeAccount
	for _, a := range f.accounts {
		if a.id == userID {
			acc = a
		}
	}
	if acc == nil {
		return nil, errs.New(errs.ErrorTypeNotFound, http.StatusNotFound, "no such user")
	}
	if acc.pagesFail {
		return nil, errs.New(errs.ErrorTypeServerError, http.StatusServiceUnavailable, "over capacity")
	}

	var eligible []archive.Post
	for i := len(acc.posts) - 1; i >= 0; i-- {
		if p := acc.posts[i]; p.ID > opts.SinceID {
			eligible = append(eligible, p)
		}
	}

	offset := 0
	if opts.PaginationToken != "" {
		offset, _ = strconv.Atoi(opts.PaginationToken)
	}
	size := opts.MaxResults
	if size < twitter.MinPageSize {
		size = twitter.MinPageSize
	}
	end := offset + size
	if end > len(eligible) {
		end = len(eligible)
	}

	page := &twitter.TimelinePage{Posts: []archive.Post{}}
	for _, p := range eligible[offset:end] {
		p.Media = append([]archive.MediaRef{}, p.Media...)
		page.Posts = append(page.Posts, p)
	}
	page.Received = len(page.Posts)
	if end < len(eligible) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeUpstream) OpenMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, err := url.Parse(mediaURL)
	if err != nil {
		return nil, err
	}
	f.rawMedia = append(f.rawMedia, mediaURL)
	key := u.Scheme + "://" + u.Host + u.Path
	f.media[key]++

	if f.broken[key] {
		return nil, errs.New(errs.ErrorTypeServerError, http.StatusBadGateway, "bad gateway")
	}
	body, ok := f.bodies[key]
	if !ok {
		return nil, errs.New(errs.ErrorTypeNotFound, http.StatusNotFound, "no such media")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Retry = config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
	cfg.RateLimit = config.RateLimitConfig{}
	return cfg
}

func readManifest(t *testing.T, cfg *config.Config, account string) *archive.Manifest {
	t.Helper()
	m, err := archive.NewStore(cfg.Output.BaseDirectory, cfg.Output.ManifestName, nil).Load(account)
	require.NoError(t, err)
	return m
}

func manifestBytes(t *testing.T, cfg *config.Config, account string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Output.BaseDirectory, account, cfg.Output.ManifestName))
	require.NoError(t, err)
	return data
}

func photosOnly() archive.KindSet { return archive.NewKindSet(archive.KindPhoto) }
func allKinds() archive.KindSet   { return archive.NewKindSet(archive.AllKinds...) }

func TestRun_FreshSyncPhotosOnly(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 1, archive.KindPhoto)
	up.publish("alice", 2)
	up.publish("alice", 3, archive.KindPhoto, archive.KindVideo)
	up.publish("alice", 4, archive.KindAnimatedImage)
	up.publish("alice", 5, archive.KindPhoto)
	cfg := testConfig(t)

	report, err := New(cfg, up, logger.NewTestLogger()).Run(context.Background(), []string{"@Alice"}, photosOnly())
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)

	rep := report.Accounts[0]
	assert.Equal(t, "alice", rep.Account)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
	assert.Equal(t, timeline.StatusCompleted, rep.FetchStatus)
	assert.Equal(t, 5, rep.NewPosts)
	assert.Equal(t, 3, rep.Downloaded)
	assert.Equal(t, ExitSuccess, report.ExitCode())

	m := readManifest(t, cfg, "alice")
	require.Len(t, m.Posts, 5)
	assert.Equal(t, uint64(5), m.ResumeBoundary)
	assert.Equal(t, "1001", m.UserID)

	// Refs of disabled kinds are recorded but stay pending with no local file
	photos, disabled := 0, 0
	for i, p := range m.Posts {
		if i > 0 {
			assert.Greater(t, m.Posts[i-1].ID, p.ID)
		}
		assert.Equal(t, "alice", p.Author)
		for _, ref := range p.Media {
			if ref.Kind == archive.KindPhoto {
				photos++
				assert.Equal(t, archive.StatusDownloaded, ref.Status)
				assert.FileExists(t, filepath.Join(cfg.Output.BaseDirectory, "alice", ref.FileName))
				continue
			}
			disabled++
			assert.Equal(t, archive.StatusPending, ref.Status, "post %d %s", p.ID, ref.Kind)
			assert.Empty(t, ref.FileName)
		}
	}
	assert.Equal(t, 3, photos)
	assert.Equal(t, 2, disabled)
	assert.Zero(t, up.callsMatching("video.example"), "disabled kinds are never requested")
	assert.NoFileExists(t, filepath.Join(cfg.Output.BaseDirectory, "alice", "3_1.mp4"))
	assert.NoFileExists(t, filepath.Join(cfg.Output.BaseDirectory, "alice", "4_0.mp4"))

	mixed, ok := m.Post(3)
	require.True(t, ok)
	require.Len(t, mixed.Media, 2)
	assert.True(t, mixed.HasKind(archive.KindVideo))
	assert.Equal(t, "3_0.jpg", mixed.Media[0].FileName)

	for _, raw := range up.rawMedia {
		assert.Contains(t, raw, "name=orig")
	}

	_, err = os.Stat(filepath.Join(cfg.Output.BaseDirectory, "alice", session.FileName))
	assert.True(t, os.IsNotExist(err), "session marker must be removed after the run")
}

func TestRun_ResyncIsIdempotentAndIncremental(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	for id := uint64(1); id <= 5; id++ {
		up.publish("alice", id, archive.KindPhoto)
	}
	cfg := testConfig(t)
	orch := New(cfg, up, nil)

	_, err := orch.Run(context.Background(), []string{"alice"}, photosOnly())
	require.NoError(t, err)
	before := manifestBytes(t, cfg, "alice")
	original := readManifest(t, cfg, "alice")

	up.resetMediaCalls()
	report, err := orch.Run(context.Background(), []string{"alice"}, photosOnly())
	require.NoError(t, err)
	assert.Equal(t, before, manifestBytes(t, cfg, "alice"))
	assert.Zero(t, up.mediaCalls(), "a second run must not download anything")
	assert.False(t, report.Accounts[0].Committed)
	assert.Zero(t, report.Accounts[0].NewPosts)

	up.publish("alice", 6, archive.KindPhoto)
	report, err = orch.Run(context.Background(), []string{"alice"}, photosOnly())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accounts[0].NewPosts)
	assert.Equal(t, 1, report.Accounts[0].Downloaded)
	assert.Equal(t, 1, up.mediaCalls())

	m := readManifest(t, cfg, "alice")
	require.Len(t, m.Posts, 6)
	assert.Equal(t, uint64(6), m.ResumeBoundary)
	for i, p := range original.Posts {
		want, err := json.Marshal(p)
		require.NoError(t, err)
		got, err := json.Marshal(m.Posts[i+1])
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got))
	}
}

func TestRun_FailedVideoIsPartial(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	for id := uint64(40); id <= 44; id++ {
		if id == 42 {
			up.publish("alice", id, archive.KindVideo)
			continue
		}
		up.publish("alice", id, archive.KindPhoto)
	}
	videoURL := "https://video.example/video/42_0.mp4"
	up.breakMedia(videoURL)
	cfg := testConfig(t)
	orch := New(cfg, up, nil)

	report, err := orch.Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)

	rep := report.Accounts[0]
	assert.Equal(t, OutcomePartial, rep.Outcome)
	assert.Equal(t, 1, rep.FailedMedia)
	assert.Equal(t, 4, rep.Downloaded)
	assert.Equal(t, "partial (1 media failed)", rep.Summary())
	assert.Equal(t, ExitPartial, report.ExitCode())
	assert.Equal(t, cfg.Retry.MaxAttempts, up.callsMatching("42_0.mp4"))

	m := readManifest(t, cfg, "alice")
	require.Len(t, m.Posts, 5)
	for _, p := range m.Posts {
		ref := p.Media[0]
		if p.ID == 42 {
			assert.Equal(t, archive.StatusFailed, ref.Status)
			assert.Empty(t, ref.FileName)
			continue
		}
		assert.Equal(t, archive.StatusDownloaded, ref.Status)
	}

	// The next run retries the failed item without refetching old posts
	up.fixMedia(videoURL)
	report, err = orch.Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Accounts[0].Outcome)
	assert.Equal(t, 1, report.Accounts[0].Downloaded)

	post, ok := readManifest(t, cfg, "alice").Post(42)
	require.True(t, ok)
	assert.Equal(t, archive.StatusDownloaded, post.Media[0].Status)
	assert.Equal(t, "42_0.mp4", post.Media[0].FileName)
}

func TestRun_RetrievalCeiling(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	for id := uint64(1); id <= 5000; id++ {
		up.publish("alice", id)
	}
	cfg := testConfig(t)
	cfg.Twitter.RetrievalCeiling = 3200

	report, err := New(cfg, up, nil).Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)

	rep := report.Accounts[0]
	assert.Equal(t, timeline.StatusTruncated, rep.FetchStatus)
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
	assert.Contains(t, rep.Summary(), "truncated")

	m := readManifest(t, cfg, "alice")
	assert.Len(t, m.Posts, 3200)
	assert.Equal(t, uint64(5000), m.ResumeBoundary)
	assert.Equal(t, uint64(1801), m.Posts[len(m.Posts)-1].ID)
}

func TestRun_DisabledKindsNeverFetched(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 1, archive.KindPhoto, archive.KindVideo)
	up.publish("alice", 2, archive.KindAnimatedImage)
	cfg := testConfig(t)

	report, err := New(cfg, up, nil).Run(context.Background(), []string{"alice"}, photosOnly())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Accounts[0].Outcome)
	assert.Zero(t, up.callsMatching("video.example"))
	assert.Equal(t, 1, up.callsMatching("pbs.example"))

	m := readManifest(t, cfg, "alice")
	post, ok := m.Post(1)
	require.True(t, ok)
	assert.Equal(t, archive.StatusDownloaded, post.Media[0].Status)
	assert.Equal(t, archive.StatusPending, post.Media[1].Status)
	assert.Empty(t, post.Media[1].FileName)

	// Enabling the kind later picks up the pending refs
	report, err = New(cfg, up, nil).Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accounts[0].Downloaded)
	assert.Equal(t, 2, up.callsMatching("video.example"))
}

func TestRun_AccountsAreIndependent(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 10, archive.KindPhoto)
	up.addAccount("carol", "1003")
	up.publish("carol", 20)
	up.accounts["carol"].pagesFail = true
	cfg := testConfig(t)

	report, err := New(cfg, up, nil).Run(context.Background(), []string{"alice", "bob", "carol", "ALICE", "not a handle"}, allKinds())
	require.NoError(t, err)
	require.Len(t, report.Accounts, 4)

	byAccount := map[string]AccountReport{}
	for _, a := range report.Accounts {
		byAccount[a.Account] = a
	}
	assert.Equal(t, OutcomeSuccess, byAccount["alice"].Outcome)
	assert.Equal(t, OutcomeFailed, byAccount["bob"].Outcome)
	assert.True(t, errs.Is(byAccount["bob"].Err, errs.ErrorTypeNotFound))
	assert.Equal(t, OutcomeFailed, byAccount["carol"].Outcome)
	assert.Equal(t, timeline.StatusFailed, byAccount["carol"].FetchStatus)
	assert.ErrorIs(t, byAccount["not a handle"].Err, archive.ErrInvalidAccount)
	assert.Equal(t, ExitPartial, report.ExitCode())

	// A failed fetch never writes a manifest
	_, err = os.Stat(filepath.Join(cfg.Output.BaseDirectory, "carol", cfg.Output.ManifestName))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_EveryAccountFailed(t *testing.T) {
	up := newFakeUpstream()
	cfg := testConfig(t)

	report, err := New(cfg, up, nil).Run(context.Background(), []string{"bob", "dave"}, allKinds())
	require.NoError(t, err)
	assert.Equal(t, ExitFailure, report.ExitCode())
}

func TestRun_NoAccounts(t *testing.T) {
	report, err := New(testConfig(t), newFakeUpstream(), nil).Run(context.Background(), []string{" ", ""}, allKinds())
	assert.ErrorIs(t, err, ErrNoAccounts)
	assert.Equal(t, ExitFailure, report.ExitCode())
}

func TestRun_UserMismatchLeavesArchiveUntouched(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 1)
	cfg := testConfig(t)

	store := archive.NewStore(cfg.Output.BaseDirectory, cfg.Output.ManifestName, nil)
	existing := archive.NewManifest("alice")
	existing.UserID = "999"
	require.NoError(t, store.Commit(context.Background(), existing))
	before := manifestBytes(t, cfg, "alice")

	report, err := New(cfg, up, nil).Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Accounts[0].Err, ErrUserMismatch)
	assert.Equal(t, before, manifestBytes(t, cfg, "alice"))
}

func TestRun_SyncInProgressIsRejected(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	orch := New(testConfig(t), up, nil)

	unlock, err := orch.Store().Lock("alice")
	require.NoError(t, err)
	defer unlock()

	report, err := orch.Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Accounts[0].Err, archive.ErrSyncInProgress)
}

func TestRun_LiveSessionMarkerFailsAccount(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 1, archive.KindPhoto)
	cfg := testConfig(t)
	orch := New(cfg, up, nil)

	_, err := orch.Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)
	before := manifestBytes(t, cfg, "alice")

	// another twarchive process is syncing alice right now
	writeSessionMarker(t, cfg, "alice", session.Marker{
		RunID:     "cron-run",
		Account:   "alice",
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
		Version:   1,
	})
	up.publish("alice", 2, archive.KindPhoto)
	up.resetMediaCalls()

	report, err := orch.Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)
	rep := report.Accounts[0]
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.ErrorIs(t, rep.Err, archive.ErrSyncInProgress)
	assert.False(t, rep.StaleSession)
	assert.False(t, rep.Committed)
	assert.Zero(t, up.mediaCalls())
	assert.Equal(t, before, manifestBytes(t, cfg, "alice"))

	marker, err := session.NewManager(filepath.Join(cfg.Output.BaseDirectory, "alice"), nil)
	require.NoError(t, err)
	held, err := marker.Load()
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, "cron-run", held.RunID, "the other run keeps its marker")
}

func TestRun_RecoversFromInterruptedRun(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 1, archive.KindPhoto)
	cfg := testConfig(t)

	dir := filepath.Join(cfg.Output.BaseDirectory, "alice")
	require.NoError(t, os.MkdirAll(dir, 0755))
	writeSessionMarker(t, cfg, "alice", session.Marker{
		RunID:     "crashed",
		Account:   "alice",
		PID:       os.Getpid(),
		StartedAt: time.Now().Add(-2 * cfg.Sync.SessionTimeout),
		Version:   1,
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_0.jpg.123.part"), []byte("half"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.Output.ManifestName+".456.tmp"), []byte("{"), 0644))

	report, err := New(cfg, up, nil).Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)
	assert.True(t, report.Accounts[0].StaleSession)
	assert.Equal(t, OutcomeSuccess, report.Accounts[0].Outcome)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	leftovers, err = filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.NoFileExists(t, filepath.Join(dir, session.FileName))
}

func writeSessionMarker(t *testing.T, cfg *config.Config, account string, m session.Marker) {
	t.Helper()
	dir := filepath.Join(cfg.Output.BaseDirectory, account)
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, session.FileName), data, 0644))
}

func TestRun_CancelledBeforeStartKeepsArchive(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 1, archive.KindPhoto)
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := New(cfg, up, nil).Run(ctx, []string{"alice"}, allKinds())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Accounts[0].Err, context.Canceled)

	_, err = os.Stat(filepath.Join(cfg.Output.BaseDirectory, "alice", cfg.Output.ManifestName))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_FailFastStopsRemainingAccounts(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("zed", "1009")
	up.publish("zed", 1)
	cfg := testConfig(t)
	cfg.Sync.FailFast = true
	cfg.Sync.ConcurrentAccounts = 1

	report, err := New(cfg, up, nil).Run(context.Background(), []string{"bob", "zed"}, allKinds())
	require.NoError(t, err)
	require.Len(t, report.Accounts, 2)
	assert.Equal(t, OutcomeFailed, report.Accounts[0].Outcome)
	assert.Equal(t, OutcomeFailed, report.Accounts[1].Outcome)
	assert.ErrorIs(t, report.Accounts[1].Err, context.Canceled)
	assert.Equal(t, ExitFailure, report.ExitCode())
}

type recordingObserver struct {
	NopObserver
	mu       sync.Mutex
	started  []string
	finished []AccountReport
	media    int
	queued   int
}

func (r *recordingObserver) AccountStarted(account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, account)
}

func (r *recordingObserver) MediaQueued(_ string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued += total
}

func (r *recordingObserver) AccountFinished(rep AccountReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, rep)
}

func TestRun_ObserverEvents(t *testing.T) {
	up := newFakeUpstream()
	up.addAccount("alice", "1001")
	up.publish("alice", 1, archive.KindPhoto, archive.KindPhoto)
	obs := &recordingObserver{}

	orch := New(testConfig(t), up, nil)
	orch.SetObserver(obs)
	_, err := orch.Run(context.Background(), []string{"alice"}, allKinds())
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, obs.started)
	assert.Equal(t, 2, obs.queued)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, OutcomeSuccess, obs.finished[0].Outcome)
}

func TestEnabledKinds(t *testing.T) {
	kinds := EnabledKinds(config.DownloadConfig{Photos: true, AnimatedImages: true})
	assert.True(t, kinds.Has(archive.KindPhoto))
	assert.False(t, kinds.Has(archive.KindVideo))
	assert.True(t, kinds.Has(archive.KindAnimatedImage))
}

func TestNormalizeAccounts(t *testing.T) {
	accounts, invalid := NormalizeAccounts([]string{"@Alice", "alice", " bob ", "", "bad handle!"})
	assert.Equal(t, []string{"alice", "bob"}, accounts)
	assert.Equal(t, []string{"bad handle!"}, invalid)
}
