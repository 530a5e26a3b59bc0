package timeline

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"twarchive/pkg/archive"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
	"twarchive/pkg/ratelimit"
	"twarchive/pkg/retry"
	"twarchive/pkg/twitter"
)

// fakeTimeline serves a history of posts with ids total..1, newest first.
// failures maps a 1-based call number to the error returned for that call.
type fakeTimeline struct {
	mu       sync.Mutex
	total    int
	calls    []twitter.PageOptions
	failures map[int]error
	photoIDs map[uint64]bool
}

func (f *fakeTimeline) FetchTimelinePage(ctx context.Context, userID string, opts twitter.PageOptions) (*twitter.TimelinePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if err, ok := f.failures[len(f.calls)]; ok {
		return nil, err
	}

	start := f.total
	if opts.PaginationToken != "" {
		start, _ = strconv.Atoi(opts.PaginationToken)
	}
	size := opts.MaxResults
	if size < twitter.MinPageSize {
		size = twitter.MinPageSize
	}

	page := &twitter.TimelinePage{}
	id := start
	for ; id > 0 && len(page.Posts) < size; id-- {
		if uint64(id) <= opts.SinceID {
			break
		}
		p := archive.Post{ID: uint64(id), Text: "post " + strconv.Itoa(id), Media: []archive.MediaRef{}}
		if f.photoIDs[uint64(id)] {
			p.Media = append(p.Media, archive.MediaRef{Kind: archive.KindPhoto, URL: "https://x/" + strconv.Itoa(id) + ".jpg", Status: archive.StatusPending})
		}
		page.Posts = append(page.Posts, p)
	}
	page.Received = len(page.Posts)
	if id > 0 && uint64(id) > opts.SinceID {
		page.NextToken = strconv.Itoa(id)
	}
	return page, nil
}

func newFetcher(client PageFetcher, ceiling int) *Fetcher {
	cfg := &retry.Config{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     retry.DefaultRetryIf,
	}
	return NewFetcher(client, ratelimit.Unlimited{}, cfg, Options{PageSize: 100, Ceiling: ceiling}, logger.NewNopLogger())
}

func TestFetchStopsExactlyAtCeiling(t *testing.T) {
	fake := &fakeTimeline{total: 5000}
	res := newFetcher(fake, 3200).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})

	require.NoError(t, res.Err)
	assert.Equal(t, StatusTruncated, res.Status)
	assert.Len(t, res.Posts, 3200)
	assert.Equal(t, 32, res.Pages)
	assert.Equal(t, uint64(5000), res.Posts[0].ID)
	assert.Equal(t, uint64(1801), res.Posts[3199].ID)
}

func TestFetchCeilingNotMultipleOfPageSize(t *testing.T) {
	fake := &fakeTimeline{total: 1000}
	res := newFetcher(fake, 250).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})

	assert.Equal(t, StatusTruncated, res.Status)
	assert.Len(t, res.Posts, 250)
	assert.Equal(t, 50, fake.calls[2].MaxResults, "last page only asks for what remains")
}

func TestFetchSmallRemainderNeverOvershoots(t *testing.T) {
	fake := &fakeTimeline{total: 50}
	res := newFetcher(fake, 102).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})
	assert.Len(t, res.Posts, 50)
	assert.Equal(t, StatusCompleted, res.Status)

	fake = &fakeTimeline{total: 500}
	res = newFetcher(fake, 102).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})
	assert.Len(t, res.Posts, 102, "a page clamped up to the minimum size is trimmed")
	assert.Equal(t, StatusTruncated, res.Status)
}

func TestFetchHistoryExactlyAtCeilingCompletes(t *testing.T) {
	fake := &fakeTimeline{total: 200}
	res := newFetcher(fake, 200).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, res.Posts, 200)
}

func TestFetchEndOfHistory(t *testing.T) {
	fake := &fakeTimeline{total: 5, photoIDs: map[uint64]bool{5: true, 3: true, 1: true}}
	res := newFetcher(fake, 3200).Fetch(context.Background(), Request{
		Account: "alice",
		UserID:  "1",
		Kinds:   archive.NewKindSet(archive.KindPhoto),
	})

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, res.Posts, 5)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 3, res.Eligible)
	for _, p := range res.Posts {
		assert.Equal(t, "alice", p.Author)
	}
}

func TestFetchResumeBoundary(t *testing.T) {
	fake := &fakeTimeline{total: 306}
	res := newFetcher(fake, 3200).Fetch(context.Background(), Request{Account: "alice", UserID: "1", ResumeBoundary: 300})

	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Posts, 6)
	assert.Equal(t, uint64(301), res.Posts[5].ID)
	assert.Equal(t, uint64(300), fake.calls[0].SinceID)
}

// boundaryIgnoringTimeline ignores since_id, so the client side cutoff must apply
type boundaryIgnoringTimeline struct{ fakeTimeline }

func (b *boundaryIgnoringTimeline) FetchTimelinePage(ctx context.Context, userID string, opts twitter.PageOptions) (*twitter.TimelinePage, error) {
	opts.SinceID = 0
	return b.fakeTimeline.FetchTimelinePage(ctx, userID, opts)
}

func TestFetchDiscardsPostsAtOrBelowBoundary(t *testing.T) {
	fake := &boundaryIgnoringTimeline{fakeTimeline{total: 1000}}
	res := newFetcher(fake, 3200).Fetch(context.Background(), Request{Account: "alice", UserID: "1", ResumeBoundary: 950})

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, res.Posts, 50)
	for _, p := range res.Posts {
		assert.Greater(t, p.ID, uint64(950))
	}
	assert.Equal(t, 1, res.Pages, "fetching stops at the overlap")
}

func TestFetchRetriesSamePageOnRateLimit(t *testing.T) {
	fake := &fakeTimeline{
		total: 250,
		failures: map[int]error{
			2: errs.New(errs.ErrorTypeRateLimit, 429, "slow down"),
		},
	}
	res := newFetcher(fake, 3200).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})

	require.NoError(t, res.Err)
	assert.Len(t, res.Posts, 250)
	require.Len(t, fake.calls, 4)
	assert.Equal(t, fake.calls[1].PaginationToken, fake.calls[2].PaginationToken, "retry must reuse the cursor")
	assert.Equal(t, "150", fake.calls[2].PaginationToken)
}

func TestFetchAbortsAfterBudgetKeepsPartialPosts(t *testing.T) {
	rl := errs.New(errs.ErrorTypeServerError, 503, "down")
	fake := &fakeTimeline{
		total:    500,
		failures: map[int]error{2: rl, 3: rl, 4: rl},
	}
	res := newFetcher(fake, 3200).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})

	assert.Equal(t, StatusFailed, res.Status)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, retry.ErrExhausted)
	assert.Len(t, res.Posts, 100)
	assert.Equal(t, 1, res.Pages)
}

func TestFetchAuthErrorIsNotRetried(t *testing.T) {
	fake := &fakeTimeline{
		total:    500,
		failures: map[int]error{1: errs.New(errs.ErrorTypeAuth, 401, "bad token")},
	}
	res := newFetcher(fake, 3200).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})

	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeAuth))
	assert.Len(t, fake.calls, 1)
	assert.Empty(t, res.Posts)
}

func TestFetchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeTimeline{total: 500}
	res := newFetcher(fake, 3200).Fetch(ctx, Request{Account: "alice", UserID: "1"})
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, fake.calls)
}

type loopingTimeline struct{}

func (loopingTimeline) FetchTimelinePage(ctx context.Context, userID string, opts twitter.PageOptions) (*twitter.TimelinePage, error) {
	return &twitter.TimelinePage{NextToken: "same"}, nil
}

func TestFetchDetectsCursorLoop(t *testing.T) {
	res := newFetcher(loopingTimeline{}, 3200).Fetch(context.Background(), Request{Account: "alice", UserID: "1"})
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrCursorLoop)
	assert.Equal(t, 2, res.Pages)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "truncated-by-ceiling", StatusTruncated.String())
	assert.Equal(t, "error", StatusFailed.String())
}
