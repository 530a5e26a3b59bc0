package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twarchive/pkg/archive"
	"twarchive/pkg/query"
)

func TestListAccountsAndPage(t *testing.T) {
	store := archive.NewStore(t.TempDir(), "tweets.json", nil)

	m := archive.NewManifest("alice")
	m, _ = archive.Merge(m, []archive.Post{
		{
			ID:        20,
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Author:    "alice",
			Text:      "launch day",
			Media: []archive.MediaRef{
				{Kind: archive.KindPhoto, URL: "https://pbs.example/a.jpg", Status: archive.StatusDownloaded, FileName: "20_0.jpg"},
				{Kind: archive.KindVideo, URL: "https://video.example/b.mp4", Status: archive.StatusPending},
			},
		},
		{ID: 10, Timestamp: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC), Author: "alice", Text: "hello"},
	})
	require.NoError(t, store.Commit(context.Background(), m))

	var out bytes.Buffer
	require.NoError(t, listAccounts(&out, store))
	assert.Contains(t, out.String(), "@alice")
	assert.Contains(t, out.String(), "2 posts")

	out.Reset()
	printPage(&out, m, query.Apply(m, query.Filter{Search: "LAUNCH"}))
	assert.Contains(t, out.String(), "1 matching posts, page 1/1")
	assert.Contains(t, out.String(), "20_0.jpg")
	assert.Contains(t, out.String(), "pending: https://video.example/b.mp4")
	assert.NotContains(t, out.String(), "hello")
}

func TestBuildFilter(t *testing.T) {
	t.Cleanup(func() { listHas, listOrder = "", "desc" })

	listHas, listOrder = "gif", "asc"
	f, err := buildFilter()
	require.NoError(t, err)
	require.NotNil(t, f.Has)
	assert.Equal(t, archive.KindAnimatedImage, *f.Has)
	assert.Equal(t, query.Ascending, f.Order)

	listHas = "audio"
	_, err = buildFilter()
	assert.Error(t, err)
}

func TestListAccountsEmptyArchive(t *testing.T) {
	store := archive.NewStore(t.TempDir(), "", nil)
	var out bytes.Buffer
	require.NoError(t, listAccounts(&out, store))
	assert.Contains(t, out.String(), "No archived accounts")
}
