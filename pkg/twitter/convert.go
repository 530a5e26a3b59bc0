package twitter

import (
	"strconv"
	"strings"
	"time"

	"twarchive/pkg/archive"
	errs "twarchive/pkg/errors"
)

// TimelinePage is one converted page of posts plus its continuation cursor.
// Posts keep upstream order, newest first.
type TimelinePage struct {
	Posts []archive.Post
	// NextToken is empty on the last page
	NextToken string
	// Received counts every entry the upstream returned, retweets included
	Received int
	Rate     RateStatus
}

// convertPage turns the wire page into archive posts. Retweets are dropped;
// the request already excludes them, so this only guards against upstream drift.
func convertPage(body *timelineResponse) (*TimelinePage, error) {
	media := make(map[string]Media, len(body.Includes.Media))
	for _, m := range body.Includes.Media {
		media[m.MediaKey] = m
	}

	page := &TimelinePage{
		Posts:     make([]archive.Post, 0, len(body.Data)),
		NextToken: body.Meta.NextToken,
		Received:  len(body.Data),
	}
	for _, t := range body.Data {
		if isRetweet(t) {
			continue
		}
		post, err := convertTweet(t, media)
		if err != nil {
			return nil, err
		}
		page.Posts = append(page.Posts, post)
	}
	return page, nil
}

func isRetweet(t Tweet) bool {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}

func convertTweet(t Tweet, media map[string]Media) (archive.Post, error) {
	id, err := strconv.ParseUint(t.ID, 10, 64)
	if err != nil {
		return archive.Post{}, errs.New(errs.ErrorTypeParsing, 0, "invalid post id %q", t.ID)
	}

	var ts time.Time
	if t.CreatedAt != "" {
		ts, err = time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			return archive.Post{}, errs.New(errs.ErrorTypeParsing, 0, "invalid created_at %q on post %s", t.CreatedAt, t.ID)
		}
		ts = ts.UTC()
	}

	post := archive.Post{
		ID:        id,
		Timestamp: ts,
		Author:    t.AuthorID,
		Text:      t.Text,
		Media:     []archive.MediaRef{},
	}
	if t.Attachments == nil {
		return post, nil
	}
	for _, key := range t.Attachments.MediaKeys {
		m, ok := media[key]
		if !ok {
			continue
		}
		if ref, ok := mediaRef(m); ok {
			post.Media = append(post.Media, ref)
		}
	}
	return post, nil
}

// mediaRef resolves the best downloadable URL of an attachment: the original
// photo, or the highest bitrate mp4 variant of a video or animated image.
func mediaRef(m Media) (archive.MediaRef, bool) {
	kind, err := archive.ParseMediaKind(m.Type)
	if err != nil {
		return archive.MediaRef{}, false
	}

	var src string
	switch kind {
	case archive.KindPhoto:
		src = m.URL
	case archive.KindVideo, archive.KindAnimatedImage:
		src = bestVariant(m.Variants)
	}
	if src == "" {
		return archive.MediaRef{}, false
	}
	return archive.MediaRef{Kind: kind, URL: src, Status: archive.StatusPending}, true
}

func bestVariant(variants []Variant) string {
	best := -1
	url := ""
	for _, v := range variants {
		if !strings.EqualFold(v.ContentType, "video/mp4") || v.URL == "" {
			continue
		}
		if v.BitRate > best {
			best = v.BitRate
			url = v.URL
		}
	}
	return url
}
