package twitter

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the public API host
	BaseURL = "https://api.twitter.com"

	// UserByUsernameEndpoint resolves a handle to a numeric user id
	UserByUsernameEndpoint = "/2/users/by/username/%s"

	// UserTweetsEndpoint lists a user's timeline, newest first
	UserTweetsEndpoint = "/2/users/%s/tweets"

	// MaxPageSize is the largest max_results the timeline endpoint accepts
	MaxPageSize = 100

	// MinPageSize is the smallest max_results the timeline endpoint accepts
	MinPageSize = 5

	tweetFields = "created_at,referenced_tweets,author_id,attachments"
	mediaFields = "url,type,media_key,variants,preview_image_url"
)

// PageOptions selects one page of a user timeline
type PageOptions struct {
	// MaxResults is clamped into [MinPageSize, MaxPageSize]
	MaxResults int
	// PaginationToken is the opaque cursor from the previous page
	PaginationToken string
	// SinceID restricts results to posts newer than this id when non-zero
	SinceID uint64
}

// UserByUsernameURL builds the user lookup URL
func UserByUsernameURL(baseURL, handle string) string {
	params := url.Values{}
	params.Set("user.fields", "protected")
	return fmt.Sprintf("%s"+UserByUsernameEndpoint+"?%s", baseURL, url.PathEscape(handle), params.Encode())
}

// UserTweetsURL builds the timeline page URL. Retweets are excluded upstream.
func UserTweetsURL(baseURL, userID string, opts PageOptions) string {
	limit := opts.MaxResults
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	} else if limit < MinPageSize {
		limit = MinPageSize
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("exclude", "retweets")
	params.Set("expansions", "attachments.media_keys")
	params.Set("tweet.fields", tweetFields)
	params.Set("media.fields", mediaFields)
	if opts.PaginationToken != "" {
		params.Set("pagination_token", opts.PaginationToken)
	}
	if opts.SinceID > 0 {
		params.Set("since_id", strconv.FormatUint(opts.SinceID, 10))
	}

	return fmt.Sprintf("%s"+UserTweetsEndpoint+"?%s", baseURL, url.PathEscape(userID), params.Encode())
}
