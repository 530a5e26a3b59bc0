// Package twitter is a small client for the v2 timeline API.
//
// It resolves handles to user ids, fetches timeline pages with an opaque
// continuation cursor, and streams media files. Upstream failures are mapped
// to pkg/errors types; rate limit errors carry the reset delay the server sent.
//
//	client := twitter.NewClient(30*time.Second, token, log)
//	user, err := client.LookupUser(ctx, "alice")
//	page, err := client.FetchTimelinePage(ctx, user.ID, twitter.PageOptions{MaxResults: 100})
package twitter
