// Package query implements archive browsing over a manifest: free-text
// search, media kind filtering, ordering by post id and fixed-size paging.
package query
