// Package syncer runs archive syncs across accounts.
//
// Each account is processed independently: its manifest is loaded, new posts
// are fetched down to the resume boundary, media is downloaded through a
// bounded pool, and the merged manifest is committed once every outcome is
// known. Accounts run in parallel up to the configured limit.
package syncer
