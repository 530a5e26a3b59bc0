// Package downloader fetches post media through a bounded worker pool.
package downloader
