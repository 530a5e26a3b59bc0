// Package storage writes downloaded media into an account directory.
//
// Files are written under a ".part" name and renamed once complete, so an
// interrupted download never leaves a file that IsDownloaded would accept.
package storage
