package syncer

import "twarchive/internal/downloader"

// Observer receives progress events. Calls may arrive concurrently from
// different accounts.
type Observer interface {
	AccountStarted(account string)
	PostsFetched(account string, fetched int)
	MediaQueued(account string, total int)
	MediaFinished(account string, res downloader.Result)
	AccountFinished(report AccountReport)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) AccountStarted(string)                   {}
func (NopObserver) PostsFetched(string, int)                {}
func (NopObserver) MediaQueued(string, int)                 {}
func (NopObserver) MediaFinished(string, downloader.Result) {}
func (NopObserver) AccountFinished(AccountReport)           {}
