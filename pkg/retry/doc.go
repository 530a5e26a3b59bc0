// Package retry provides bounded exponential backoff for transient upstream failures.
//
// Every call carries a context so an interrupt stops both the operation and any
// pending backoff wait. Errors from pkg/errors decide retryability, and a
// rate limit error carrying a Retry-After hint waits for that hint instead of
// the computed backoff.
//
//	page, err := retry.DoWithResult(ctx, func(ctx context.Context) (*Page, error) {
//		return client.FetchTimelinePage(ctx, userID, opts)
//	}, retry.FromConfig(cfg.Retry, log))
package retry
