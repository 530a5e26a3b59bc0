// Package ratelimit provides client side limiters for upstream requests.
//
// SlidingWindow matches the upstream's per-window request quota and guards
// timeline page requests. TokenBucket spreads media downloads. Both honor
// context cancellation in Wait and can be paused until a reset time the
// upstream reported.
package ratelimit
