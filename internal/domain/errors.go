package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrRateLimited: venue asked us to back off. Honored, not counted as a
	// failure.
	ErrRateLimited = errors.New("rate limited")
	// ErrVenueUnavailable: network error, 5xx, or timeout. Retried with
	// backoff up to a bounded attempt count.
	ErrVenueUnavailable = errors.New("venue unavailable")
	// ErrRejected: the venue declined the order or bet. Terminal for that
	// leg, never retried.
	ErrRejected = errors.New("order rejected")
	// ErrStaleData: snapshot older than its freshness bound. Discarded; a
	// fresh fetch happens next cycle.
	ErrStaleData = errors.New("stale data")
	// ErrThrottled: the venue is flagged as throttled/banned and excluded
	// from rotation until manually cleared.
	ErrThrottled = errors.New("venue throttled")
	// ErrKillSwitch: the pipeline is halted; no new opportunities accepted
	// until explicitly reset.
	ErrKillSwitch   = errors.New("kill switch engaged")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
