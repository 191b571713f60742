// Package dedup implements the duplicate-inbound-event filter of spec.md
// §7: a (messageId|eventId|interactionId, timestamp) TTL map with a
// ~5-minute expiry, so a webhook retry or a platform's at-least-once
// delivery never re-dispatches the same event twice.
package dedup

import "context"

// DefaultTTL is the expiry spec.md §7 names ("~5-minute expiry").
const DefaultTTL = 5 * 60 // seconds; the filter constructors multiply it by time.Second

// Filter records an event key the first time it is seen and reports
// whether it is a repeat. Implementations must be safe for concurrent use.
type Filter interface {
	// Seen records key if it is new, returning true if key was already
	// present (a duplicate) and false if this call recorded it.
	Seen(ctx context.Context, key string) (duplicate bool, err error)
}
