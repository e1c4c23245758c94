// Package ratelimit throttles writes per caller with a sliding window. It
// guards the workflow endpoints against scripted bursts, e.g. a buyer
// proposing interest on every approved listing in a loop.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest counted request leaves the window.
	ResetAt time.Time
}

// Store counts requests per key inside a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}
