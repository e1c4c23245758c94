// Package requestcontext carries the per-request caller, request ID and
// request instant through context so services and stores never import
// net/http. Middleware writes them; the sweep and tests pin the instant with
// WithTime so every transition in one unit shares it.
package requestcontext

import (
	"context"
	"time"

	id "dealroom/pkg/domain"
)

type key int

const (
	callerKey key = iota
	requestIDKey
	nowKey
)

type caller struct {
	userID id.UserID
	role   string
}

func WithIdentity(ctx context.Context, userID id.UserID, role string) context.Context {
	return context.WithValue(ctx, callerKey, caller{userID: userID, role: role})
}

// UserID is the nil ID for anonymous contexts.
func UserID(ctx context.Context) id.UserID {
	c, _ := ctx.Value(callerKey).(caller)
	return c.userID
}

func Role(ctx context.Context) string {
	c, _ := ctx.Value(callerKey).(caller)
	return c.role
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowKey, t)
}

// Now is the pinned request instant, or the wall clock for background work
// that never pinned one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(nowKey).(time.Time); ok {
		return t
	}
	return time.Now()
}
