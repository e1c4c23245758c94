package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dealroom/internal/identity"
	"dealroom/pkg/platform/httputil"
	"dealroom/pkg/requestcontext"
)

type Middleware struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

// New limits each caller to limit writes per window. A limit of zero or less
// disables the middleware.
func New(store Store, limit int, window time.Duration, logger *slog.Logger) *Middleware {
	return &Middleware{store: store, limit: limit, window: window, logger: logger}
}

// LimitWrites throttles non-safe methods per authenticated caller. Reads pass
// through. It must run after RequireAuth. A failing store lets the request
// through: throttling is not worth an outage.
func (m *Middleware) LimitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 || isSafe(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		who, err := identity.FromContext(ctx)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		now := requestcontext.Now(ctx)
		res, err := m.store.Allow(ctx, "writes:"+who.ID.String(), m.limit, m.window, now)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"actor_id", who.ID,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			retry := max(int(res.ResetAt.Sub(now).Seconds()+0.999), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			m.logger.WarnContext(ctx, "write rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"actor_id", who.ID,
				"limit", res.Limit,
			)
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
				Error:            "rate_limited",
				ErrorDescription: "too many write requests, retry after " + strconv.Itoa(retry) + "s",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isSafe(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
