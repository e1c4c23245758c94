package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"dealroom/internal/identity"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/httputil"
	"dealroom/pkg/requestcontext"
)

// RequireAuth resolves the bearer token into an identity and places it on the
// request context. Missing or invalid tokens get a 401.
func RequireAuth(resolver identity.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "missing or invalid Authorization header"))
				return
			}

			who, err := resolver.Resolve(ctx, strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(ctx, who)))
		})
	}
}
