// Package shared holds the request plumbing every resource handler repeats:
// reading the caller, parsing path ids and logging failed requests.
package shared

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealroom/internal/identity"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/httputil"
	"dealroom/pkg/requestcontext"
)

// Caller returns the identity placed on the request by RequireAuth. A missing
// identity means the route was mounted without the middleware.
func Caller(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (identity.Identity, bool) {
	who, err := identity.FromContext(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "identity missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
			"path", r.URL.Path,
		)
		httputil.WriteError(w, err)
		return identity.Identity{}, false
	}
	return who, true
}

// PathID parses the chi URL parameter name with parse, writing the failure.
func PathID[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string, parse func(string) (T, error)) (T, bool) {
	v, err := parse(chi.URLParam(r, name))
	if err != nil {
		WriteError(w, r, logger, "invalid "+name, err)
		var zero T
		return zero, false
	}
	return v, true
}

// WriteError logs err and writes it. Caller mistakes log at warn.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		logger.ErrorContext(ctx, msg, attrs...)
	} else {
		logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
