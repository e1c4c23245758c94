package httpserver

import (
	"net/http"
	"time"

	"dealroom/internal/platform/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New builds the API listener. Zero read or write timeouts fall back to one
// minute so a misconfigured deploy never runs unbounded.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       orDefault(cfg.ReadTimeout, time.Minute),
		WriteTimeout:      orDefault(cfg.WriteTimeout, time.Minute),
		IdleTimeout:       idleTimeout,
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
