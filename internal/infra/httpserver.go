package infra

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer wraps http.Server for the studio API. The write timeout stays at
// zero unless configured: the /api/events SSE stream is a response that never
// finishes, and a global write deadline would sever every subscriber mid-run.
type HTTPServer struct {
	server *http.Server
	logger zerolog.Logger
}

// NewHTTPServer builds the server around the router with the configured
// timeouts.
func NewHTTPServer(cfg *Config, logger zerolog.Logger, handler http.Handler) *HTTPServer {
	if cfg.HTTPWriteTimeout > 0 {
		logger.Warn().
			Dur("write_timeout", cfg.HTTPWriteTimeout).
			Msg("infra: write timeout set, event stream connections will be cut at this age")
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	return &HTTPServer{server: srv, logger: logger}
}

// Addr returns the listen address.
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start serves until Shutdown is called or the listener fails.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("infra: http server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests. Open SSE streams hold their connections
// until the ctx deadline, which is why callers pass a bounded one.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("infra: http server shutting down")
	return s.server.Shutdown(ctx)
}
