// Package httpserver builds the process HTTP server.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

type Option func(*http.Server)

// WithWriteTimeout bounds handler execution plus response write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d > 0 {
			s.WriteTimeout = d
		}
	}
}

// WithErrorLog routes net/http internal errors through slog at WARN.
func WithErrorLog(logger *slog.Logger) Option {
	return func(s *http.Server) {
		if logger != nil {
			s.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
		}
	}
}

// New returns a server whose header and body read deadlines stay short
// because every auth request body is a small JSON document.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    16 << 10,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
