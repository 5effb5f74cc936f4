// Package httpserver builds the process's HTTP server with timeouts suited to
// a small synchronous JSON API.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server. Write and idle timeouts stay above the router's own
// 30s request timeout so the middleware deadline fires first.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
