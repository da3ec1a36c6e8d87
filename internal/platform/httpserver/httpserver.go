package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults for this project. WriteTimeout is
// generous because transfer execution blocks on chain confirmation (up to the
// configured receipt timeout) before responding.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      150 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
