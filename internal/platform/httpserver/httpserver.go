package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server for the consent API. Record payloads travel
// base64-encoded in JSON bodies, so the read and write timeouts allow for
// bulk uploads and multi-record retrievals, not just small control calls.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
