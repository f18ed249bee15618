package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	// writeTimeout covers a customer update: the 5s transaction budget plus
	// the status and volume reads around it.
	writeTimeout = 30 * time.Second
	idleTimeout  = 60 * time.Second
)

// New builds the kiosk API server. Request bodies are small JSON patches, so
// reads are cut off well before writes.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
