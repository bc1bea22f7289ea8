package middleware

import (
	"net/http"
)

// captureWriter wraps http.ResponseWriter to capture and expose the status
// code written by a handler.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code, and then calls the wrapped response
// writer method.
func (cw *captureWriter) WriteHeader(statusCode int) {
	cw.statusCode = statusCode
	cw.ResponseWriter.WriteHeader(statusCode)
}
