// Package middleware contains the net/http middleware applied to every
// request served by the dashboard.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDHeader is the request and response header carrying the request
	// ID.
	RequestIDHeader = "X-Request-ID"

	// RequestCtxKey is the context key under which the request ID is stored.
	RequestCtxKey = contextKey("requestID")
)

// RequestIDMiddleware adds a unique request ID to requests. An ID already
// present on the request is reused, else a random UUID is generated. The ID
// is echoed in the response and added to the request context.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, rid)
		ctx := context.WithValue(r.Context(), RequestCtxKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored in the context, or an empty string.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(RequestCtxKey).(string)
	return rid
}
