// Package middleware provides the HTTP middleware shared by all routes.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderXRequestID carries the request id in both directions.
const HeaderXRequestID = "X-Request-Id"

type ctxKeyRequestID struct{}

// RequestID reuses the caller's request id or generates one, echoes it in
// the response and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderXRequestID)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}

		w.Header().Set(HeaderXRequestID, reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored by RequestID.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if reqID, ok := ctx.Value(ctxKeyRequestID{}).(string); ok {
		return reqID
	}
	return ""
}
