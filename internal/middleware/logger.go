package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"menu-engagement/internal/apperr"
)

// RequestLogger logs one line per completed request.
func RequestLogger(l zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			event := l.Info()
			if ww.Status() >= 500 {
				event = l.Error()
			} else if ww.Status() >= 400 {
				event = l.Warn()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("request_id", GetRequestID(r.Context())).
				Str("ip", r.RemoteAddr).
				Msg("http_request")
		})
	}
}

// Recover turns a panic in a handler into a 500 response and logs it.
func Recover(l zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				l.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", GetRequestID(r.Context())).
					Msg("Recovered from panic in handler")
				apperr.Write(w, fmt.Errorf("panic: %v", rec), GetRequestID(r.Context()))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
