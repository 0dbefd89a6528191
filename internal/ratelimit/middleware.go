package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// tokenSuffixLen is how much of a bearer credential identifies its caller.
const tokenSuffixLen = 16

var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "Admission decisions by policy and outcome",
	},
	[]string{"policy", "outcome"},
)

// KeyFromRequest derives the caller identity. Credential keys are prefixed
// "token:" and address keys "ip:" so the two never collide.
func KeyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "bearer") {
			token = strings.TrimSpace(token)
			if token != "" {
				if len(token) > tokenSuffixLen {
					token = token[len(token)-tokenSuffixLen:]
				}
				return "token:" + token
			}
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}

	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return "ip:" + host
	}

	return "ip:unknown"
}

// Rejection is the 429 response body.
type Rejection struct {
	Status            int    `json:"status"`
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

// Middleware gates requests through l. Store failures admit the request.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	policy := l.Policy().Name
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := KeyFromRequest(r)

			d, err := l.CheckAndConsume(r.Context(), key)
			if err != nil {
				decisionsTotal.WithLabelValues(policy, "error").Inc()
				log.Error().Err(err).Str("policy", policy).Msg("Rate limiter unavailable, admitting request")
				next.ServeHTTP(w, r)
				return
			}

			WriteHeaders(w, d)

			if !d.Allowed {
				decisionsTotal.WithLabelValues(policy, "denied").Inc()
				log.Warn().
					Str("policy", policy).
					Str("key", key).
					Int("retry_after", d.RetryAfterSeconds).
					Msg("Request rate limited")
				WriteRejection(w, d)
				return
			}

			decisionsTotal.WithLabelValues(policy, "allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteHeaders sets the X-RateLimit-* headers, and Retry-After on denial.
func WriteHeaders(w http.ResponseWriter, d Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
	}
}

// WriteRejection writes the structured 429 body for a denied Decision.
func WriteRejection(w http.ResponseWriter, d Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(Rejection{
		Status:            http.StatusTooManyRequests,
		Error:             "rate_limited",
		Message:           d.Message,
		RetryAfterSeconds: d.RetryAfterSeconds,
	})
}
