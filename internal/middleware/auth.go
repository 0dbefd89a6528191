package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"menu-engagement/internal/apperr"
)

// Identity is the authenticated caller.
type Identity struct {
	Email string
	Name  string
	Role  string
}

// Claims are the identity provider token claims this service reads.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type ctxKeyIdentity struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, id)
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return id, ok
}

// Verifier checks HS256 tokens issued by the identity provider.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify parses and validates a token and returns the caller identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return Identity{}, errors.New("invalid token: email claim is required")
	}
	return Identity{Email: email, Name: strings.TrimSpace(claims.Name), Role: claims.Role}, nil
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				apperr.Write(w, apperr.Unauthorized("a bearer token is required"), GetRequestID(r.Context()))
				return
			}

			id, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				log.Debug().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("Rejected bearer token")
				apperr.Write(w, apperr.Unauthorized("the bearer token is invalid or expired"), GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects authenticated callers without role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				apperr.Write(w, apperr.Unauthorized("a bearer token is required"), GetRequestID(r.Context()))
				return
			}
			if id.Role != role {
				log.Warn().
					Str("email", id.Email).
					Str("path", r.URL.Path).
					Msg("Non-admin attempted admin operation")
				apperr.Write(w, apperr.Forbidden("this operation requires the "+role+" role"), GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
