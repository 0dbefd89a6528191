package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"menu-engagement/internal/apperr"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() Claims {
	return Claims{
		Email: "Ana@Example.com",
		Name:  "Ana",
		Role:  "diner",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderXRequestID))
}

func TestVerifier(t *testing.T) {
	v, err := NewVerifier(testSecret, "idp")
	require.NoError(t, err)

	id, err := v.Verify(signToken(t, validClaims(), testSecret))
	require.NoError(t, err)
	assert.Equal(t, Identity{Email: "ana@example.com", Name: "Ana", Role: "diner"}, id)

	tests := []struct {
		name   string
		mutate func(*Claims)
		secret string
	}{
		{"wrong secret", func(*Claims) {}, "other"},
		{"expired", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) }, testSecret},
		{"no expiry", func(c *Claims) { c.ExpiresAt = nil }, testSecret},
		{"wrong issuer", func(c *Claims) { c.Issuer = "elsewhere" }, testSecret},
		{"no email", func(c *Claims) { c.Email = " " }, testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(&claims)
			_, err := v.Verify(signToken(t, claims, tt.secret))
			assert.Error(t, err)
		})
	}

	_, err = NewVerifier("", "")
	assert.Error(t, err)
}

func TestVerifier_RejectsOtherAlgorithms(t *testing.T) {
	v, err := NewVerifier(testSecret, "")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims()).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	v, err := NewVerifier(testSecret, "")
	require.NoError(t, err)

	var got Identity
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	diner := RequestID(Authenticate(v)(ok))
	admin := RequestID(Authenticate(v)(RequireRole("admin")(ok)))

	send := func(h http.Handler, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send(diner, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body apperr.Body
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperr.KindUnauthorized, body.Error)
	assert.NotEmpty(t, body.RequestID)

	assert.Equal(t, http.StatusUnauthorized, send(diner, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, send(diner, "Bearer not-a-jwt").Code)

	dinerToken := signToken(t, validClaims(), testSecret)
	assert.Equal(t, http.StatusNoContent, send(diner, "Bearer "+dinerToken).Code)
	assert.Equal(t, "ana@example.com", got.Email)

	assert.Equal(t, http.StatusForbidden, send(admin, "Bearer "+dinerToken).Code)

	adminClaims := validClaims()
	adminClaims.Role = "admin"
	assert.Equal(t, http.StatusNoContent, send(admin, "bearer "+signToken(t, adminClaims, testSecret)).Code)
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	h := RequestID(Recover(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.Contains(t, buf.String(), "boom")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	h := RequestID(RequestLogger(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/visits", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "/api/visits", line["path"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.NotEmpty(t, line["request_id"])
}
