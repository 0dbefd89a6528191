// Package handler provides the HTTP handlers of the engagement API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"menu-engagement/internal/apperr"
	"menu-engagement/internal/middleware"
	"menu-engagement/internal/model"
	"menu-engagement/internal/service"
)

const maxBodyBytes = 1 << 20

// Engagement is implemented by *service.EngagementService.
type Engagement interface {
	AwardVisit(ctx context.Context, in service.VisitInput) (*service.VisitResult, error)
	AwardReview(ctx context.Context, in service.ReviewInput) (*service.ReviewResult, error)
	GetProfile(ctx context.Context, email string) (*model.Diner, error)
	UpdateProfile(ctx context.Context, email string, upd service.ProfileUpdate) (*service.CompletionResult, error)
	CheckProfileCompletion(ctx context.Context, email string) (*service.CompletionResult, error)
}

// Leaderboard is implemented by *service.LeaderboardService.
type Leaderboard interface {
	ManagePeriods(ctx context.Context) ([]service.Action, error)
	CurrentStandings(ctx context.Context, limit int) (*service.CurrentLeaderboard, error)
	ListPeriods(ctx context.Context, limit int) ([]model.LeaderboardPeriod, error)
}

// Notifications is implemented by *service.NotificationService.
type Notifications interface {
	Unseen(ctx context.Context, email string) ([]model.WinNotification, error)
	History(ctx context.Context, email string) ([]model.WinNotification, error)
	MarkSeen(ctx context.Context, email string, periodID int64) (bool, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves the engagement API.
type Handler struct {
	engagement    Engagement
	leaderboard   Leaderboard
	notifications Notifications
	health        HealthChecker
	validate      *validator.Validate
}

// New creates a new Handler. health may be nil.
func New(engagement Engagement, leaderboard Leaderboard, notifications Notifications, health HealthChecker) *Handler {
	v := validator.New()
	// report json names in validation messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		engagement:    engagement,
		leaderboard:   leaderboard,
		notifications: notifications,
		health:        health,
		validate:      v,
	}
}

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity returns the authenticated caller or writes a 401.
func identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, r, apperr.Unauthorized("a bearer token is required"))
		return middleware.Identity{}, false
	}
	return id, true
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("request body is too large")
		}
		return apperr.Validation("request body is not valid JSON: " + err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns validator errors into one readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid request")
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "url", "http_url":
			msgs = append(msgs, field+" must be a valid URL")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return apperr.Validation(strings.Join(msgs, "; "))
}

// queryLimit reads an optional positive ?limit= parameter; 0 means default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.Validation("limit must be a positive integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	ae := apperr.Write(w, err, reqID)
	if ae.Status() >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", reqID).Str("path", r.URL.Path).Msg("Request failed")
	}
}
