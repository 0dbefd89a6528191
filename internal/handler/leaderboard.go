package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"menu-engagement/internal/apperr"
	"menu-engagement/internal/service"
)

// CurrentLeaderboard handles GET /api/leaderboard/current.
func (h *Handler) CurrentLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.leaderboard.CurrentStandings(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListPeriods handles GET /api/leaderboard/periods.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	periods, err := h.leaderboard.ListPeriods(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": periods})
}

// ManagePeriods handles POST /api/admin/periods/manage.
func (h *Handler) ManagePeriods(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	actions, err := h.leaderboard.ManagePeriods(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []service.Action{}
	}
	log.Info().Str("admin", id.Email).Int("actions", len(actions)).Msg("Manual period management pass")
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// UnseenNotifications handles GET /api/notifications/unseen.
func (h *Handler) UnseenNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	list, err := h.notifications.Unseen(r.Context(), id.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// NotificationHistory handles GET /api/notifications/history.
func (h *Handler) NotificationHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	list, err := h.notifications.History(r.Context(), id.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// MarkNotificationSeen handles POST /api/notifications/{periodID}/seen.
func (h *Handler) MarkNotificationSeen(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	periodID, err := strconv.ParseInt(chi.URLParam(r, "periodID"), 10, 64)
	if err != nil || periodID <= 0 {
		writeError(w, r, apperr.Validation("period id must be a positive integer"))
		return
	}

	marked, err := h.notifications.MarkSeen(r.Context(), id.Email, periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": marked})
}
