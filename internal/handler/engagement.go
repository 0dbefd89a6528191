package handler

import (
	"net/http"

	"menu-engagement/internal/service"
)

type visitRequest struct {
	RestaurantID string `json:"restaurant_id" validate:"required,max=100"`
}

type reviewRequest struct {
	RestaurantID string `json:"restaurant_id" validate:"required,max=100"`
	// range checked by the engagement service
	Rating    int      `json:"rating"`
	Text      string   `json:"text" validate:"max=5000"`
	PhotoURLs []string `json:"photo_urls" validate:"max=10,dive,http_url"`
}

type profileRequest struct {
	DisplayName       *string `json:"display_name" validate:"omitempty,max=255"`
	PhotoURL          *string `json:"photo_url" validate:"omitempty,http_url,max=2048"`
	Bio               *string `json:"bio" validate:"omitempty,max=1000"`
	DietaryPreference *string `json:"dietary_preference" validate:"omitempty,max=100"`
	Location          *string `json:"location" validate:"omitempty,max=255"`
}

// LogVisit handles POST /api/visits.
func (h *Handler) LogVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req visitRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.engagement.AwardVisit(r.Context(), service.VisitInput{
		Email:        id.Email,
		DisplayName:  id.Name,
		RestaurantID: req.RestaurantID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// SubmitReview handles POST /api/reviews.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.engagement.AwardReview(r.Context(), service.ReviewInput{
		Email:        id.Email,
		DisplayName:  id.Name,
		RestaurantID: req.RestaurantID,
		Rating:       req.Rating,
		Text:         req.Text,
		PhotoURLs:    req.PhotoURLs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetProfile handles GET /api/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	d, err := h.engagement.GetProfile(r.Context(), id.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// UpdateProfile handles PUT /api/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.engagement.UpdateProfile(r.Context(), id.Email, service.ProfileUpdate{
		DisplayName:       req.DisplayName,
		PhotoURL:          req.PhotoURL,
		Bio:               req.Bio,
		DietaryPreference: req.DietaryPreference,
		Location:          req.Location,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CheckCompletion handles POST /api/profile/completion.
func (h *Handler) CheckCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	res, err := h.engagement.CheckProfileCompletion(r.Context(), id.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
