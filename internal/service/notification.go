package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"menu-engagement/internal/apperr"
	"menu-engagement/internal/model"
	"menu-engagement/internal/repository"
)

// NotificationService delivers period win notifications to diners.
type NotificationService struct {
	diners        DinerStore
	notifications NotificationStore
}

// NewNotificationService creates a new NotificationService instance.
func NewNotificationService(diners DinerStore, notifications NotificationStore) *NotificationService {
	return &NotificationService{diners: diners, notifications: notifications}
}

// Unseen returns the diner's wins not yet marked seen, most recent first.
// A diner without a profile has no wins.
func (s *NotificationService) Unseen(ctx context.Context, email string) ([]model.WinNotification, error) {
	return s.list(ctx, email, s.notifications.Unseen)
}

// History returns all of the diner's wins, most recent first.
func (s *NotificationService) History(ctx context.Context, email string) ([]model.WinNotification, error) {
	return s.list(ctx, email, s.notifications.History)
}

func (s *NotificationService) list(
	ctx context.Context,
	email string,
	query func(context.Context, int64) ([]model.WinNotification, error),
) ([]model.WinNotification, error) {
	diner, err := s.diners.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrDinerNotFound) {
			return []model.WinNotification{}, nil
		}
		return nil, fmt.Errorf("failed to get diner: %w", err)
	}

	notifications, err := query(ctx, diner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	if notifications == nil {
		notifications = []model.WinNotification{}
	}
	return notifications, nil
}

// MarkSeen marks the diner's win for periodID as seen. It is idempotent and
// returns false only when the diner has no win for that period.
func (s *NotificationService) MarkSeen(ctx context.Context, email string, periodID int64) (bool, error) {
	if periodID <= 0 {
		return false, apperr.Validation("period id must be positive")
	}

	diner, err := s.diners.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrDinerNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get diner: %w", err)
	}

	ok, err := s.notifications.MarkSeen(ctx, diner.ID, periodID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification seen: %w", err)
	}
	if ok {
		log.Debug().Int64("diner_id", diner.ID).Int64("period_id", periodID).Msg("Win notification seen")
	}
	return ok, nil
}
