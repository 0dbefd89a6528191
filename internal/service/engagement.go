package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"menu-engagement/internal/apperr"
	"menu-engagement/internal/model"
	"menu-engagement/internal/pkg/lock"
	"menu-engagement/internal/repository"
	"menu-engagement/internal/scoring"
)

const (
	// dinerLockTimeout bounds how long an award waits behind another award
	// for the same diner in this process.
	dinerLockTimeout = 5 * time.Second
	// maxStreakRetries is how often a visit is recomputed after losing a
	// race with a visit recorded by another process.
	maxStreakRetries = 3
)

// VisitInput is a visit logged by a diner.
type VisitInput struct {
	Email        string
	DisplayName  string
	RestaurantID string
	// VisitedAt defaults to now.
	VisitedAt time.Time
}

// VisitResult is the outcome of AwardVisit.
type VisitResult struct {
	Visit         *model.Visit `json:"visit"`
	PointsEarned  int64        `json:"points_earned"`
	StreakBonus   int64        `json:"streak_bonus"`
	CurrentStreak int          `json:"current_streak"`
	LongestStreak int          `json:"longest_streak"`
}

// ReviewInput is a review submitted by a diner.
type ReviewInput struct {
	Email        string
	DisplayName  string
	RestaurantID string
	Rating       int
	Text         string
	PhotoURLs    []string
}

// ReviewResult is the outcome of AwardReview.
type ReviewResult struct {
	Review       *model.Review `json:"review"`
	PointsEarned int64         `json:"points_earned"`
}

// ProfileUpdate holds the profile fields to change. Nil fields are kept.
type ProfileUpdate struct {
	DisplayName       *string
	PhotoURL          *string
	Bio               *string
	DietaryPreference *string
	Location          *string
}

// CompletionResult is the outcome of a profile completion check.
type CompletionResult struct {
	Diner        *model.Diner `json:"profile"`
	Percentage   int          `json:"completion_percentage"`
	BonusAwarded bool         `json:"bonus_awarded"`
	BonusPoints  int64        `json:"bonus_points"`
}

// EngagementService converts diner actions into point awards.
type EngagementService struct {
	diners      DinerStore
	activity    ActivityStore
	visitPoints int64
	loc         *time.Location
	locks       *lock.KeyLock[int64]
	now         func() time.Time
}

// NewEngagementService creates a new EngagementService instance. Visit
// dates are taken as calendar days in loc.
func NewEngagementService(
	diners DinerStore,
	activity ActivityStore,
	visitPoints int64,
	loc *time.Location,
	opts ...Option,
) *EngagementService {
	if loc == nil {
		loc = time.UTC
	}
	o := applyOptions(opts)
	return &EngagementService{
		diners:      diners,
		activity:    activity,
		visitPoints: scoring.VisitPoints(visitPoints),
		loc:         loc,
		locks:       lock.New[int64](),
		now:         o.now,
	}
}

// AwardVisit records a visit and awards the visit points plus any streak bonus.
func (s *EngagementService) AwardVisit(ctx context.Context, in VisitInput) (*VisitResult, error) {
	if err := requireIdentity(in.Email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.RestaurantID) == "" {
		return nil, apperr.Validation("restaurant_id is required")
	}
	visitedAt := in.VisitedAt
	if visitedAt.IsZero() {
		visitedAt = s.now()
	}

	diner, err := s.diners.Upsert(ctx, in.Email, in.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve diner: %w", err)
	}

	var result *VisitResult
	err = s.withDinerLock(ctx, diner.ID, func() error {
		for attempt := 1; ; attempt++ {
			outcome := scoring.AdvanceStreak(scoring.Streak{
				Current:   diner.CurrentStreak,
				Longest:   diner.LongestStreak,
				LastVisit: diner.LastVisitDate,
			}, scoring.Day(visitedAt, s.loc))

			visit, err := s.activity.RecordVisit(ctx, repository.VisitRecord{
				DinerID:      diner.ID,
				RestaurantID: in.RestaurantID,
				VisitedAt:    visitedAt,
				Points:       s.visitPoints,
				StreakBonus:  outcome.Bonus,
				Streak: repository.StreakChange{
					PrevCurrent:   diner.CurrentStreak,
					PrevLastVisit: diner.LastVisitDate,
					Current:       outcome.Streak.Current,
					Longest:       outcome.Streak.Longest,
					LastVisit:     outcome.Streak.LastVisit,
				},
			})
			if errors.Is(err, repository.ErrStreakChanged) && attempt < maxStreakRetries {
				log.Debug().Int64("diner_id", diner.ID).Int("attempt", attempt).Msg("Streak changed concurrently, recomputing visit")
				if diner, err = s.diners.GetByID(ctx, diner.ID); err != nil {
					return fmt.Errorf("failed to reload diner: %w", err)
				}
				continue
			}
			if errors.Is(err, repository.ErrStreakChanged) {
				return apperr.Wrap(apperr.KindUnavailable, "The visit conflicted with another update, please retry.", err)
			}
			if err != nil {
				return fmt.Errorf("failed to record visit: %w", err)
			}

			result = &VisitResult{
				Visit:         visit,
				PointsEarned:  s.visitPoints + outcome.Bonus,
				StreakBonus:   outcome.Bonus,
				CurrentStreak: outcome.Streak.Current,
				LongestStreak: outcome.Streak.Longest,
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	pointsAwarded.WithLabelValues(model.ReasonVisit).Add(float64(s.visitPoints))
	if result.StreakBonus > 0 {
		pointsAwarded.WithLabelValues(model.ReasonStreakBonus).Add(float64(result.StreakBonus))
	}

	log.Info().
		Int64("diner_id", diner.ID).
		Str("restaurant_id", in.RestaurantID).
		Int64("points", result.PointsEarned).
		Int("streak", result.CurrentStreak).
		Msg("Visit awarded")

	return result, nil
}

// AwardReview records a review and awards its points.
func (s *EngagementService) AwardReview(ctx context.Context, in ReviewInput) (*ReviewResult, error) {
	if err := requireIdentity(in.Email); err != nil {
		return nil, err
	}
	if !scoring.ValidRating(in.Rating) {
		return nil, apperr.Validation(fmt.Sprintf("rating must be between %d and %d", scoring.MinRating, scoring.MaxRating))
	}
	if strings.TrimSpace(in.RestaurantID) == "" {
		return nil, apperr.Validation("restaurant_id is required")
	}

	diner, err := s.diners.Upsert(ctx, in.Email, in.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve diner: %w", err)
	}

	points := scoring.ReviewPoints(in.Text, in.PhotoURLs)
	review, err := s.activity.RecordReview(ctx, repository.ReviewRecord{
		DinerID:      diner.ID,
		RestaurantID: in.RestaurantID,
		Rating:       in.Rating,
		Text:         in.Text,
		PhotoURLs:    in.PhotoURLs,
		Points:       points,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record review: %w", err)
	}

	pointsAwarded.WithLabelValues(model.ReasonReview).Add(float64(points))
	log.Info().
		Int64("diner_id", diner.ID).
		Str("restaurant_id", in.RestaurantID).
		Int64("points", points).
		Msg("Review awarded")

	return &ReviewResult{Review: review, PointsEarned: points}, nil
}

// GetProfile returns the diner's profile.
func (s *EngagementService) GetProfile(ctx context.Context, email string) (*model.Diner, error) {
	d, err := s.diners.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrDinerNotFound) {
			return nil, apperr.NotFound("profile not found")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return d, nil
}

// UpdateProfile applies upd, creating the profile if needed, and awards the
// completion bonus if the profile became complete.
func (s *EngagementService) UpdateProfile(ctx context.Context, email string, upd ProfileUpdate) (*CompletionResult, error) {
	if err := requireIdentity(email); err != nil {
		return nil, err
	}
	diner, err := s.diners.Upsert(ctx, email, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve diner: %w", err)
	}

	var result *CompletionResult
	err = s.withDinerLock(ctx, diner.ID, func() error {
		// reread under the lock so concurrent edits do not undo each other
		current, err := s.diners.GetByID(ctx, diner.ID)
		if err != nil {
			return fmt.Errorf("failed to reload diner: %w", err)
		}
		applyProfileUpdate(current, upd)
		current.ProfileCompletionPercentage = scoring.CompletionPercentage(profileFields(current))

		saved, err := s.diners.SaveProfile(ctx, current)
		if err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		result, err = s.settleCompletion(ctx, saved)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckProfileCompletion recomputes the completion percentage and awards the
// one-time bonus when it reaches 100. Repeated checks never award twice.
func (s *EngagementService) CheckProfileCompletion(ctx context.Context, email string) (*CompletionResult, error) {
	diner, err := s.GetProfile(ctx, email)
	if err != nil {
		return nil, err
	}

	var result *CompletionResult
	err = s.withDinerLock(ctx, diner.ID, func() error {
		pct := scoring.CompletionPercentage(profileFields(diner))
		if pct != diner.ProfileCompletionPercentage {
			diner.ProfileCompletionPercentage = pct
			if diner, err = s.diners.SaveProfile(ctx, diner); err != nil {
				return fmt.Errorf("failed to save completion: %w", err)
			}
		}
		result, err = s.settleCompletion(ctx, diner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settleCompletion claims the bonus for d if it is owed.
func (s *EngagementService) settleCompletion(ctx context.Context, d *model.Diner) (*CompletionResult, error) {
	result := &CompletionResult{Diner: d, Percentage: d.ProfileCompletionPercentage}

	points, claim := scoring.CompletionBonus(d.ProfileCompletionPercentage, d.ProfileCompletionBonusClaimed)
	if !claim {
		return result, nil
	}

	claimed, err := s.diners.ClaimCompletionBonus(ctx, d.ID, points, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim completion bonus: %w", err)
	}
	if !claimed {
		// another process claimed it first
		return result, nil
	}

	pointsAwarded.WithLabelValues(model.ReasonProfileCompletion).Add(float64(points))
	log.Info().Int64("diner_id", d.ID).Int64("points", points).Msg("Profile completion bonus awarded")

	refreshed, err := s.diners.GetByID(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload diner: %w", err)
	}
	result.Diner = refreshed
	result.BonusAwarded = true
	result.BonusPoints = points
	return result, nil
}

// withDinerLock serialises work on one diner within this process.
func (s *EngagementService) withDinerLock(ctx context.Context, dinerID int64, fn func() error) error {
	err := s.locks.WithLockContext(ctx, dinerID, dinerLockTimeout, fn)
	if errors.Is(err, lock.ErrLockTimeout) {
		return apperr.Wrap(apperr.KindUnavailable, "The profile is busy, please retry.", err)
	}
	return err
}

func requireIdentity(email string) error {
	if strings.TrimSpace(email) == "" {
		return apperr.Validation("diner identity is required")
	}
	return nil
}

func applyProfileUpdate(d *model.Diner, upd ProfileUpdate) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&d.DisplayName, upd.DisplayName)
	set(&d.PhotoURL, upd.PhotoURL)
	set(&d.Bio, upd.Bio)
	set(&d.DietaryPreference, upd.DietaryPreference)
	set(&d.Location, upd.Location)
}

func profileFields(d *model.Diner) scoring.ProfileFields {
	return scoring.ProfileFields{
		PhotoURL:          d.PhotoURL,
		Bio:               d.Bio,
		DietaryPreference: d.DietaryPreference,
		Location:          d.Location,
	}
}
