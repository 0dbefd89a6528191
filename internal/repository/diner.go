// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"menu-engagement/internal/model"
)

// Common errors for repository operations.
var (
	ErrDinerNotFound  = errors.New("diner not found")
	ErrPeriodNotFound = errors.New("leaderboard period not found")
	ErrPeriodExists   = errors.New("leaderboard period already exists")
	// ErrStreakChanged means the diner's streak moved between read and write.
	ErrStreakChanged = errors.New("diner streak changed concurrently")
)

const dinerColumns = `
	id, email, display_name, photo_url, bio, dietary_preference, location,
	total_points, total_visits, total_reviews, current_streak, longest_streak,
	last_visit_date, profile_completion_percentage, profile_completion_bonus_claimed,
	created_at, updated_at`

func scanDiner(row pgx.Row) (*model.Diner, error) {
	var d model.Diner
	err := row.Scan(
		&d.ID,
		&d.Email,
		&d.DisplayName,
		&d.PhotoURL,
		&d.Bio,
		&d.DietaryPreference,
		&d.Location,
		&d.TotalPoints,
		&d.TotalVisits,
		&d.TotalReviews,
		&d.CurrentStreak,
		&d.LongestStreak,
		&d.LastVisitDate,
		&d.ProfileCompletionPercentage,
		&d.ProfileCompletionBonusClaimed,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if d.LastVisitDate != nil {
		day := d.LastVisitDate.UTC()
		d.LastVisitDate = &day
	}
	return &d, nil
}

// DinerRepository handles diner profile persistence.
type DinerRepository struct {
	pool *pgxpool.Pool
}

// NewDinerRepository creates a new DinerRepository instance.
func NewDinerRepository(pool *pgxpool.Pool) *DinerRepository {
	return &DinerRepository{pool: pool}
}

// Upsert returns the diner with the given email, creating it if needed.
// A non-empty displayName replaces the stored one. The statement is a single
// round trip, so a retry after a failure can never leave a half-created profile.
func (r *DinerRepository) Upsert(ctx context.Context, email, displayName string) (*model.Diner, error) {
	query := `
		INSERT INTO diners (email, display_name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE
			SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), diners.display_name)
		RETURNING ` + dinerColumns

	d, err := scanDiner(r.pool.QueryRow(ctx, query, email, displayName))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert diner: %w", err)
	}
	return d, nil
}

// GetByEmail retrieves a diner by email.
// Returns ErrDinerNotFound if the diner does not exist.
func (r *DinerRepository) GetByEmail(ctx context.Context, email string) (*model.Diner, error) {
	query := `SELECT ` + dinerColumns + ` FROM diners WHERE email = $1`

	d, err := scanDiner(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDinerNotFound
		}
		return nil, fmt.Errorf("failed to get diner: %w", err)
	}
	return d, nil
}

// GetByID retrieves a diner by id.
func (r *DinerRepository) GetByID(ctx context.Context, id int64) (*model.Diner, error) {
	query := `SELECT ` + dinerColumns + ` FROM diners WHERE id = $1`

	d, err := scanDiner(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDinerNotFound
		}
		return nil, fmt.Errorf("failed to get diner: %w", err)
	}
	return d, nil
}

// SaveProfile writes the editable profile fields and the completion
// percentage. Counters are left untouched.
func (r *DinerRepository) SaveProfile(ctx context.Context, d *model.Diner) (*model.Diner, error) {
	query := `
		UPDATE diners
		SET display_name = $2,
			photo_url = $3,
			bio = $4,
			dietary_preference = $5,
			location = $6,
			profile_completion_percentage = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + dinerColumns

	saved, err := scanDiner(r.pool.QueryRow(ctx, query,
		d.ID, d.DisplayName, d.PhotoURL, d.Bio, d.DietaryPreference, d.Location, d.ProfileCompletionPercentage))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDinerNotFound
		}
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return saved, nil
}

// ClaimCompletionBonus awards the one-time profile completion bonus.
// The claimed flag is flipped in the same statement that adds the points,
// so concurrent callers award it at most once. Returns false when the bonus
// was already claimed or the stored profile is not complete.
func (r *DinerRepository) ClaimCompletionBonus(ctx context.Context, dinerID, points int64, at time.Time) (bool, error) {
	const claim = `
		UPDATE diners
		SET profile_completion_bonus_claimed = TRUE,
			total_points = total_points + $2,
			updated_at = NOW()
		WHERE id = $1
			AND NOT profile_completion_bonus_claimed
			AND profile_completion_percentage = 100
	`

	claimed := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, claim, dinerID, points)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		if err := insertPointEvent(ctx, tx, dinerID, points, model.ReasonProfileCompletion, at); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim completion bonus: %w", err)
	}
	return claimed, nil
}

func insertPointEvent(ctx context.Context, tx pgx.Tx, dinerID, points int64, reason string, at time.Time) error {
	const query = `
		INSERT INTO point_events (diner_id, points, reason, earned_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.Exec(ctx, query, dinerID, points, reason, at)
	return err
}
