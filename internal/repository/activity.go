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

// StreakChange moves a diner's streak from the previously read state to a
// new one. The write only applies if the stored state still matches Prev.
type StreakChange struct {
	PrevCurrent   int
	PrevLastVisit *time.Time
	Current       int
	Longest       int
	LastVisit     *time.Time
}

// VisitRecord is a visit together with the points it earned.
type VisitRecord struct {
	DinerID      int64
	RestaurantID string
	VisitedAt    time.Time
	Points       int64
	StreakBonus  int64
	Streak       StreakChange
}

// ReviewRecord is a review together with the points it earned.
type ReviewRecord struct {
	DinerID      int64
	RestaurantID string
	Rating       int
	Text         string
	PhotoURLs    []string
	Points       int64
	CreatedAt    time.Time
}

// ActivityRepository persists visits, reviews and the point events they earn.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository instance.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// RecordVisit stores a visit, its point events and the diner's new counters
// in one transaction. Returns ErrStreakChanged if another writer advanced
// the streak after rec.Streak was computed.
func (r *ActivityRepository) RecordVisit(ctx context.Context, rec VisitRecord) (*model.Visit, error) {
	const updateDiner = `
		UPDATE diners
		SET total_points = total_points + $2,
			total_visits = total_visits + 1,
			current_streak = $3,
			longest_streak = GREATEST(longest_streak, $4),
			last_visit_date = $5,
			updated_at = NOW()
		WHERE id = $1
			AND current_streak = $6
			AND last_visit_date IS NOT DISTINCT FROM $7::date
	`
	const insertVisit = `
		INSERT INTO visits (diner_id, restaurant_id, visited_at, points_earned)
		VALUES ($1, $2, $3, $4)
		RETURNING id, diner_id, restaurant_id, visited_at, points_earned, created_at
	`

	var visit model.Visit
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		total := rec.Points + rec.StreakBonus
		result, err := tx.Exec(ctx, updateDiner,
			rec.DinerID, total,
			rec.Streak.Current, rec.Streak.Longest, rec.Streak.LastVisit,
			rec.Streak.PrevCurrent, rec.Streak.PrevLastVisit,
		)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrStreakChanged
		}

		err = tx.QueryRow(ctx, insertVisit, rec.DinerID, rec.RestaurantID, rec.VisitedAt, total).Scan(
			&visit.ID,
			&visit.DinerID,
			&visit.RestaurantID,
			&visit.VisitedAt,
			&visit.PointsEarned,
			&visit.CreatedAt,
		)
		if err != nil {
			return err
		}

		if err := insertPointEvent(ctx, tx, rec.DinerID, rec.Points, model.ReasonVisit, rec.VisitedAt); err != nil {
			return err
		}
		if rec.StreakBonus > 0 {
			return insertPointEvent(ctx, tx, rec.DinerID, rec.StreakBonus, model.ReasonStreakBonus, rec.VisitedAt)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStreakChanged) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record visit: %w", err)
	}
	return &visit, nil
}

// RecordReview stores a review, its point event and the diner's counters in
// one transaction.
func (r *ActivityRepository) RecordReview(ctx context.Context, rec ReviewRecord) (*model.Review, error) {
	const updateDiner = `
		UPDATE diners
		SET total_points = total_points + $2,
			total_reviews = total_reviews + 1,
			updated_at = NOW()
		WHERE id = $1
	`
	const insertReview = `
		INSERT INTO reviews (diner_id, restaurant_id, rating, text, photo_urls, points_earned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, diner_id, restaurant_id, rating, text, photo_urls, points_earned, created_at
	`

	photos := rec.PhotoURLs
	if photos == nil {
		photos = []string{}
	}

	var review model.Review
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, updateDiner, rec.DinerID, rec.Points)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrDinerNotFound
		}

		err = tx.QueryRow(ctx, insertReview,
			rec.DinerID, rec.RestaurantID, rec.Rating, rec.Text, photos, rec.Points, rec.CreatedAt,
		).Scan(
			&review.ID,
			&review.DinerID,
			&review.RestaurantID,
			&review.Rating,
			&review.Text,
			&review.PhotoURLs,
			&review.PointsEarned,
			&review.CreatedAt,
		)
		if err != nil {
			return err
		}

		return insertPointEvent(ctx, tx, rec.DinerID, rec.Points, model.ReasonReview, rec.CreatedAt)
	})
	if err != nil {
		if errors.Is(err, ErrDinerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record review: %w", err)
	}
	return &review, nil
}

// Standings ranks diners by the points they earned in [from, to).
// Ties go to the diner who reached the total first, then to the lower id.
func (r *ActivityRepository) Standings(ctx context.Context, from, to time.Time, limit int) ([]model.Standing, error) {
	const query = `
		SELECT pe.diner_id, d.display_name, SUM(pe.points) AS points, MAX(pe.earned_at) AS last_earned
		FROM point_events pe
		JOIN diners d ON d.id = pe.diner_id
		WHERE pe.earned_at >= $1 AND pe.earned_at < $2
		GROUP BY pe.diner_id, d.display_name
		HAVING SUM(pe.points) > 0
		ORDER BY points DESC, last_earned ASC, pe.diner_id ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	defer rows.Close()

	var standings []model.Standing
	for rows.Next() {
		var s model.Standing
		if err := rows.Scan(&s.DinerID, &s.DisplayName, &s.Points, &s.LastEarned); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		standings = append(standings, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating standings: %w", err)
	}

	return standings, nil
}
