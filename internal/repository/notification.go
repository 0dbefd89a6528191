package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"menu-engagement/internal/model"
)

// NotificationRepository handles win notification persistence.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository instance.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Unseen returns the diner's wins not yet marked seen, most recent first.
func (r *NotificationRepository) Unseen(ctx context.Context, dinerID int64) ([]model.WinNotification, error) {
	return r.list(ctx, dinerID, true)
}

// History returns all of the diner's wins, most recent first.
func (r *NotificationRepository) History(ctx context.Context, dinerID int64) ([]model.WinNotification, error) {
	return r.list(ctx, dinerID, false)
}

func (r *NotificationRepository) list(ctx context.Context, dinerID int64, unseenOnly bool) ([]model.WinNotification, error) {
	const query = `
		SELECT n.id, n.diner_id, n.period_id, n.points, p.start_date, p.end_date,
			n.seen, n.seen_at, n.created_at
		FROM win_notifications n
		JOIN leaderboard_periods p ON p.id = n.period_id
		WHERE n.diner_id = $1 AND (NOT $2 OR NOT n.seen)
		ORDER BY p.end_date DESC, n.id DESC
	`

	rows, err := r.pool.Query(ctx, query, dinerID, unseenOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.WinNotification
	for rows.Next() {
		var n model.WinNotification
		err := rows.Scan(
			&n.ID,
			&n.DinerID,
			&n.PeriodID,
			&n.Points,
			&n.StartDate,
			&n.EndDate,
			&n.Seen,
			&n.SeenAt,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.StartDate = n.StartDate.UTC()
		n.EndDate = n.EndDate.UTC()
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// MarkSeen marks the diner's notification for periodID as seen. Marking an
// already seen notification succeeds and keeps the original seen time.
// Returns false if the diner has no notification for the period.
func (r *NotificationRepository) MarkSeen(ctx context.Context, dinerID, periodID int64) (bool, error) {
	const query = `
		UPDATE win_notifications
		SET seen = TRUE, seen_at = COALESCE(seen_at, NOW())
		WHERE diner_id = $1 AND period_id = $2
	`

	result, err := r.pool.Exec(ctx, query, dinerID, periodID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification seen: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
