package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"menu-engagement/internal/apperr"
	"menu-engagement/internal/model"
)

const periodColumns = `
	id, start_date, end_date, status, winner_diner_id, winner_points,
	closed_at, archived_at, created_at`

func scanPeriod(row pgx.Row) (*model.LeaderboardPeriod, error) {
	var p model.LeaderboardPeriod
	err := row.Scan(
		&p.ID,
		&p.StartDate,
		&p.EndDate,
		&p.Status,
		&p.WinnerDinerID,
		&p.WinnerPoints,
		&p.ClosedAt,
		&p.ArchivedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.StartDate = p.StartDate.UTC()
	p.EndDate = p.EndDate.UTC()
	return &p, nil
}

// PeriodRepository handles leaderboard period persistence.
type PeriodRepository struct {
	pool *pgxpool.Pool
}

// NewPeriodRepository creates a new PeriodRepository instance.
func NewPeriodRepository(pool *pgxpool.Pool) *PeriodRepository {
	return &PeriodRepository{pool: pool}
}

// Active returns the period in the active state.
// Returns ErrPeriodNotFound if there is none.
func (r *PeriodRepository) Active(ctx context.Context) (*model.LeaderboardPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM leaderboard_periods WHERE status = 'active'`
	return r.getOne(ctx, query)
}

// Latest returns the period with the latest start date in any state.
// Returns ErrPeriodNotFound if no period was ever opened.
func (r *PeriodRepository) Latest(ctx context.Context) (*model.LeaderboardPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM leaderboard_periods ORDER BY start_date DESC LIMIT 1`
	return r.getOne(ctx, query)
}

// GetByID retrieves a period by id.
func (r *PeriodRepository) GetByID(ctx context.Context, id int64) (*model.LeaderboardPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM leaderboard_periods WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PeriodRepository) getOne(ctx context.Context, query string, args ...any) (*model.LeaderboardPeriod, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	return p, nil
}

// Create opens a new active period. Returns ErrPeriodExists when another
// period is already active or already starts on start.
func (r *PeriodRepository) Create(ctx context.Context, start, end time.Time) (*model.LeaderboardPeriod, error) {
	query := `
		INSERT INTO leaderboard_periods (start_date, end_date, status)
		VALUES ($1, $2, 'active')
		RETURNING ` + periodColumns

	p, err := scanPeriod(r.pool.QueryRow(ctx, query, start, end))
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, ErrPeriodExists
		}
		return nil, fmt.Errorf("failed to create period: %w", err)
	}
	return p, nil
}

// Close moves an active period to closed, records the winner and creates
// the winner's notification in one transaction. winner may be nil when
// nobody scored. Returns false if the period was not active.
func (r *PeriodRepository) Close(ctx context.Context, id int64, winner *model.Standing) (bool, error) {
	const closePeriod = `
		UPDATE leaderboard_periods
		SET status = 'closed',
			winner_diner_id = $2,
			winner_points = $3,
			closed_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	const notify = `
		INSERT INTO win_notifications (diner_id, period_id, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (period_id) DO NOTHING
	`

	var winnerID, winnerPoints *int64
	if winner != nil {
		winnerID, winnerPoints = &winner.DinerID, &winner.Points
	}

	closed := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, closePeriod, id, winnerID, winnerPoints)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		if winner != nil {
			if _, err := tx.Exec(ctx, notify, winner.DinerID, id, winner.Points); err != nil {
				return err
			}
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to close period: %w", err)
	}
	return closed, nil
}

// ArchiveClosedBefore archives closed periods that ended before cutoff and
// returns their ids.
func (r *PeriodRepository) ArchiveClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	const query = `
		UPDATE leaderboard_periods
		SET status = 'archived', archived_at = NOW()
		WHERE status = 'closed' AND end_date < $1
		RETURNING id
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to archive periods: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to archive periods: %w", err)
	}
	return ids, nil
}

// List returns the most recent periods, newest first.
func (r *PeriodRepository) List(ctx context.Context, limit int) ([]model.LeaderboardPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM leaderboard_periods ORDER BY start_date DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	var periods []model.LeaderboardPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periods: %w", err)
	}

	return periods, nil
}
