package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "diners table",
		sql: `
		CREATE TABLE IF NOT EXISTS diners (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(320) NOT NULL UNIQUE,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			photo_url TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			dietary_preference VARCHAR(100) NOT NULL DEFAULT '',
			location VARCHAR(255) NOT NULL DEFAULT '',
			total_points BIGINT NOT NULL DEFAULT 0,
			total_visits BIGINT NOT NULL DEFAULT 0,
			total_reviews BIGINT NOT NULL DEFAULT 0,
			current_streak INT NOT NULL DEFAULT 0,
			longest_streak INT NOT NULL DEFAULT 0,
			last_visit_date DATE,
			profile_completion_percentage INT NOT NULL DEFAULT 0,
			profile_completion_bonus_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_diners_points ON diners(total_points DESC);
		`,
	},
	{
		name: "visits and reviews tables",
		sql: `
		CREATE TABLE IF NOT EXISTS visits (
			id BIGSERIAL PRIMARY KEY,
			diner_id BIGINT NOT NULL REFERENCES diners(id) ON DELETE CASCADE,
			restaurant_id VARCHAR(100) NOT NULL,
			visited_at TIMESTAMPTZ NOT NULL,
			points_earned BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_visits_diner_time ON visits(diner_id, visited_at DESC);

		CREATE TABLE IF NOT EXISTS reviews (
			id BIGSERIAL PRIMARY KEY,
			diner_id BIGINT NOT NULL REFERENCES diners(id) ON DELETE CASCADE,
			restaurant_id VARCHAR(100) NOT NULL,
			rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
			text TEXT NOT NULL DEFAULT '',
			photo_urls TEXT[] NOT NULL DEFAULT '{}',
			points_earned BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_reviews_restaurant ON reviews(restaurant_id, created_at DESC);
		`,
	},
	{
		name: "point events table",
		sql: `
		CREATE TABLE IF NOT EXISTS point_events (
			id BIGSERIAL PRIMARY KEY,
			diner_id BIGINT NOT NULL REFERENCES diners(id) ON DELETE CASCADE,
			points BIGINT NOT NULL,
			reason VARCHAR(50) NOT NULL,
			earned_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_point_events_time ON point_events(earned_at);
		CREATE INDEX IF NOT EXISTS idx_point_events_diner_time ON point_events(diner_id, earned_at);
		`,
	},
	{
		name: "leaderboard periods table",
		sql: `
		CREATE TABLE IF NOT EXISTS leaderboard_periods (
			id BIGSERIAL PRIMARY KEY,
			start_date DATE NOT NULL UNIQUE,
			end_date DATE NOT NULL CHECK (end_date >= start_date),
			status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'closed', 'archived')),
			winner_diner_id BIGINT REFERENCES diners(id) ON DELETE SET NULL,
			winner_points BIGINT,
			closed_at TIMESTAMPTZ,
			archived_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_leaderboard_periods_one_active
			ON leaderboard_periods(status) WHERE status = 'active';
		`,
	},
	{
		name: "win notifications table",
		sql: `
		CREATE TABLE IF NOT EXISTS win_notifications (
			id BIGSERIAL PRIMARY KEY,
			diner_id BIGINT NOT NULL REFERENCES diners(id) ON DELETE CASCADE,
			period_id BIGINT NOT NULL UNIQUE REFERENCES leaderboard_periods(id) ON DELETE CASCADE,
			points BIGINT NOT NULL,
			seen BOOLEAN NOT NULL DEFAULT FALSE,
			seen_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_win_notifications_diner ON win_notifications(diner_id, created_at DESC);
		`,
	},
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("migration", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
