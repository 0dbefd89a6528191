package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"menu-engagement/internal/apperr"
	"menu-engagement/internal/model"
	"menu-engagement/internal/pkg/lock"
	"menu-engagement/internal/repository"
	"menu-engagement/internal/scoring"
)

// ActionType names a period transition made by ManagePeriods.
type ActionType string

// Period transitions.
const (
	ActionOpened   ActionType = "opened"
	ActionClosed   ActionType = "closed"
	ActionArchived ActionType = "archived"
)

// Action is one transition made by a management pass.
type Action struct {
	Type          ActionType `json:"type"`
	PeriodID      int64      `json:"period_id"`
	WinnerDinerID *int64     `json:"winner_diner_id,omitempty"`
}

// CurrentLeaderboard is the active period and its standings so far.
type CurrentLeaderboard struct {
	Period    *model.LeaderboardPeriod `json:"period"`
	Standings []model.Standing         `json:"standings"`
}

const (
	periodsLockKey     = "periods"
	periodsLockTimeout = 30 * time.Second
	// maxCatchUpPeriods caps how many missed periods one pass will open and
	// close after a long outage.
	maxCatchUpPeriods = 520
	maxStandingsLimit = 100
	maxPeriodsLimit   = 100
)

// LeaderboardConfig holds the period rules used by LeaderboardService.
type LeaderboardConfig struct {
	PeriodDays       int
	ArchiveAfterDays int
	StandingsLimit   int
	Location         *time.Location
}

// LeaderboardService manages weekly competition periods.
type LeaderboardService struct {
	periods  PeriodStore
	activity ActivityStore
	cfg      LeaderboardConfig
	locks    *lock.KeyLock[string]
	now      func() time.Time
}

// NewLeaderboardService creates a new LeaderboardService instance.
func NewLeaderboardService(periods PeriodStore, activity ActivityStore, cfg LeaderboardConfig, opts ...Option) *LeaderboardService {
	if cfg.PeriodDays <= 0 {
		cfg.PeriodDays = scoring.DefaultPeriodDays
	}
	if cfg.StandingsLimit <= 0 {
		cfg.StandingsLimit = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	o := applyOptions(opts)
	return &LeaderboardService{
		periods:  periods,
		activity: activity,
		cfg:      cfg,
		locks:    lock.New[string](),
		now:      o.now,
	}
}

func window(p *model.LeaderboardPeriod) scoring.Window {
	return scoring.Window{Start: p.StartDate, End: p.EndDate}
}

// ManagePeriods runs one management pass:
//
//  1. an active period that ended before today is closed and its winner recorded
//  2. if no period covers today, the next contiguous period is opened
//  3. closed periods older than the retention window are archived
//
// Steps 1 and 2 repeat until a period covers today, so an outage spanning
// several periods is replayed in order. A pass with nothing due writes nothing.
// Concurrent passes in other processes are safe: the store rejects a second
// active period and a second close, and the loser simply rereads.
func (s *LeaderboardService) ManagePeriods(ctx context.Context) ([]Action, error) {
	var actions []Action
	err := s.locks.WithLockContext(ctx, periodsLockKey, periodsLockTimeout, func() error {
		today := scoring.Day(s.now(), s.cfg.Location)

		rolled, err := s.rollForward(ctx, today)
		actions = append(actions, rolled...)
		if err != nil {
			return err
		}

		archived, err := s.archive(ctx, today)
		actions = append(actions, archived...)
		return err
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		return actions, apperr.Wrap(apperr.KindUnavailable, "Another period management pass is running, please retry.", err)
	}
	if err != nil {
		return actions, err
	}

	for _, a := range actions {
		periodTransitions.WithLabelValues(string(a.Type)).Inc()
	}
	if len(actions) > 0 {
		log.Info().Int("actions", len(actions)).Msg("Leaderboard periods updated")
	}
	return actions, nil
}

func (s *LeaderboardService) rollForward(ctx context.Context, today time.Time) ([]Action, error) {
	var actions []Action
	for i := 0; i < maxCatchUpPeriods; i++ {
		active, err := s.periods.Active(ctx)
		switch {
		case err == nil:
			if !window(active).IsOver(today) {
				return actions, nil
			}
			action, err := s.closePeriod(ctx, active)
			if err != nil {
				return actions, err
			}
			if action != nil {
				actions = append(actions, *action)
			}

		case errors.Is(err, repository.ErrPeriodNotFound):
			next, err := s.nextWindow(ctx, today)
			if err != nil {
				return actions, err
			}
			if next.Start.After(today) {
				// the latest period is closed early and still covers today
				return actions, nil
			}
			created, err := s.periods.Create(ctx, next.Start, next.End)
			if errors.Is(err, repository.ErrPeriodExists) {
				log.Debug().Time("start", next.Start).Msg("Period opened concurrently")
				continue
			}
			if err != nil {
				return actions, fmt.Errorf("failed to open period: %w", err)
			}
			log.Info().
				Int64("period_id", created.ID).
				Str("start", created.StartDate.Format(time.DateOnly)).
				Str("end", created.EndDate.Format(time.DateOnly)).
				Msg("Leaderboard period opened")
			actions = append(actions, Action{Type: ActionOpened, PeriodID: created.ID})

		default:
			return actions, fmt.Errorf("failed to get active period: %w", err)
		}
	}

	log.Warn().Int("limit", maxCatchUpPeriods).Msg("Period catch-up limit reached, continuing on the next pass")
	return actions, nil
}

func (s *LeaderboardService) nextWindow(ctx context.Context, today time.Time) (scoring.Window, error) {
	latest, err := s.periods.Latest(ctx)
	switch {
	case errors.Is(err, repository.ErrPeriodNotFound):
		return scoring.NextWindow(nil, today, s.cfg.PeriodDays), nil
	case err != nil:
		return scoring.Window{}, fmt.Errorf("failed to get latest period: %w", err)
	}
	return scoring.NextWindow(&latest.EndDate, today, s.cfg.PeriodDays), nil
}

// closePeriod records the winner of p. Returns nil if another pass closed it first.
func (s *LeaderboardService) closePeriod(ctx context.Context, p *model.LeaderboardPeriod) (*Action, error) {
	from, to := window(p).Bounds(s.cfg.Location)
	top, err := s.activity.Standings(ctx, from, to, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to compute period winner: %w", err)
	}

	var winner *model.Standing
	if len(top) > 0 {
		winner = &top[0]
	}

	closed, err := s.periods.Close(ctx, p.ID, winner)
	if err != nil {
		return nil, fmt.Errorf("failed to close period: %w", err)
	}
	if !closed {
		return nil, nil
	}

	action := &Action{Type: ActionClosed, PeriodID: p.ID}
	event := log.Info().Int64("period_id", p.ID)
	if winner != nil {
		action.WinnerDinerID = &winner.DinerID
		event = event.Int64("winner_diner_id", winner.DinerID).Int64("winner_points", winner.Points)
	}
	event.Msg("Leaderboard period closed")
	return action, nil
}

func (s *LeaderboardService) archive(ctx context.Context, today time.Time) ([]Action, error) {
	if s.cfg.ArchiveAfterDays <= 0 {
		return nil, nil
	}
	cutoff := today.AddDate(0, 0, -s.cfg.ArchiveAfterDays)
	ids, err := s.periods.ArchiveClosedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to archive periods: %w", err)
	}

	actions := make([]Action, 0, len(ids))
	for _, id := range ids {
		log.Info().Int64("period_id", id).Msg("Leaderboard period archived")
		actions = append(actions, Action{Type: ActionArchived, PeriodID: id})
	}
	return actions, nil
}

// CurrentStandings returns the active period's standings. limit <= 0 uses
// the configured default.
func (s *LeaderboardService) CurrentStandings(ctx context.Context, limit int) (*CurrentLeaderboard, error) {
	active, err := s.periods.Active(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrPeriodNotFound) {
			return nil, apperr.NotFound("no leaderboard period is active")
		}
		return nil, fmt.Errorf("failed to get active period: %w", err)
	}

	from, to := window(active).Bounds(s.cfg.Location)
	standings, err := s.activity.Standings(ctx, from, to, clampLimit(limit, s.cfg.StandingsLimit, maxStandingsLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to get standings: %w", err)
	}
	if standings == nil {
		standings = []model.Standing{}
	}
	return &CurrentLeaderboard{Period: active, Standings: standings}, nil
}

// ListPeriods returns recent periods in every state, newest first.
func (s *LeaderboardService) ListPeriods(ctx context.Context, limit int) ([]model.LeaderboardPeriod, error) {
	periods, err := s.periods.List(ctx, clampLimit(limit, 20, maxPeriodsLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	if periods == nil {
		periods = []model.LeaderboardPeriod{}
	}
	return periods, nil
}

// RunScheduler runs a management pass immediately and then every interval
// until ctx is cancelled. Failed passes are logged and retried on the next tick.
func (s *LeaderboardService) RunScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}

	log.Info().
		Dur("interval", interval).
		Str("timezone", s.cfg.Location.String()).
		Msg("Leaderboard scheduler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ManagePeriods(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Leaderboard management pass failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Leaderboard scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
