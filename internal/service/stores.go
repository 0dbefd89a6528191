// Package service provides business logic implementations.
package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"menu-engagement/internal/model"
	"menu-engagement/internal/repository"
)

// DinerStore is the diner persistence used by the services.
// *repository.DinerRepository implements it.
type DinerStore interface {
	Upsert(ctx context.Context, email, displayName string) (*model.Diner, error)
	GetByEmail(ctx context.Context, email string) (*model.Diner, error)
	GetByID(ctx context.Context, id int64) (*model.Diner, error)
	SaveProfile(ctx context.Context, d *model.Diner) (*model.Diner, error)
	ClaimCompletionBonus(ctx context.Context, dinerID, points int64, at time.Time) (bool, error)
}

// ActivityStore records point-earning actions.
// *repository.ActivityRepository implements it.
type ActivityStore interface {
	RecordVisit(ctx context.Context, rec repository.VisitRecord) (*model.Visit, error)
	RecordReview(ctx context.Context, rec repository.ReviewRecord) (*model.Review, error)
	Standings(ctx context.Context, from, to time.Time, limit int) ([]model.Standing, error)
}

// PeriodStore persists leaderboard periods.
// *repository.PeriodRepository implements it.
type PeriodStore interface {
	Active(ctx context.Context) (*model.LeaderboardPeriod, error)
	Latest(ctx context.Context) (*model.LeaderboardPeriod, error)
	Create(ctx context.Context, start, end time.Time) (*model.LeaderboardPeriod, error)
	Close(ctx context.Context, id int64, winner *model.Standing) (bool, error)
	ArchiveClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
	List(ctx context.Context, limit int) ([]model.LeaderboardPeriod, error)
}

// NotificationStore persists win notifications.
// *repository.NotificationRepository implements it.
type NotificationStore interface {
	Unseen(ctx context.Context, dinerID int64) ([]model.WinNotification, error)
	History(ctx context.Context, dinerID int64) ([]model.WinNotification, error)
	MarkSeen(ctx context.Context, dinerID, periodID int64) (bool, error)
}

var (
	pointsAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_points_awarded_total",
			Help: "Points awarded to diners by reason",
		},
		[]string{"reason"},
	)

	periodTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_period_transitions_total",
			Help: "Leaderboard period state transitions",
		},
		[]string{"action"},
	)
)

// Option configures a service.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
