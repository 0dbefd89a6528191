// Package model defines the data models for the diner engagement service.
package model

import "time"

// Diner is a diner's profile together with its gamification counters.
type Diner struct {
	ID                            int64      `db:"id" json:"id"`
	Email                         string     `db:"email" json:"email"`
	DisplayName                   string     `db:"display_name" json:"display_name"`
	PhotoURL                      string     `db:"photo_url" json:"photo_url"`
	Bio                           string     `db:"bio" json:"bio"`
	DietaryPreference             string     `db:"dietary_preference" json:"dietary_preference"`
	Location                      string     `db:"location" json:"location"`
	TotalPoints                   int64      `db:"total_points" json:"total_points"`
	TotalVisits                   int64      `db:"total_visits" json:"total_visits"`
	TotalReviews                  int64      `db:"total_reviews" json:"total_reviews"`
	CurrentStreak                 int        `db:"current_streak" json:"current_streak"`
	LongestStreak                 int        `db:"longest_streak" json:"longest_streak"`
	LastVisitDate                 *time.Time `db:"last_visit_date" json:"last_visit_date,omitempty"`
	ProfileCompletionPercentage   int        `db:"profile_completion_percentage" json:"profile_completion_percentage"`
	ProfileCompletionBonusClaimed bool       `db:"profile_completion_bonus_claimed" json:"profile_completion_bonus_claimed"`
	CreatedAt                     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                     time.Time  `db:"updated_at" json:"updated_at"`
}

// Visit is an append-only record of a diner visiting a restaurant.
type Visit struct {
	ID           int64     `db:"id" json:"id"`
	DinerID      int64     `db:"diner_id" json:"diner_id"`
	RestaurantID string    `db:"restaurant_id" json:"restaurant_id"`
	VisitedAt    time.Time `db:"visited_at" json:"visited_at"`
	PointsEarned int64     `db:"points_earned" json:"points_earned"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Review is an append-only record of a diner reviewing a restaurant.
type Review struct {
	ID           int64     `db:"id" json:"id"`
	DinerID      int64     `db:"diner_id" json:"diner_id"`
	RestaurantID string    `db:"restaurant_id" json:"restaurant_id"`
	Rating       int       `db:"rating" json:"rating"`
	Text         string    `db:"text" json:"text"`
	PhotoURLs    []string  `db:"photo_urls" json:"photo_urls"`
	PointsEarned int64     `db:"points_earned" json:"points_earned"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PointEvent is one point award. Period standings are the sum of events
// whose EarnedAt falls inside the period.
type PointEvent struct {
	ID       int64     `db:"id" json:"id"`
	DinerID  int64     `db:"diner_id" json:"diner_id"`
	Points   int64     `db:"points" json:"points"`
	Reason   string    `db:"reason" json:"reason"`
	EarnedAt time.Time `db:"earned_at" json:"earned_at"`
}

// Point event reasons.
const (
	ReasonVisit             = "visit"
	ReasonReview            = "review"
	ReasonStreakBonus       = "streak_bonus"
	ReasonProfileCompletion = "profile_completion"
)

// PeriodStatus is the lifecycle state of a leaderboard period.
type PeriodStatus string

// Leaderboard period states.
const (
	PeriodActive   PeriodStatus = "active"
	PeriodClosed   PeriodStatus = "closed"
	PeriodArchived PeriodStatus = "archived"
)

// LeaderboardPeriod is a weekly competition window. StartDate and EndDate
// are calendar dates (midnight UTC) and both are inclusive.
type LeaderboardPeriod struct {
	ID            int64        `db:"id" json:"id"`
	StartDate     time.Time    `db:"start_date" json:"start_date"`
	EndDate       time.Time    `db:"end_date" json:"end_date"`
	Status        PeriodStatus `db:"status" json:"status"`
	WinnerDinerID *int64       `db:"winner_diner_id" json:"winner_diner_id,omitempty"`
	WinnerPoints  *int64       `db:"winner_points" json:"winner_points,omitempty"`
	ClosedAt      *time.Time   `db:"closed_at" json:"closed_at,omitempty"`
	ArchivedAt    *time.Time   `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// Standing is a diner's point total within one period.
type Standing struct {
	DinerID     int64     `db:"diner_id" json:"diner_id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Points      int64     `db:"points" json:"points"`
	LastEarned  time.Time `db:"last_earned" json:"-"`
}

// WinNotification tells a diner they won a closed period.
type WinNotification struct {
	ID        int64      `db:"id" json:"id"`
	DinerID   int64      `db:"diner_id" json:"diner_id"`
	PeriodID  int64      `db:"period_id" json:"period_id"`
	Points    int64      `db:"points" json:"points"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   time.Time  `db:"end_date" json:"end_date"`
	Seen      bool       `db:"seen" json:"seen"`
	SeenAt    *time.Time `db:"seen_at" json:"seen_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
