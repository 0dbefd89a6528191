package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"menu-engagement/internal/apperr"
)

// winTwoPeriods makes email win the periods starting 2024-03-10 and 2024-03-17.
func winTwoPeriods(t *testing.T, store *memStore, email string) (first, second int64) {
	t.Helper()
	clock := newTestClock(day(2024, time.March, 10).Add(9 * time.Hour))
	leaderboard := newLeaderboard(store, clock, 0)
	engagement := newEngagement(store, clock)
	ctx := context.Background()

	opened, err := leaderboard.ManagePeriods(ctx)
	require.NoError(t, err)
	first = opened[0].PeriodID
	_, err = engagement.AwardReview(ctx, ReviewInput{Email: email, RestaurantID: "r", Rating: 5})
	require.NoError(t, err)

	clock.Set(day(2024, time.March, 17).Add(9 * time.Hour))
	actions, err := leaderboard.ManagePeriods(ctx)
	require.NoError(t, err)
	second = actions[1].PeriodID
	_, err = engagement.AwardVisit(ctx, VisitInput{Email: email, RestaurantID: "r"})
	require.NoError(t, err)

	clock.Set(day(2024, time.March, 24).Add(9 * time.Hour))
	_, err = leaderboard.ManagePeriods(ctx)
	require.NoError(t, err)
	return first, second
}

func TestNotificationService_UnseenAndMarkSeen(t *testing.T) {
	store := newMemStore()
	first, second := winTwoPeriods(t, store, "win@example.com")
	svc := NewNotificationService(store, store)
	ctx := context.Background()

	unseen, err := svc.Unseen(ctx, "win@example.com")
	require.NoError(t, err)
	require.Len(t, unseen, 2)
	// most recent first
	assert.Equal(t, second, unseen[0].PeriodID)
	assert.Equal(t, first, unseen[1].PeriodID)
	assert.Equal(t, int64(25), unseen[1].Points)

	ok, err := svc.MarkSeen(ctx, "win@example.com", first)
	require.NoError(t, err)
	assert.True(t, ok)

	writes := store.writeCount()
	ok, err = svc.MarkSeen(ctx, "win@example.com", first)
	require.NoError(t, err)
	assert.True(t, ok, "marking twice succeeds")
	assert.Equal(t, writes, store.writeCount(), "marking twice changes nothing")

	unseen, err = svc.Unseen(ctx, "win@example.com")
	require.NoError(t, err)
	require.Len(t, unseen, 1)
	assert.Equal(t, second, unseen[0].PeriodID)

	history, err := svc.History(ctx, "win@example.com")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].PeriodID)
	assert.False(t, history[0].Seen)
	assert.True(t, history[1].Seen)
	assert.NotNil(t, history[1].SeenAt)
}

func TestNotificationService_OtherDiners(t *testing.T) {
	store := newMemStore()
	first, _ := winTwoPeriods(t, store, "win@example.com")
	svc := NewNotificationService(store, store)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "lost@example.com", "Lost")
	require.NoError(t, err)

	unseen, err := svc.Unseen(ctx, "lost@example.com")
	require.NoError(t, err)
	assert.Empty(t, unseen)
	assert.NotNil(t, unseen)

	ok, err := svc.MarkSeen(ctx, "lost@example.com", first)
	require.NoError(t, err)
	assert.False(t, ok)

	// no profile at all
	history, err := svc.History(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, history)
	ok, err = svc.MarkSeen(ctx, "ghost@example.com", first)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotificationService_RejectsBadPeriod(t *testing.T) {
	svc := NewNotificationService(newMemStore(), newMemStore())
	_, err := svc.MarkSeen(context.Background(), "a@example.com", 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.From(err).Kind)
}
