package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"menu-engagement/internal/model"
	"menu-engagement/internal/repository"
)

// memStore is an in-memory stand-in for the pgx repositories with the same
// conditional-write semantics.
type memStore struct {
	mu sync.Mutex

	nextID        int64
	diners        map[int64]*model.Diner
	byEmail       map[string]int64
	visits        []model.Visit
	reviews       []model.Review
	events        []model.PointEvent
	periods       []*model.LeaderboardPeriod
	notifications []*model.WinNotification

	// beforeVisit runs inside RecordVisit before the streak check, with the
	// lock held, to simulate writers in other processes.
	beforeVisit func(d *model.Diner)
	visitCalls  int
	writes      int
}

func newMemStore() *memStore {
	return &memStore{
		diners:  make(map[int64]*model.Diner),
		byEmail: make(map[string]int64),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func copyDiner(d *model.Diner) *model.Diner {
	c := *d
	if d.LastVisitDate != nil {
		day := *d.LastVisitDate
		c.LastVisitDate = &day
	}
	return &c
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ---- DinerStore ----

func (m *memStore) Upsert(_ context.Context, email, displayName string) (*model.Diner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byEmail[email]; ok {
		d := m.diners[id]
		if displayName != "" {
			d.DisplayName = displayName
		}
		return copyDiner(d), nil
	}
	d := &model.Diner{ID: m.id(), Email: email, DisplayName: displayName, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.diners[d.ID] = d
	m.byEmail[email] = d.ID
	m.writes++
	return copyDiner(d), nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*model.Diner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrDinerNotFound
	}
	return copyDiner(m.diners[id]), nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*model.Diner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.diners[id]
	if !ok {
		return nil, repository.ErrDinerNotFound
	}
	return copyDiner(d), nil
}

func (m *memStore) SaveProfile(_ context.Context, in *model.Diner) (*model.Diner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.diners[in.ID]
	if !ok {
		return nil, repository.ErrDinerNotFound
	}
	d.DisplayName = in.DisplayName
	d.PhotoURL = in.PhotoURL
	d.Bio = in.Bio
	d.DietaryPreference = in.DietaryPreference
	d.Location = in.Location
	d.ProfileCompletionPercentage = in.ProfileCompletionPercentage
	m.writes++
	return copyDiner(d), nil
}

func (m *memStore) ClaimCompletionBonus(_ context.Context, dinerID, points int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.diners[dinerID]
	if !ok || d.ProfileCompletionBonusClaimed || d.ProfileCompletionPercentage != 100 {
		return false, nil
	}
	d.ProfileCompletionBonusClaimed = true
	d.TotalPoints += points
	m.addEvent(dinerID, points, model.ReasonProfileCompletion, at)
	m.writes++
	return true, nil
}

// ---- ActivityStore ----

func (m *memStore) addEvent(dinerID, points int64, reason string, at time.Time) {
	m.events = append(m.events, model.PointEvent{ID: m.id(), DinerID: dinerID, Points: points, Reason: reason, EarnedAt: at})
}

func (m *memStore) RecordVisit(_ context.Context, rec repository.VisitRecord) (*model.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.visitCalls++
	d, ok := m.diners[rec.DinerID]
	if !ok {
		return nil, repository.ErrStreakChanged
	}
	if m.beforeVisit != nil {
		m.beforeVisit(d)
	}
	if d.CurrentStreak != rec.Streak.PrevCurrent || !sameDay(d.LastVisitDate, rec.Streak.PrevLastVisit) {
		return nil, repository.ErrStreakChanged
	}

	total := rec.Points + rec.StreakBonus
	d.TotalPoints += total
	d.TotalVisits++
	d.CurrentStreak = rec.Streak.Current
	if rec.Streak.Longest > d.LongestStreak {
		d.LongestStreak = rec.Streak.Longest
	}
	if rec.Streak.LastVisit != nil {
		day := *rec.Streak.LastVisit
		d.LastVisitDate = &day
	}

	v := model.Visit{ID: m.id(), DinerID: rec.DinerID, RestaurantID: rec.RestaurantID, VisitedAt: rec.VisitedAt, PointsEarned: total}
	m.visits = append(m.visits, v)
	m.addEvent(rec.DinerID, rec.Points, model.ReasonVisit, rec.VisitedAt)
	if rec.StreakBonus > 0 {
		m.addEvent(rec.DinerID, rec.StreakBonus, model.ReasonStreakBonus, rec.VisitedAt)
	}
	m.writes++
	return &v, nil
}

func (m *memStore) RecordReview(_ context.Context, rec repository.ReviewRecord) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.diners[rec.DinerID]
	if !ok {
		return nil, repository.ErrDinerNotFound
	}
	d.TotalPoints += rec.Points
	d.TotalReviews++

	r := model.Review{
		ID: m.id(), DinerID: rec.DinerID, RestaurantID: rec.RestaurantID, Rating: rec.Rating,
		Text: rec.Text, PhotoURLs: rec.PhotoURLs, PointsEarned: rec.Points, CreatedAt: rec.CreatedAt,
	}
	m.reviews = append(m.reviews, r)
	m.addEvent(rec.DinerID, rec.Points, model.ReasonReview, rec.CreatedAt)
	m.writes++
	return &r, nil
}

func (m *memStore) Standings(_ context.Context, from, to time.Time, limit int) ([]model.Standing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDiner := make(map[int64]*model.Standing)
	for _, e := range m.events {
		if e.EarnedAt.Before(from) || !e.EarnedAt.Before(to) {
			continue
		}
		s, ok := byDiner[e.DinerID]
		if !ok {
			s = &model.Standing{DinerID: e.DinerID, DisplayName: m.diners[e.DinerID].DisplayName}
			byDiner[e.DinerID] = s
		}
		s.Points += e.Points
		if e.EarnedAt.After(s.LastEarned) {
			s.LastEarned = e.EarnedAt
		}
	}

	var standings []model.Standing
	for _, s := range byDiner {
		if s.Points > 0 {
			standings = append(standings, *s)
		}
	}
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.LastEarned.Equal(b.LastEarned) {
			return a.LastEarned.Before(b.LastEarned)
		}
		return a.DinerID < b.DinerID
	})
	if len(standings) > limit {
		standings = standings[:limit]
	}
	return standings, nil
}

// ---- PeriodStore ----

func (m *memStore) Active(_ context.Context) (*model.LeaderboardPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.periods {
		if p.Status == model.PeriodActive {
			c := *p
			return &c, nil
		}
	}
	return nil, repository.ErrPeriodNotFound
}

func (m *memStore) Latest(_ context.Context) (*model.LeaderboardPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *model.LeaderboardPeriod
	for _, p := range m.periods {
		if latest == nil || p.StartDate.After(latest.StartDate) {
			latest = p
		}
	}
	if latest == nil {
		return nil, repository.ErrPeriodNotFound
	}
	c := *latest
	return &c, nil
}

func (m *memStore) Create(_ context.Context, start, end time.Time) (*model.LeaderboardPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.periods {
		if p.Status == model.PeriodActive || p.StartDate.Equal(start) {
			return nil, repository.ErrPeriodExists
		}
	}
	p := &model.LeaderboardPeriod{ID: m.id(), StartDate: start, EndDate: end, Status: model.PeriodActive, CreatedAt: time.Now()}
	m.periods = append(m.periods, p)
	m.writes++
	c := *p
	return &c, nil
}

func (m *memStore) Close(_ context.Context, id int64, winner *model.Standing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.periods {
		if p.ID != id {
			continue
		}
		if p.Status != model.PeriodActive {
			return false, nil
		}
		now := time.Now()
		p.Status = model.PeriodClosed
		p.ClosedAt = &now
		if winner != nil {
			dinerID, points := winner.DinerID, winner.Points
			p.WinnerDinerID, p.WinnerPoints = &dinerID, &points
			m.notifications = append(m.notifications, &model.WinNotification{
				ID: m.id(), DinerID: dinerID, PeriodID: id, Points: points,
				StartDate: p.StartDate, EndDate: p.EndDate, CreatedAt: now,
			})
		}
		m.writes++
		return true, nil
	}
	return false, nil
}

func (m *memStore) ArchiveClosedBefore(_ context.Context, cutoff time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for _, p := range m.periods {
		if p.Status == model.PeriodClosed && p.EndDate.Before(cutoff) {
			now := time.Now()
			p.Status = model.PeriodArchived
			p.ArchivedAt = &now
			ids = append(ids, p.ID)
			m.writes++
		}
	}
	return ids, nil
}

func (m *memStore) List(_ context.Context, limit int) ([]model.LeaderboardPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	periods := make([]model.LeaderboardPeriod, 0, len(m.periods))
	for _, p := range m.periods {
		periods = append(periods, *p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartDate.After(periods[j].StartDate) })
	if len(periods) > limit {
		periods = periods[:limit]
	}
	return periods, nil
}

// ---- NotificationStore ----

func (m *memStore) Unseen(_ context.Context, dinerID int64) ([]model.WinNotification, error) {
	return m.listNotifications(dinerID, true), nil
}

func (m *memStore) History(_ context.Context, dinerID int64) ([]model.WinNotification, error) {
	return m.listNotifications(dinerID, false), nil
}

func (m *memStore) listNotifications(dinerID int64, unseenOnly bool) []model.WinNotification {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.WinNotification
	for _, n := range m.notifications {
		if n.DinerID == dinerID && (!unseenOnly || !n.Seen) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.After(out[j].EndDate) })
	return out
}

func (m *memStore) MarkSeen(_ context.Context, dinerID, periodID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notifications {
		if n.DinerID == dinerID && n.PeriodID == periodID {
			if !n.Seen {
				now := time.Now()
				n.Seen = true
				n.SeenAt = &now
				m.writes++
			}
			return true, nil
		}
	}
	return false, nil
}

// ---- helpers ----

func (m *memStore) diner(email string) *model.Diner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyDiner(m.diners[m.byEmail[email]])
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) activePeriods() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.periods {
		if p.Status == model.PeriodActive {
			n++
		}
	}
	return n
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var (
	_ DinerStore        = (*memStore)(nil)
	_ ActivityStore     = (*memStore)(nil)
	_ PeriodStore       = (*memStore)(nil)
	_ NotificationStore = (*memStore)(nil)

	_ DinerStore        = (*repository.DinerRepository)(nil)
	_ ActivityStore     = (*repository.ActivityRepository)(nil)
	_ PeriodStore       = (*repository.PeriodRepository)(nil)
	_ NotificationStore = (*repository.NotificationRepository)(nil)
)
