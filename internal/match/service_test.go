package match

import (
	"context"
	"testing"
	"time"

	"github.com/jailfriend/go-call-infra/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore is a mock implementation of profile.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.Profile), args.Error(1)
}

func (m *MockStore) ListMatchable(ctx context.Context, excludeUserID string, limit int) ([]*profile.Profile, error) {
	args := m.Called(ctx, excludeUserID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*profile.Profile), args.Error(1)
}

func allWeek(from, to profile.ClockTime) []profile.DayWindow {
	windows := make([]profile.DayWindow, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		windows = append(windows, profile.DayWindow{Day: d, From: from, To: to})
	}
	return windows
}

func mustClock(t *testing.T, s string) profile.ClockTime {
	t.Helper()
	c, err := profile.ParseClockTime(s)
	require.NoError(t, err)
	return c
}

func testProfile(t *testing.T, userID, from, to, tz string) *profile.Profile {
	t.Helper()
	f := mustClock(t, from)
	o := mustClock(t, to)
	return &profile.Profile{
		UserID:        userID,
		AvailableFrom: f,
		AvailableTo:   o,
		WorkingHours:  allWeek(f, o),
		Timezone:      tz,
		UpdatedAt:     time.Now(),
	}
}

func TestFindCandidatesMidnightWraparound(t *testing.T) {
	mockStore := new(MockStore)
	svc := NewService(mockStore, 50)
	ctx := context.Background()

	dayWorker := testProfile(t, "user-a", "09:00", "17:00", "UTC")
	nightWorker := testProfile(t, "user-b", "22:00", "06:00", "UTC")

	mockStore.On("ListMatchable", ctx, "requester", 50).
		Return([]*profile.Profile{dayWorker, nightWorker}, nil)

	at := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	candidates, err := svc.FindCandidates(ctx, "requester", at)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "user-b", candidates[0].UserID)
}

func TestFindCandidatesTimezoneConversion(t *testing.T) {
	mockStore := new(MockStore)
	svc := NewService(mockStore, 50)
	ctx := context.Background()

	// 14:00 UTC is 23:00 in Tokyo and 09:00 in New York.
	tokyo := testProfile(t, "user-tokyo", "09:00", "17:00", "Asia/Tokyo")
	newYork := testProfile(t, "user-ny", "09:00", "17:00", "America/New_York")

	mockStore.On("ListMatchable", ctx, "requester", 50).
		Return([]*profile.Profile{tokyo, newYork}, nil)

	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	candidates, err := svc.FindCandidates(ctx, "requester", at)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "user-ny", candidates[0].UserID)
}

func TestFindCandidatesOrderedByClosingWindow(t *testing.T) {
	mockStore := new(MockStore)
	svc := NewService(mockStore, 50)
	ctx := context.Background()

	closingSoon := testProfile(t, "user-soon", "09:00", "12:30", "UTC")
	openLate := testProfile(t, "user-late", "09:00", "20:00", "UTC")
	middle := testProfile(t, "user-mid", "09:00", "15:00", "UTC")

	mockStore.On("ListMatchable", ctx, "requester", 50).
		Return([]*profile.Profile{openLate, closingSoon, middle}, nil)

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	candidates, err := svc.FindCandidates(ctx, "requester", at)
	require.NoError(t, err)

	require.Len(t, candidates, 3)
	assert.Equal(t, "user-soon", candidates[0].UserID)
	assert.Equal(t, "user-mid", candidates[1].UserID)
	assert.Equal(t, "user-late", candidates[2].UserID)
}

func TestFindCandidatesSkipsBrokenProfiles(t *testing.T) {
	mockStore := new(MockStore)
	svc := NewService(mockStore, 50)
	ctx := context.Background()

	badTZ := testProfile(t, "user-bad-tz", "09:00", "17:00", "Mars/Olympus_Mons")
	empty := &profile.Profile{UserID: "user-empty"}
	good := testProfile(t, "user-good", "09:00", "17:00", "UTC")

	mockStore.On("ListMatchable", ctx, "requester", 50).
		Return([]*profile.Profile{badTZ, empty, good}, nil)

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	candidates, err := svc.FindCandidates(ctx, "requester", at)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "user-good", candidates[0].UserID)
}

func TestFindCandidatesOutsideWorkingHours(t *testing.T) {
	mockStore := new(MockStore)
	svc := NewService(mockStore, 50)
	ctx := context.Background()

	// Available all day but only works weekdays; query on a Saturday.
	p := testProfile(t, "user-weekday", "00:00", "23:59", "UTC")
	p.WorkingHours = []profile.DayWindow{
		{Day: time.Monday, From: mustClock(t, "09:00"), To: mustClock(t, "17:00")},
		{Day: time.Friday, From: mustClock(t, "09:00"), To: mustClock(t, "17:00")},
	}

	mockStore.On("ListMatchable", ctx, "requester", 50).
		Return([]*profile.Profile{p}, nil)

	saturday := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Saturday, saturday.Weekday())

	candidates, err := svc.FindCandidates(ctx, "requester", saturday)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindCandidatesEmptyResultIsNotAnError(t *testing.T) {
	mockStore := new(MockStore)
	svc := NewService(mockStore, 50)
	ctx := context.Background()

	mockStore.On("ListMatchable", ctx, "requester", 50).
		Return([]*profile.Profile{}, nil)

	candidates, err := svc.FindCandidates(ctx, "requester", time.Now())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
