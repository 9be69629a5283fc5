package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreakRecordCountsConsecutiveDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewStreakService(env.streaks, testLogger()).(*streakService)

	day := time.Date(2026, 4, 1, 22, 30, 0, 0, time.UTC)
	svc.clock = func() time.Time { return day }

	first, err := svc.Record(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, first.CurrentStreak)

	same, err := svc.Record(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, same.CurrentStreak)

	for i := 1; i <= 2; i++ {
		next := day.AddDate(0, 0, i)
		svc.clock = func() time.Time { return next }
		_, err := svc.Record(ctx, "alice")
		require.NoError(t, err)
	}
	current, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 3, current.CurrentStreak)
	require.Equal(t, 3, current.LongestStreak)

	gap := day.AddDate(0, 0, 6)
	svc.clock = func() time.Time { return gap }
	broken, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, broken.CurrentStreak)
	require.Equal(t, 3, broken.LongestStreak)

	restarted, err := svc.Record(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, restarted.CurrentStreak)
	require.Equal(t, 3, restarted.LongestStreak)
}

func TestStreakGetWithoutActivity(t *testing.T) {
	env := newTestEnv(t)
	svc := NewStreakService(env.streaks, testLogger())

	streak, err := svc.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, "nobody", streak.UserID)
	require.Zero(t, streak.CurrentStreak)
	require.Nil(t, streak.LastActiveOn)
}
