package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayAheadWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	w := DayAheadWindow(now)

	require.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), w.Start)
	require.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), w.End)
}

func TestDayAheadWindowLateEvening(t *testing.T) {
	// Minutes before midnight still target tomorrow, not the day after.
	now := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)
	w := DayAheadWindow(now)

	require.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), w.Start)
	require.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), w.End)
}

func TestFinalCallWindow(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	w := FinalCallWindow(now)

	require.Equal(t, now.Add(time.Hour), w.Start)
	require.Equal(t, now.Add(2*time.Hour), w.End)
}

func TestWindowHalfOpen(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	w := FinalCallWindow(now)

	require.True(t, w.Contains(w.Start))
	require.True(t, w.Contains(w.End.Add(-time.Second)))
	require.False(t, w.Contains(w.End), "end boundary must be excluded")
	require.False(t, w.Contains(w.Start.Add(-time.Second)))
}

func TestCutoffBefore(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	cutoff := CutoffBefore(now, 30*24*time.Hour)
	require.Equal(t, time.Date(2024, 5, 11, 8, 0, 0, 0, time.UTC), cutoff)
}
