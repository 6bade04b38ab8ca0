package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSelector(t *testing.T) *Selector {
	t.Helper()
	s, err := NewSelector("Europe/Moscow", []int{11, 15, 20})
	require.NoError(t, err)
	return s
}

func TestSelectFirstTriggerReachesBackToPreviousEvening(t *testing.T) {
	s := newTestSelector(t)
	now := time.Date(2026, 3, 10, 11, 5, 0, 0, s.Location())

	w, ok := s.Select(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 9, 20, 0, 0, 0, s.Location()), w.Start)
	assert.Equal(t, time.Date(2026, 3, 10, 11, 0, 0, 0, s.Location()), w.End)
	assert.Equal(t, "10.03.2026", w.BatchKey)
}

func TestSelectLaterTriggersCoverSincePrevious(t *testing.T) {
	s := newTestSelector(t)

	w, ok := s.Select(time.Date(2026, 3, 10, 15, 59, 0, 0, s.Location()))
	require.True(t, ok)
	assert.Equal(t, 11, w.Start.Hour())
	assert.Equal(t, 15, w.End.Hour())

	w, ok = s.Select(time.Date(2026, 3, 10, 20, 0, 0, 0, s.Location()))
	require.True(t, ok)
	assert.Equal(t, 15, w.Start.Hour())
	assert.Equal(t, 20, w.End.Hour())
	assert.Equal(t, "10.03.2026", w.BatchKey)
}

func TestSelectOutsideTriggerHours(t *testing.T) {
	s := newTestSelector(t)
	for _, h := range []int{0, 9, 12, 16, 23} {
		_, ok := s.Select(time.Date(2026, 3, 10, h, 30, 0, 0, s.Location()))
		assert.False(t, ok, "hour %d", h)
	}
}

func TestSelectConvertsToBusinessTimezone(t *testing.T) {
	s := newTestSelector(t)
	// 08:00 UTC is 11:00 in Moscow.
	w, ok := s.Select(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "10.03.2026", w.BatchKey)
}

func TestForcePicksLatestTrigger(t *testing.T) {
	s := newTestSelector(t)

	w := s.Force(time.Date(2026, 3, 10, 17, 30, 0, 0, s.Location()))
	assert.Equal(t, 11, w.Start.Hour())
	assert.Equal(t, 15, w.End.Hour())

	w = s.Force(time.Date(2026, 3, 10, 7, 0, 0, 0, s.Location()))
	assert.Equal(t, "09.03.2026", w.BatchKey)
	assert.Equal(t, 20, w.End.Hour())
	assert.Equal(t, 15, w.Start.Hour())
}
