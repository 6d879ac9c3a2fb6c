package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/timetrack/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestAccrueAddsWholeSeconds(t *testing.T) {
	got, err := Accrue(100, t0, t0.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(190), got)
}

func TestAccrueTruncatesSubSecondRemainders(t *testing.T) {
	// 90.9s of elapsed time accrues 90s; rounding up would drift the total
	// upward over many pause/resume cycles.
	got, err := Accrue(0, t0, t0.Add(90*time.Second+900*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(90), got)
}

func TestAccrueClampsClockSkewToZero(t *testing.T) {
	got, err := Accrue(42, t0, t0.Add(-5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(42), got, "negative elapsed time must not shrink duration")
}

func TestAccrueRejectsOverflow(t *testing.T) {
	_, err := Accrue(MaxDurationSeconds, t0, t0.Add(time.Second))
	require.Error(t, err)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestAccrueAdditiveAcrossCycles(t *testing.T) {
	// start -> pause -> resume -> pause -> resume -> stop with controlled
	// timestamps: the total equals the sum of running intervals no matter
	// how many cycles occurred.
	intervals := []struct {
		resumedAt time.Duration
		pausedAt  time.Duration
	}{
		{0, 90 * time.Second},
		{150 * time.Second, 170 * time.Second},
		{200 * time.Second, 230 * time.Second},
	}

	var dur int64
	var err error
	for _, iv := range intervals {
		dur, err = Accrue(dur, t0.Add(iv.resumedAt), t0.Add(iv.pausedAt))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(90+20+30), dur)
}

func TestLiveSecondsRunning(t *testing.T) {
	e := &domain.TimeEntry{
		Status:          domain.StatusRunning,
		DurationSeconds: 140,
		LastResumedAt:   t0,
	}
	assert.Equal(t, int64(150), LiveSeconds(e, t0.Add(10*time.Second)))
	// queried earlier than the last resume (skew): clamp, never negative
	assert.Equal(t, int64(140), LiveSeconds(e, t0.Add(-10*time.Second)))
}

func TestLiveSecondsNonRunning(t *testing.T) {
	paused := &domain.TimeEntry{Status: domain.StatusPaused, DurationSeconds: 77, LastResumedAt: t0}
	stopped := &domain.TimeEntry{Status: domain.StatusStopped, DurationSeconds: 88, LastResumedAt: t0}

	assert.Equal(t, int64(77), LiveSeconds(paused, t0.Add(time.Hour)))
	assert.Equal(t, int64(88), LiveSeconds(stopped, t0.Add(time.Hour)))
}
