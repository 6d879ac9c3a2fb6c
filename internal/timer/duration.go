package timer

import (
	"math"
	"time"

	"github.com/yourorg/timetrack/internal/domain"
)

// MaxDurationSeconds bounds accrued duration to what a 32-bit seconds field
// can hold. Computed values beyond it are rejected, not truncated.
const MaxDurationSeconds = int64(math.MaxInt32)

// elapsedSeconds returns the whole seconds between from and now, clamped at
// zero. Sub-second remainders are truncated rather than rounded so accrual
// stays strictly additive across many pause/resume cycles.
func elapsedSeconds(from, now time.Time) int64 {
	d := now.Sub(from)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Accrue folds the running interval that started at lastResumed into the
// persisted duration. Called at pause, and at stop when the entry is still
// running.
func Accrue(durationSeconds int64, lastResumed, now time.Time) (int64, error) {
	total := durationSeconds + elapsedSeconds(lastResumed, now)
	if total > MaxDurationSeconds {
		return 0, &domain.ValidationError{
			Field:  "duration",
			Reason: "exceeds maximum representable duration",
		}
	}
	return total, nil
}

// LiveSeconds returns the duration to display for an entry at time now:
// the persisted duration plus, for a running entry, the uncommitted elapsed
// time since the last resume. Never negative, never persisted.
func LiveSeconds(e *domain.TimeEntry, now time.Time) int64 {
	if e.Status != domain.StatusRunning {
		return e.DurationSeconds
	}
	return e.DurationSeconds + elapsedSeconds(e.LastResumedAt, now)
}
