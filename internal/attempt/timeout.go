package attempt

import (
	"time"

	"github.com/quizforge/quizforge/internal/quiz"
)

// Remaining returns the time left on a timed attempt, clamped at zero.
// ok is false when the quiz has no time limit. Arithmetic is UTC wall clock
// from the stored start instant, independent of display timezones.
func Remaining(q quiz.Quiz, a Attempt, now time.Time) (left time.Duration, ok bool) {
	if q.TimeLimitSeconds == nil {
		return 0, false
	}
	limit := time.Duration(*q.TimeLimitSeconds) * time.Second
	left = limit - now.UTC().Sub(a.StartedAt)
	if left < 0 {
		left = 0
	}
	return left, true
}

// timedOut reports whether an in_progress attempt is past its deadline.
func timedOut(q quiz.Quiz, a Attempt, now time.Time) bool {
	if a.Status != StatusInProgress {
		return false
	}
	left, ok := Remaining(q, a, now)
	return ok && left == 0
}
