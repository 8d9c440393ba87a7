package assessment

import "time"

// ComputeExpiry returns the deadline of an attempt started at now: now+duration
// clamped to the assessment's end, whichever of the two is configured, or nil.
func ComputeExpiry(now time.Time, a Assessment) *time.Time {
	var exp *time.Time
	if a.DurationMinutes != nil && *a.DurationMinutes > 0 {
		t := now.Add(time.Duration(*a.DurationMinutes) * time.Minute)
		exp = &t
	}
	if a.EndAt != nil && (exp == nil || a.EndAt.Before(*exp)) {
		t := *a.EndAt
		exp = &t
	}
	return exp
}

// IsExpired applies both bounds independently: the attempt's own deadline and
// the assessment's end.
func IsExpired(now time.Time, at Attempt, a Assessment) bool {
	if at.ExpiresAt != nil && now.After(*at.ExpiresAt) {
		return true
	}
	if a.EndAt != nil && now.After(*a.EndAt) {
		return true
	}
	return false
}

// Window reports where now falls relative to the assessment's schedule.
func Window(now time.Time, a Assessment) WindowState {
	if a.StartAt != nil && now.Before(*a.StartAt) {
		return WindowUpcoming
	}
	if a.EndAt != nil && now.After(*a.EndAt) {
		return WindowEnded
	}
	return WindowOpen
}

// Remaining is the time left before the attempt expires; ok is false when unbounded.
func Remaining(now time.Time, at Attempt, a Assessment) (d time.Duration, ok bool) {
	deadline := at.ExpiresAt
	if a.EndAt != nil && (deadline == nil || a.EndAt.Before(*deadline)) {
		deadline = a.EndAt
	}
	if deadline == nil {
		return 0, false
	}
	if d = deadline.Sub(now); d < 0 {
		d = 0
	}
	return d, true
}
