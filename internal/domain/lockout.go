package domain

import "time"

// LockoutPolicy is the state machine over (FailedAttempts, LockUntil).
// Failures while a live lock is in place never reach Fail; those requests
// are rejected upstream before the password is checked.
type LockoutPolicy struct {
	Threshold    int
	LockDuration time.Duration
}

// Fail computes the next lockout state after a failed password check.
// An expired prior lock restarts the count at 1 instead of continuing it.
func (p LockoutPolicy) Fail(failedAttempts int, lockUntil *time.Time, now time.Time) (int, *time.Time) {
	attempts := failedAttempts + 1
	if lockUntil != nil && !lockUntil.After(now) {
		attempts = 1
	}
	if attempts >= p.Threshold {
		until := now.Add(p.LockDuration)
		return attempts, &until
	}
	return attempts, nil
}

// Reset is the success transition: back to Unlocked(0).
func (p LockoutPolicy) Reset() (int, *time.Time) {
	return 0, nil
}
