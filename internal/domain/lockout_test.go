package domain

import (
	"testing"
	"time"
)

func TestLockoutPolicyCountsUpToThreshold(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}
	now := time.Now()

	attempts := 0
	var lockUntil *time.Time
	for i := 1; i < 5; i++ {
		attempts, lockUntil = policy.Fail(attempts, lockUntil, now)
		if attempts != i {
			t.Fatalf("after failure %d: attempts = %d", i, attempts)
		}
		if lockUntil != nil {
			t.Fatalf("locked after only %d failures", i)
		}
	}

	attempts, lockUntil = policy.Fail(attempts, lockUntil, now)
	if attempts != 5 {
		t.Fatalf("attempts = %d, want 5", attempts)
	}
	if lockUntil == nil {
		t.Fatal("expected lock at threshold")
	}
	if got, want := *lockUntil, now.Add(30*time.Minute); !got.Equal(want) {
		t.Fatalf("lockUntil = %v, want %v", got, want)
	}
}

func TestLockoutPolicyExpiredLockRestartsCount(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}
	now := time.Now()
	expired := now.Add(-time.Minute)

	attempts, lockUntil := policy.Fail(5, &expired, now)
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 after expired lock", attempts)
	}
	if lockUntil != nil {
		t.Fatal("expected no new lock on first failure after expiry")
	}
}

func TestLockoutPolicyReset(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}
	attempts, lockUntil := policy.Reset()
	if attempts != 0 || lockUntil != nil {
		t.Fatalf("Reset() = (%d, %v), want (0, nil)", attempts, lockUntil)
	}
}

func TestAccountIsLocked(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * time.Minute)
	past := now.Add(-10 * time.Minute)

	a := &Account{}
	if a.IsLocked(now) {
		t.Fatal("account with no lock reported locked")
	}
	a.LockUntil = &past
	if a.IsLocked(now) {
		t.Fatal("expired lock reported locked")
	}
	a.LockUntil = &future
	if !a.IsLocked(now) {
		t.Fatal("live lock not reported")
	}
	if got := a.LockRemaining(now); got != 10*time.Minute {
		t.Fatalf("LockRemaining = %v, want 10m", got)
	}
}

func TestRefreshTokenRecordUsable(t *testing.T) {
	now := time.Now()
	rec := &RefreshTokenRecord{IsActive: true, ExpiresAt: now.Add(time.Hour)}
	if !rec.Usable(now) {
		t.Fatal("active unexpired record not usable")
	}
	rec.IsActive = false
	if rec.Usable(now) {
		t.Fatal("inactive record usable")
	}
	rec.IsActive = true
	rec.ExpiresAt = now.Add(-time.Second)
	if rec.Usable(now) {
		t.Fatal("expired record usable")
	}
}
