package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/security"
)

func seedRefreshRecord(t *testing.T, repo *memoryAccountRepository, accountID, tokenValue, fingerprint string) {
	t.Helper()
	err := repo.AppendRefreshToken(context.Background(), &domain.RefreshTokenRecord{
		AccountID:         accountID,
		TokenHash:         security.HashRefreshToken(tokenValue, "test-pepper"),
		DeviceFingerprint: fingerprint,
		IsActive:          true,
		CreatedAt:         time.Now(),
		ExpiresAt:         time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed refresh record: %v", err)
	}
}

func TestBlacklistTokenSwallowsCacheFailure(t *testing.T) {
	store := newMemoryRevocationStore()
	svc := NewRevocationService(newMemoryAccountRepository(), store, 15*time.Minute, "test-pepper")

	store.failing = true
	svc.BlacklistToken(context.Background(), "jti-1", time.Minute)
	svc.BlacklistAllAccountTokens(context.Background(), "acct-1")

	store.failing = false
	svc.BlacklistToken(context.Background(), "jti-2", time.Minute)
	revoked, err := store.IsTokenBlacklisted(context.Background(), "jti-2")
	if err != nil || !revoked {
		t.Fatalf("blacklist not written: revoked=%v err=%v", revoked, err)
	}
}

func TestRevokeRefreshTokenIsIdempotent(t *testing.T) {
	repo := newMemoryAccountRepository()
	svc := NewRevocationService(repo, newMemoryRevocationStore(), 15*time.Minute, "test-pepper")
	seedRefreshRecord(t, repo, "acct-1", "tok-1", "")

	for i := 0; i < 3; i++ {
		if err := svc.RevokeRefreshToken(context.Background(), "acct-1", "tok-1"); err != nil {
			t.Fatalf("revoke %d: %v", i+1, err)
		}
	}
	// Never-stored tokens revoke cleanly too.
	if err := svc.RevokeRefreshToken(context.Background(), "acct-1", "never-issued"); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}

	hash := security.HashRefreshToken("tok-1", "test-pepper")
	record, err := repo.FindRefreshToken(context.Background(), "acct-1", hash)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if record.IsActive {
		t.Fatal("record still active")
	}
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	repo := newMemoryAccountRepository()
	svc := NewRevocationService(repo, newMemoryRevocationStore(), 15*time.Minute, "test-pepper")
	seedRefreshRecord(t, repo, "acct-1", "tok-1", "")
	seedRefreshRecord(t, repo, "acct-1", "tok-2", "")
	seedRefreshRecord(t, repo, "other", "tok-3", "")

	if err := svc.RevokeAllRefreshTokens(context.Background(), "acct-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	count, err := repo.CountActiveRefreshTokens(context.Background(), "acct-1", time.Now())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("active count = %d, want 0", count)
	}
	otherCount, err := repo.CountActiveRefreshTokens(context.Background(), "other", time.Now())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if otherCount != 1 {
		t.Fatalf("other account count = %d, want 1", otherCount)
	}
}

func TestRemoveRefreshToken(t *testing.T) {
	repo := newMemoryAccountRepository()
	svc := NewRevocationService(repo, newMemoryRevocationStore(), 15*time.Minute, "test-pepper")
	seedRefreshRecord(t, repo, "acct-1", "tok-1", "")

	if err := svc.RemoveRefreshToken(context.Background(), "acct-1", "tok-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	hash := security.HashRefreshToken("tok-1", "test-pepper")
	if _, err := repo.FindRefreshToken(context.Background(), "acct-1", hash); err == nil {
		t.Fatal("record still present after remove")
	}
}

func TestRevokeDeviceChecksFingerprint(t *testing.T) {
	repo := newMemoryAccountRepository()
	svc := NewRevocationService(repo, newMemoryRevocationStore(), 15*time.Minute, "test-pepper")
	seedRefreshRecord(t, repo, "acct-1", "tok-1", "device-a")

	if err := svc.RevokeDevice(context.Background(), "acct-1", "tok-1", "device-b"); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("err = %v, want ErrFingerprintMismatch", err)
	}
	if err := svc.RevokeDevice(context.Background(), "acct-1", "tok-1", "device-a"); err != nil {
		t.Fatalf("revoke with matching fingerprint: %v", err)
	}
	if err := svc.RevokeDevice(context.Background(), "acct-1", "unknown", "device-a"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRevokeDeviceAllowsRecordsWithoutFingerprint(t *testing.T) {
	repo := newMemoryAccountRepository()
	svc := NewRevocationService(repo, newMemoryRevocationStore(), 15*time.Minute, "test-pepper")
	seedRefreshRecord(t, repo, "acct-1", "tok-1", "")

	if err := svc.RevokeDevice(context.Background(), "acct-1", "tok-1", "anything"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
}
