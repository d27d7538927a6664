package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopcore/shopcore-backend/internal/repository"
	"github.com/shopcore/shopcore-backend/internal/security"
)

// RevocationService kills tokens before their natural expiry. Cache write
// failures are logged and swallowed (availability over perfect revocation,
// an accepted risk); credential-store failures are surfaced.
type RevocationService struct {
	accounts       repository.AccountRepository
	store          RevocationStore
	accessTokenTTL time.Duration
	pepper         string
}

func NewRevocationService(accounts repository.AccountRepository, store RevocationStore, accessTokenTTL time.Duration, pepper string) *RevocationService {
	return &RevocationService{
		accounts:       accounts,
		store:          store,
		accessTokenTTL: accessTokenTTL,
		pepper:         pepper,
	}
}

// BlacklistToken writes the per-token kill switch with a TTL equal to the
// token's remaining lifetime, so the entry never outlives the token.
func (s *RevocationService) BlacklistToken(ctx context.Context, jti string, remaining time.Duration) {
	if jti == "" {
		return
	}
	if err := s.store.BlacklistToken(ctx, jti, remaining); err != nil {
		slog.WarnContext(ctx, "token blacklist write failed", "jti", jti, "error", err)
	}
}

// BlacklistAllAccountTokens rejects every token issued before now. The
// entry only needs to live as long as the longest possible access token.
func (s *RevocationService) BlacklistAllAccountTokens(ctx context.Context, accountID string) {
	if err := s.store.BlacklistAccount(ctx, accountID, time.Now(), s.accessTokenTTL); err != nil {
		slog.WarnContext(ctx, "account blacklist write failed", "account_id", accountID, "error", err)
	}
}

// RevokeRefreshToken flags the matching record inactive. A token that was
// already revoked, or never stored, leaves the same end state, so repeat
// calls are idempotent and error-free.
func (s *RevocationService) RevokeRefreshToken(ctx context.Context, accountID, tokenValue string) error {
	hash := security.HashRefreshToken(tokenValue, s.pepper)
	_, err := s.accounts.SetRefreshTokenInactive(ctx, accountID, hash)
	if errors.Is(err, repository.ErrRefreshTokenNotFound) {
		return nil
	}
	return err
}

// RemoveRefreshToken deletes the record outright; used by logout, where
// the device is done with the token for good.
func (s *RevocationService) RemoveRefreshToken(ctx context.Context, accountID, tokenValue string) error {
	hash := security.HashRefreshToken(tokenValue, s.pepper)
	return s.accounts.RemoveRefreshToken(ctx, accountID, hash)
}

func (s *RevocationService) RevokeAllRefreshTokens(ctx context.Context, accountID string) error {
	_, err := s.accounts.DeactivateAllRefreshTokens(ctx, accountID)
	return err
}

// RevokeDevice flags one device's refresh token inactive after checking
// the caller presented the matching fingerprint.
func (s *RevocationService) RevokeDevice(ctx context.Context, accountID, tokenValue, fingerprint string) error {
	hash := security.HashRefreshToken(tokenValue, s.pepper)
	record, err := s.accounts.FindRefreshToken(ctx, accountID, hash)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return ErrInvalidRefreshToken
		}
		return err
	}
	if record.DeviceFingerprint != "" && record.DeviceFingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	_, err = s.accounts.SetRefreshTokenInactive(ctx, accountID, hash)
	return err
}
