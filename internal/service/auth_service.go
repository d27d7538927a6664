package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/observability"
	"github.com/shopcore/shopcore-backend/internal/repository"
	"github.com/shopcore/shopcore-backend/internal/security"
)

type AuthConfig struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	RefreshTokenPepper   string
	Lockout              domain.LockoutPolicy
	RevocationFailOpen   bool
}

// AuthService orchestrates credential verification, token issuance and
// request-path token verification. All cross-request state lives in the
// account repository and the revocation store; the service itself holds
// no mutable state and is safe for concurrent use.
type AuthService struct {
	accounts    repository.AccountRepository
	hasher      *security.PasswordHasher
	jwtMgr      *security.JWTManager
	revocations RevocationStore
	email       EmailSender
	cfg         AuthConfig
}

type LoginResult struct {
	Account      *domain.Account
	AccessToken  string
	RefreshToken string
}

type SessionStatus struct {
	ActiveTokenCount    int64
	LoggedOutEverywhere bool
}

func NewAuthService(
	accounts repository.AccountRepository,
	hasher *security.PasswordHasher,
	jwtMgr *security.JWTManager,
	revocations RevocationStore,
	email EmailSender,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		accounts:    accounts,
		hasher:      hasher,
		jwtMgr:      jwtMgr,
		revocations: revocations,
		email:       email,
		cfg:         cfg,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	token, err := s.jwtMgr.SignVerificationToken(account.ID, s.cfg.VerificationTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign verification token: %w", err)
	}
	if err := s.email.SendVerification(ctx, account.Email, token); err != nil {
		// The account exists either way; the client can request a resend.
		slog.WarnContext(ctx, "verification email failed", "email", account.Email, "error", err)
	}
	return account, nil
}

func (s *AuthService) ConfirmEmail(ctx context.Context, token string) error {
	claims, err := s.jwtMgr.ParseVerificationToken(token)
	if err != nil {
		return err
	}
	return s.accounts.MarkEmailVerified(ctx, claims.AccountID)
}

// Login never reveals whether the email exists; unknown accounts and wrong
// passwords both fail with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password, fingerprint string) (*LoginResult, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthLogin(ctx, "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	now := time.Now()
	if !account.IsEmailVerified {
		observability.RecordAuthLogin(ctx, "unverified")
		return nil, ErrEmailNotVerified
	}
	if account.IsLocked(now) {
		observability.RecordAuthLogin(ctx, "locked")
		return nil, &AccountLockedError{RetryAfter: account.LockRemaining(now)}
	}
	if !account.IsActive {
		observability.RecordAuthLogin(ctx, "disabled")
		return nil, ErrAccountDisabled
	}
	if !s.hasher.Verify(account.PasswordHash, password) {
		_, lockedUntil, rerr := s.accounts.RegisterFailedAttempt(ctx, account.ID, s.cfg.Lockout, now)
		if rerr != nil {
			return nil, fmt.Errorf("record failed attempt: %w", rerr)
		}
		if lockedUntil != nil {
			observability.RecordLockoutTransition(ctx, "locked")
			slog.WarnContext(ctx, "account locked after repeated failures", "account_id", account.ID)
		}
		observability.RecordAuthLogin(ctx, "bad_password")
		return nil, ErrInvalidCredentials
	}
	if account.FailedAttempts > 0 || account.LockUntil != nil {
		if err := s.accounts.ClearLockout(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("clear lockout: %w", err)
		}
		account.FailedAttempts = 0
		account.LockUntil = nil
	}
	access, refresh, err := s.issue(ctx, account, fingerprint, now)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthLogin(ctx, "success")
	return &LoginResult{Account: account, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issue(ctx context.Context, account *domain.Account, fingerprint string, now time.Time) (string, string, error) {
	access, err := s.jwtMgr.SignAccessToken(account.ID, string(account.Role), s.cfg.AccessTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.jwtMgr.SignRefreshToken(account.ID, s.cfg.RefreshTokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	record := &domain.RefreshTokenRecord{
		AccountID:         account.ID,
		TokenHash:         security.HashRefreshToken(refresh, s.cfg.RefreshTokenPepper),
		DeviceFingerprint: fingerprint,
		IsActive:          true,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.accounts.AppendRefreshToken(ctx, record); err != nil {
		return "", "", fmt.Errorf("persist refresh token: %w", err)
	}
	return access, refresh, nil
}

// Refresh mints a new access token. The presented refresh token stays
// valid for its full life; rotation on use is an explicit non-behavior of
// this system's threat model.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		observability.RecordAuthRefresh(ctx, "invalid_token")
		return "", err
	}
	account, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthRefresh(ctx, "unknown_account")
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}
	if !account.IsActive {
		observability.RecordAuthRefresh(ctx, "disabled")
		return "", ErrAccountDisabled
	}
	hash := security.HashRefreshToken(refreshToken, s.cfg.RefreshTokenPepper)
	record, err := s.accounts.FindRefreshToken(ctx, account.ID, hash)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			observability.RecordAuthRefresh(ctx, "not_registered")
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}
	if !record.Usable(time.Now()) {
		observability.RecordAuthRefresh(ctx, "revoked_or_expired")
		return "", ErrInvalidRefreshToken
	}
	access, err := s.jwtMgr.SignAccessToken(account.ID, string(account.Role), s.cfg.AccessTokenTTL)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	observability.RecordAuthRefresh(ctx, "success")
	return access, nil
}

// VerifyAccess is the request-path gate. Checks run in order and the first
// failure wins: signature/expiry, type, per-token blacklist, account-wide
// blacklist, account state.
func (s *AuthService) VerifyAccess(ctx context.Context, raw string) (*domain.Account, *security.Claims, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		observability.RecordTokenValidation(ctx, "invalid")
		return nil, nil, err
	}
	if claims.ID != "" {
		revoked, err := s.revocations.IsTokenBlacklisted(ctx, claims.ID)
		if err != nil {
			if !s.cfg.RevocationFailOpen {
				observability.RecordTokenValidation(ctx, "cache_fail_closed")
				return nil, nil, ErrTokenRevoked
			}
			slog.WarnContext(ctx, "revocation cache unavailable, failing open", "check", "token", "error", err)
		} else if revoked {
			observability.RecordTokenValidation(ctx, "revoked")
			return nil, nil, ErrTokenRevoked
		}
	}
	cutoff, found, err := s.revocations.AccountCutoff(ctx, claims.AccountID)
	if err != nil {
		if !s.cfg.RevocationFailOpen {
			observability.RecordTokenValidation(ctx, "cache_fail_closed")
			return nil, nil, ErrTokenRevoked
		}
		slog.WarnContext(ctx, "revocation cache unavailable, failing open", "check", "account", "error", err)
	} else if found && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(cutoff) {
		observability.RecordTokenValidation(ctx, "revoked")
		return nil, nil, ErrTokenRevoked
	}
	account, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordTokenValidation(ctx, "unknown_account")
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	now := time.Now()
	switch {
	case !account.IsActive:
		observability.RecordTokenValidation(ctx, "disabled")
		return nil, nil, ErrAccountDisabled
	case !account.IsEmailVerified:
		observability.RecordTokenValidation(ctx, "unverified")
		return nil, nil, ErrEmailNotVerified
	case account.IsLocked(now):
		observability.RecordTokenValidation(ctx, "locked")
		return nil, nil, &AccountLockedError{RetryAfter: account.LockRemaining(now)}
	}
	observability.RecordTokenValidation(ctx, "valid")
	return account, claims, nil
}

func (s *AuthService) SessionStatus(ctx context.Context, accountID string) (*SessionStatus, error) {
	count, err := s.accounts.CountActiveRefreshTokens(ctx, accountID, time.Now())
	if err != nil {
		return nil, err
	}
	_, loggedOut, err := s.revocations.AccountCutoff(ctx, accountID)
	if err != nil {
		slog.WarnContext(ctx, "revocation cache unavailable for session status", "error", err)
		loggedOut = false
	}
	return &SessionStatus{ActiveTokenCount: count, LoggedOutEverywhere: loggedOut}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
