package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrEmailNotVerified        = errors.New("email not verified")
	ErrAccountDisabled         = errors.New("account disabled")
	ErrTokenRevoked            = errors.New("token revoked")
	ErrInvalidRefreshToken     = errors.New("invalid refresh token")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrFingerprintMismatch     = errors.New("device fingerprint mismatch")
	ErrSessionNotFound         = errors.New("session not found")
)

// AccountLockedError surfaces only the remaining wait, never the failure
// count.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.RetryMinutes())
}

func (e *AccountLockedError) RetryMinutes() int {
	m := int(math.Ceil(e.RetryAfter.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}
