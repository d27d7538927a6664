package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopcore/shopcore-backend/internal/repository"
	"github.com/shopcore/shopcore-backend/internal/security"
	"github.com/shopcore/shopcore-backend/internal/service"
)

// FromError maps the auth error taxonomy onto HTTP statuses. Unrecognized
// errors become an opaque 500; the message never echoes internal detail.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *service.AccountLockedError
	if errors.As(err, &locked) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", locked.RetryMinutes()*60))
		Error(w, r, http.StatusLocked, "ACCOUNT_LOCKED",
			fmt.Sprintf("account locked, try again in %d minutes", locked.RetryMinutes()),
			map[string]any{"retry_after_minutes": locked.RetryMinutes()})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
	case errors.Is(err, service.ErrEmailNotVerified):
		Error(w, r, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "email address is not verified", nil)
	case errors.Is(err, service.ErrAccountDisabled):
		Error(w, r, http.StatusForbidden, "ACCOUNT_DISABLED", "account is disabled", nil)
	case errors.Is(err, security.ErrTokenExpired):
		Error(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired", nil)
	case errors.Is(err, security.ErrWrongTokenType):
		Error(w, r, http.StatusUnauthorized, "WRONG_TOKEN_TYPE", "token type is not valid here", nil)
	case errors.Is(err, security.ErrInvalidToken):
		Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "token is invalid", nil)
	case errors.Is(err, service.ErrTokenRevoked):
		Error(w, r, http.StatusUnauthorized, "TOKEN_REVOKED", "token has been revoked", nil)
	case errors.Is(err, service.ErrInvalidRefreshToken):
		Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid", nil)
	case errors.Is(err, service.ErrFingerprintMismatch):
		Error(w, r, http.StatusUnauthorized, "FINGERPRINT_MISMATCH", "device fingerprint does not match", nil)
	case errors.Is(err, service.ErrUnauthenticated):
		Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	case errors.Is(err, service.ErrInsufficientPermissions):
		Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
	case errors.Is(err, repository.ErrEmailTaken):
		Error(w, r, http.StatusConflict, "EMAIL_TAKEN", "email is already registered", nil)
	default:
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
