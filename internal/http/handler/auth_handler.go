package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/http/middleware"
	"github.com/shopcore/shopcore-backend/internal/http/response"
	"github.com/shopcore/shopcore-backend/internal/observability"
	"github.com/shopcore/shopcore-backend/internal/security"
	"github.com/shopcore/shopcore-backend/internal/service"
)

// AuthCapability is what the handlers need from the auth core; the
// concrete AuthService satisfies it.
type AuthCapability interface {
	Register(ctx context.Context, email, password string) (*domain.Account, error)
	ConfirmEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password, fingerprint string) (*service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	SessionStatus(ctx context.Context, accountID string) (*service.SessionStatus, error)
}

type RevocationCapability interface {
	BlacklistToken(ctx context.Context, jti string, remaining time.Duration)
	BlacklistAllAccountTokens(ctx context.Context, accountID string)
	RevokeRefreshToken(ctx context.Context, accountID, tokenValue string) error
	RemoveRefreshToken(ctx context.Context, accountID, tokenValue string) error
	RevokeAllRefreshTokens(ctx context.Context, accountID string) error
	RevokeDevice(ctx context.Context, accountID, tokenValue, fingerprint string) error
}

type AuthHandler struct {
	auth        AuthCapability
	revocations RevocationCapability
	sessions    service.SessionStore
	cookieName  string
	sessionTTL  time.Duration
}

func NewAuthHandler(auth AuthCapability, revocations RevocationCapability, sessions service.SessionStore, cookieName string, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		revocations: revocations,
		sessions:    sessions,
		cookieName:  cookieName,
		sessionTTL:  sessionTTL,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "a valid email is required", nil)
		return
	}
	if len(req.Password) < 8 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 8 characters", nil)
		return
	}
	account, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	observability.Audit(r, "account_registered", "account_id", account.ID)
	response.JSON(w, r, http.StatusCreated, map[string]any{"account": account})
}

type confirmRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ConfirmEmail(r.Context(), req.Token); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"verified": true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", nil)
		return
	}
	fingerprint := deviceFingerprint(r)
	result, err := h.auth.Login(r.Context(), req.Email, req.Password, fingerprint)
	if err != nil {
		observability.Audit(r, "login_failed", "email", req.Email)
		response.FromError(w, r, err)
		return
	}
	sess, err := h.sessions.Create(r.Context(), result.Account.ID, fingerprint)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	h.setSessionCookie(w, sess.ID)
	observability.Audit(r, "login_succeeded", "account_id", result.Account.ID)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"account":       result.Account,
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required", nil)
		return
	}
	access, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"access_token": access})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout blacklists the presented access token, drops the matching
// refresh record when one is supplied, and destroys the overlay session.
// Session destruction is awaited before responding, so the client never
// observes a half-terminated session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	account, claims, ok := identity(w, r)
	if !ok {
		return
	}
	var req logoutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	h.revocations.BlacklistToken(r.Context(), claims.ID, time.Until(claims.ExpiresAt.Time))
	if req.RefreshToken != "" {
		if err := h.revocations.RemoveRefreshToken(r.Context(), account.ID, req.RefreshToken); err != nil {
			response.FromError(w, r, err)
			return
		}
	}
	if err := h.destroySessionFromCookie(r); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	h.clearSessionCookie(w)
	observability.RecordAuthLogout(r.Context(), "single", "success")
	observability.Audit(r, "logout", "account_id", account.ID)
	response.JSON(w, r, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	account, _, ok := identity(w, r)
	if !ok {
		return
	}
	h.revocations.BlacklistAllAccountTokens(r.Context(), account.ID)
	if err := h.revocations.RevokeAllRefreshTokens(r.Context(), account.ID); err != nil {
		response.FromError(w, r, err)
		return
	}
	destroyed, err := h.sessions.DestroyAll(r.Context(), account.ID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	h.clearSessionCookie(w)
	observability.RecordAuthLogout(r.Context(), "all", "success")
	observability.Audit(r, "logout_all", "account_id", account.ID, "sessions_destroyed", destroyed)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"logged_out_everywhere": true,
		"sessions_destroyed":    destroyed,
	})
}

type logoutDeviceRequest struct {
	RefreshToken      string `json:"refresh_token"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

func (h *AuthHandler) LogoutDevice(w http.ResponseWriter, r *http.Request) {
	account, _, ok := identity(w, r)
	if !ok {
		return
	}
	var req logoutDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required", nil)
		return
	}
	if err := h.revocations.RevokeDevice(r.Context(), account.ID, req.RefreshToken, req.DeviceFingerprint); err != nil {
		response.FromError(w, r, err)
		return
	}
	observability.RecordAuthLogout(r.Context(), "device", "success")
	observability.Audit(r, "logout_device", "account_id", account.ID)
	response.JSON(w, r, http.StatusOK, map[string]any{"device_logged_out": true})
}

func (h *AuthHandler) SessionsStatus(w http.ResponseWriter, r *http.Request) {
	account, _, ok := identity(w, r)
	if !ok {
		return
	}
	status, err := h.auth.SessionStatus(r.Context(), account.ID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"active_token_count":    status.ActiveTokenCount,
		"logged_out_everywhere": status.LoggedOutEverywhere,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) destroySessionFromCookie(r *http.Request) error {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return h.sessions.Destroy(r.Context(), cookie.Value)
}

func identity(w http.ResponseWriter, r *http.Request) (*domain.Account, *security.Claims, bool) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		response.FromError(w, r, service.ErrUnauthenticated)
		return nil, nil, false
	}
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.FromError(w, r, service.ErrUnauthenticated)
		return nil, nil, false
	}
	return account, claims, true
}

func deviceFingerprint(r *http.Request) string {
	return security.DeriveFingerprint(r.Header.Get("X-Device-Fingerprint"), r.UserAgent(), clientIP(r))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "request body is required", nil)
			return false
		}
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", nil)
		return false
	}
	return true
}
