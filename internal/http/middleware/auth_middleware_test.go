package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/security"
	"github.com/shopcore/shopcore-backend/internal/service"
)

type stubVerifier struct {
	account *domain.Account
	claims  *security.Claims
	err     error
}

func (v *stubVerifier) VerifyAccess(context.Context, string) (*domain.Account, *security.Claims, error) {
	return v.account, v.claims, v.err
}

func okHandler(t *testing.T, wantAccount string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := AccountFromContext(r.Context())
		if !ok {
			t.Fatal("account missing from context")
		}
		if account.ID != wantAccount {
			t.Fatalf("account = %q, want %q", account.ID, wantAccount)
		}
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			t.Fatal("claims missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	verifier := &stubVerifier{
		account: &domain.Account{ID: "acct-1", Role: domain.RoleUser},
		claims:  &security.Claims{AccountID: "acct-1"},
	}
	h := RequireAuth(verifier)(okHandler(t, "acct-1"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	h := RequireAuth(&stubVerifier{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler reached without token")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthMapsVerifierErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"expired", security.ErrTokenExpired, http.StatusUnauthorized},
		{"revoked", service.ErrTokenRevoked, http.StatusUnauthorized},
		{"disabled", service.ErrAccountDisabled, http.StatusForbidden},
		{"locked", &service.AccountLockedError{RetryAfter: 0}, http.StatusLocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireAuth(&stubVerifier{err: tc.err})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler reached with invalid token")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer bad")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			var body struct {
				Success bool `json:"success"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success {
				t.Fatal("error response marked success")
			}
		})
	}
}

func TestOptionalAuthProceedsAnonymously(t *testing.T) {
	h := OptionalAuth(&stubVerifier{err: security.ErrInvalidToken})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AccountFromContext(r.Context()); ok {
			t.Fatal("identity attached despite invalid token")
		}
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	verifier := &stubVerifier{
		account: &domain.Account{ID: "acct-1", Role: domain.RoleUser},
		claims:  &security.Claims{AccountID: "acct-1"},
	}
	h := RequireAuth(verifier)(RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("non-admin reached admin handler")
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := BearerToken(req); got != "" {
		t.Fatalf("token = %q, want empty", got)
	}
	req.Header.Set("Authorization", "Bearer abc123")
	if got := BearerToken(req); got != "abc123" {
		t.Fatalf("token = %q", got)
	}
	req.Header.Set("Authorization", "bearer abc123")
	if got := BearerToken(req); got != "abc123" {
		t.Fatalf("lowercase scheme: token = %q", got)
	}
	req.Header.Set("Authorization", "Basic abc123")
	if got := BearerToken(req); got != "" {
		t.Fatalf("basic scheme accepted: %q", got)
	}
}
