package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/repository"
)

// memoryAccountRepository backs service tests without a database.
type memoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	tokens   []*domain.RefreshTokenRecord
	nextID   uint
}

func newMemoryAccountRepository() *memoryAccountRepository {
	return &memoryAccountRepository{accounts: make(map[string]*domain.Account)}
}

func (r *memoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == account.Email {
			return repository.ErrEmailTaken
		}
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *memoryAccountRepository) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryAccountRepository) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (r *memoryAccountRepository) MarkEmailVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.IsEmailVerified = true
	return nil
}

func (r *memoryAccountRepository) RegisterFailedAttempt(_ context.Context, id string, policy domain.LockoutPolicy, now time.Time) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return 0, nil, repository.ErrAccountNotFound
	}
	a.FailedAttempts, a.LockUntil = policy.Fail(a.FailedAttempts, a.LockUntil, now)
	return a.FailedAttempts, a.LockUntil, nil
}

func (r *memoryAccountRepository) ClearLockout(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.FailedAttempts = 0
	a.LockUntil = nil
	return nil
}

func (r *memoryAccountRepository) AppendRefreshToken(_ context.Context, record *domain.RefreshTokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *record
	cp.ID = r.nextID
	r.tokens = append(r.tokens, &cp)
	return nil
}

func (r *memoryAccountRepository) FindRefreshToken(_ context.Context, accountID, tokenHash string) (*domain.RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.tokens {
		if rec.AccountID == accountID && rec.TokenHash == tokenHash {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrRefreshTokenNotFound
}

func (r *memoryAccountRepository) SetRefreshTokenInactive(_ context.Context, accountID, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.tokens {
		if rec.AccountID == accountID && rec.TokenHash == tokenHash {
			changed := rec.IsActive
			rec.IsActive = false
			return changed, nil
		}
	}
	return false, repository.ErrRefreshTokenNotFound
}

func (r *memoryAccountRepository) DeactivateAllRefreshTokens(_ context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.tokens {
		if rec.AccountID == accountID && rec.IsActive {
			rec.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memoryAccountRepository) RemoveRefreshToken(_ context.Context, accountID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tokens[:0]
	for _, rec := range r.tokens {
		if rec.AccountID == accountID && rec.TokenHash == tokenHash {
			continue
		}
		kept = append(kept, rec)
	}
	r.tokens = kept
	return nil
}

func (r *memoryAccountRepository) CountActiveRefreshTokens(_ context.Context, accountID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.tokens {
		if rec.AccountID == accountID && rec.Usable(now) {
			n++
		}
	}
	return n, nil
}

func (r *memoryAccountRepository) CleanupExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	kept := r.tokens[:0]
	for _, rec := range r.tokens {
		if !rec.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.tokens = kept
	return n, nil
}

// memoryRevocationStore implements RevocationStore in-process; setting
// failing makes every call error, for fail-open and fail-closed tests.
type memoryRevocationStore struct {
	mu       sync.Mutex
	tokens   map[string]bool
	cutoffs  map[string]time.Time
	failing  bool
	failWith error
}

func newMemoryRevocationStore() *memoryRevocationStore {
	return &memoryRevocationStore{
		tokens:   make(map[string]bool),
		cutoffs:  make(map[string]time.Time),
		failWith: errors.New("cache unavailable"),
	}
}

func (s *memoryRevocationStore) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return s.failWith
	}
	if ttl > 0 {
		s.tokens[jti] = true
	}
	return nil
}

func (s *memoryRevocationStore) IsTokenBlacklisted(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, s.failWith
	}
	return s.tokens[jti], nil
}

func (s *memoryRevocationStore) BlacklistAccount(_ context.Context, accountID string, cutoff time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return s.failWith
	}
	s.cutoffs[accountID] = cutoff
	return nil
}

func (s *memoryRevocationStore) AccountCutoff(_ context.Context, accountID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return time.Time{}, false, s.failWith
	}
	cutoff, ok := s.cutoffs[accountID]
	return cutoff, ok, nil
}
