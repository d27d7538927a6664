package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrEmailTaken           = errors.New("email already registered")
)

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	MarkEmailVerified(ctx context.Context, id string) error

	RegisterFailedAttempt(ctx context.Context, id string, policy domain.LockoutPolicy, now time.Time) (int, *time.Time, error)
	ClearLockout(ctx context.Context, id string) error

	AppendRefreshToken(ctx context.Context, record *domain.RefreshTokenRecord) error
	FindRefreshToken(ctx context.Context, accountID, tokenHash string) (*domain.RefreshTokenRecord, error)
	SetRefreshTokenInactive(ctx context.Context, accountID, tokenHash string) (bool, error)
	DeactivateAllRefreshTokens(ctx context.Context, accountID string) (int64, error)
	RemoveRefreshToken(ctx context.Context, accountID, tokenHash string) error
	CountActiveRefreshTokens(ctx context.Context, accountID string, now time.Time) (int64, error)
	CleanupExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type GormAccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository { return &GormAccountRepository{db: db} }

func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(ctx, "account", "create", "conflict")
			return ErrEmailTaken
		}
		observability.RecordRepositoryOperation(ctx, "account", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "account", "create", "success")
	return nil
}

func (r *GormAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "account", "find_by_id", "not_found")
			return nil, ErrAccountNotFound
		}
		observability.RecordRepositoryOperation(ctx, "account", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "account", "find_by_id", "success")
	return &a, nil
}

func (r *GormAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "account", "find_by_email", "not_found")
			return nil, ErrAccountNotFound
		}
		observability.RecordRepositoryOperation(ctx, "account", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "account", "find_by_email", "success")
	return &a, nil
}

func (r *GormAccountRepository) MarkEmailVerified(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", id).
		Update("is_email_verified", true)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "account", "mark_email_verified", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "account", "mark_email_verified", "not_found")
		return ErrAccountNotFound
	}
	observability.RecordRepositoryOperation(ctx, "account", "mark_email_verified", "success")
	return nil
}

// RegisterFailedAttempt applies the lockout transition inside a single
// row-locked transaction, so two concurrent failures both count and the
// threshold check sees the final value.
func (r *GormAccountRepository) RegisterFailedAttempt(ctx context.Context, id string, policy domain.LockoutPolicy, now time.Time) (int, *time.Time, error) {
	var attempts int
	var lockUntil *time.Time
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a domain.Account
		q := tx.Select("id", "failed_attempts", "lock_until").Where("id = ?", id)
		if tx.Dialector.Name() != "sqlite" {
			// sqlite has no FOR UPDATE; its single-writer lock already
			// serializes the transaction.
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		attempts, lockUntil = policy.Fail(a.FailedAttempts, a.LockUntil, now)
		return tx.Model(&domain.Account{}).
			Where("id = ?", id).
			Updates(map[string]any{"failed_attempts": attempts, "lock_until": lockUntil}).Error
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			observability.RecordRepositoryOperation(ctx, "account", "register_failed_attempt", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "account", "register_failed_attempt", "error")
		}
		return 0, nil, err
	}
	observability.RecordRepositoryOperation(ctx, "account", "register_failed_attempt", "success")
	return attempts, lockUntil, nil
}

func (r *GormAccountRepository) ClearLockout(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{"failed_attempts": 0, "lock_until": nil}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "account", "clear_lockout", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "account", "clear_lockout", "success")
	return nil
}

func (r *GormAccountRepository) AppendRefreshToken(ctx context.Context, record *domain.RefreshTokenRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "append", "success")
	return nil
}

func (r *GormAccountRepository) FindRefreshToken(ctx context.Context, accountID, tokenHash string) (*domain.RefreshTokenRecord, error) {
	var rec domain.RefreshTokenRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND token_hash = ?", accountID, tokenHash).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "find", "not_found")
			return nil, ErrRefreshTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "refresh_token", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "find", "success")
	return &rec, nil
}

// SetRefreshTokenInactive reports whether the record changed state, so a
// second revoke of the same token is observably idempotent.
func (r *GormAccountRepository) SetRefreshTokenInactive(ctx context.Context, accountID, tokenHash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefreshTokenRecord{}).
		Where("account_id = ? AND token_hash = ? AND is_active = ?", accountID, tokenHash, true).
		Update("is_active", false)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "set_inactive", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.RefreshTokenRecord{}).
			Where("account_id = ? AND token_hash = ?", accountID, tokenHash).
			Count(&count).Error; err != nil {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "set_inactive", "error")
			return false, err
		}
		if count == 0 {
			observability.RecordRepositoryOperation(ctx, "refresh_token", "set_inactive", "not_found")
			return false, ErrRefreshTokenNotFound
		}
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "set_inactive", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormAccountRepository) DeactivateAllRefreshTokens(ctx context.Context, accountID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.RefreshTokenRecord{}).
		Where("account_id = ? AND is_active = ?", accountID, true).
		Update("is_active", false)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "deactivate_all", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "deactivate_all", "success")
	return res.RowsAffected, nil
}

func (r *GormAccountRepository) RemoveRefreshToken(ctx context.Context, accountID, tokenHash string) error {
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND token_hash = ?", accountID, tokenHash).
		Delete(&domain.RefreshTokenRecord{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "remove", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "remove", "success")
	return nil
}

func (r *GormAccountRepository) CountActiveRefreshTokens(ctx context.Context, accountID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RefreshTokenRecord{}).
		Where("account_id = ? AND is_active = ? AND expires_at > ?", accountID, true, now).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "count_active", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "count_active", "success")
	return count, nil
}

func (r *GormAccountRepository) CleanupExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.RefreshTokenRecord{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "refresh_token", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "refresh_token", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
