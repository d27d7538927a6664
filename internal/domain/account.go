package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Account struct {
	ID              string               `gorm:"primaryKey;size:36" json:"id"`
	Email           string               `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash    string               `gorm:"size:128;not null" json:"-"`
	Role            Role                 `gorm:"size:16;not null;default:user" json:"role"`
	IsEmailVerified bool                 `gorm:"not null;default:false" json:"is_email_verified"`
	IsActive        bool                 `gorm:"not null;default:true" json:"is_active"`
	FailedAttempts  int                  `gorm:"not null;default:0" json:"-"`
	LockUntil       *time.Time           `gorm:"index" json:"-"`
	RefreshTokens   []RefreshTokenRecord `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// IsLocked reports whether authentication attempts must be rejected,
// regardless of password correctness.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

func (a *Account) LockRemaining(now time.Time) time.Duration {
	if !a.IsLocked(now) {
		return 0
	}
	return a.LockUntil.Sub(now)
}

type RefreshTokenRecord struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	AccountID         string    `gorm:"size:36;index;not null" json:"-"`
	TokenHash         string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	DeviceFingerprint string    `gorm:"size:128;index" json:"device_fingerprint,omitempty"`
	IsActive          bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `gorm:"index;not null" json:"expires_at"`
}

// Usable reports whether the record can still mint new access tokens.
func (r *RefreshTokenRecord) Usable(now time.Time) bool {
	return r.IsActive && r.ExpiresAt.After(now)
}
