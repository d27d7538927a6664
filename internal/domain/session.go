package domain

import "time"

// Session is the cookie-addressable overlay record kept in the cache,
// independent of bearer tokens.
type Session struct {
	ID                string    `json:"session_id"`
	AccountID         string    `json:"account_id"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	LoginTime         time.Time `json:"login_time"`
	LastActivity      time.Time `json:"last_activity"`
}
