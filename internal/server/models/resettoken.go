package models

import "time"

// PasswordResetToken is a stored reset grant. Only the SHA-256 digest of
// the token handed to the user is kept.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Used reports whether the token was already redeemed.
func (t *PasswordResetToken) Used() bool {
	return t.UsedAt != nil
}

// Expired reports whether the token is past its expiry at now.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
