package domain

import "time"

// accessBuffer treats an access token as stale slightly before it actually expires.
const accessBuffer = 5 * time.Minute

// Session is the credential material of one authenticated provider.
// ExpiresAt bounds the whole session (refresh token lifetime), AccessExpiresAt
// only the current access token.
type Session struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token,omitempty"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	AccountID       string    `json:"account_id,omitempty"`
}

func (s Session) Empty() bool {
	return s.AccessToken == ""
}

// Expired reports whether the session can no longer be used or renewed.
func (s Session) Expired(now time.Time) bool {
	if s.Empty() {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// AccessStale reports whether the access token needs a refresh before use.
func (s Session) AccessStale(now time.Time) bool {
	if s.AccessExpiresAt.IsZero() {
		return false
	}
	return !now.Add(accessBuffer).Before(s.AccessExpiresAt)
}
