package teleporter

import (
	"strings"
	"time"
)

// FallbackSessionValidity is used when a node reports a non-positive validity.
const FallbackSessionValidity = 5 * time.Minute

// Session is the credential bundle returned by a successful login.
type Session struct {
	SID       string        `json:"-"` // Never expose in JSON
	CSRF      string        `json:"-"`
	TOTP      bool          `json:"totp"`
	Validity  time.Duration `json:"validity"`
	CreatedAt time.Time     `json:"created_at"`
}

// ExpiresAt returns the moment the node stops honouring the session.
func (s *Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(s.Validity)
}

// IsExpired checks if the session can no longer be used at the given time
func (s *Session) IsExpired(now time.Time) bool {
	if s == nil || strings.TrimSpace(s.SID) == "" {
		return true
	}
	return !now.Before(s.ExpiresAt())
}
