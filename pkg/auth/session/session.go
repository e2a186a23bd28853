// Package session keeps one persisted auth session fresh for every goroutine
// and process that shares it.
//
// The Coordinator owns the in-memory session, persists it through a Storage,
// and refreshes it through a Refresher so that at most one refresh exchange is
// in flight per lock name. Callers that ask for a refresh while one is running
// share its result instead of spending the refresh token a second time.
package session

import (
	"maps"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jrschumacher/authsync/pkg/auth/jwt"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Session is a token pair issued by the auth server.
type Session struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresIn is the lifetime in seconds reported when the token was issued.
	ExpiresIn int64 `json:"expires_in,omitempty" validate:"gte=0"`
	// ExpiresAt is the absolute expiry as a unix timestamp in seconds.
	ExpiresAt int64 `json:"expires_at,omitempty" validate:"gte=0"`
	User      *User `json:"user,omitempty"`
}

// User is the account the session belongs to.
type User struct {
	ID           string         `json:"id"`
	Aud          string         `json:"aud,omitempty"`
	Role         string         `json:"role,omitempty"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Validate checks that the session carries a usable token pair.
func (s *Session) Validate() error {
	return validate.Struct(s)
}

// Expiry returns the absolute expiry, or the zero time when unknown.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// ExpiresWithin reports whether the session expires no later than now+margin.
// A session with unknown expiry never reports true.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return !exp.After(now.Add(margin))
}

// Clone returns a deep copy. Cloning nil returns nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	return &c
}

// Clone returns a deep copy. Cloning nil returns nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.AppMetadata = maps.Clone(u.AppMetadata)
	c.UserMetadata = maps.Clone(u.UserMetadata)
	return &c
}

// normalize fills ExpiresAt from ExpiresIn, falling back to the access
// token's exp claim.
func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt != 0 {
		return
	}
	if s.ExpiresIn > 0 {
		s.ExpiresAt = now.Unix() + s.ExpiresIn
		return
	}
	if exp, err := jwt.ExpiresAt(s.AccessToken); err == nil {
		s.ExpiresAt = exp.Unix()
		if d := exp.Sub(now); d > 0 {
			s.ExpiresIn = int64(d / time.Second)
		}
	}
}
