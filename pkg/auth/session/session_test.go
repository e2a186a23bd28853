package session

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ExpiresWithin(t *testing.T) {
	s := &Session{ExpiresAt: epoch.Unix() + 3600}

	assert.False(t, s.ExpiresWithin(epoch, time.Minute))
	assert.True(t, s.ExpiresWithin(epoch.Add(3540*time.Second), time.Minute))
	assert.True(t, s.ExpiresWithin(epoch.Add(2*time.Hour), 0))
	assert.False(t, (&Session{}).ExpiresWithin(epoch.Add(100*time.Hour), time.Minute), "unknown expiry never expires")
}

func TestSession_NormalizeFromExpiresIn(t *testing.T) {
	s := &Session{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600}
	s.normalize(epoch)
	assert.Equal(t, epoch.Unix()+3600, s.ExpiresAt)

	s.ExpiresIn = 10
	s.normalize(epoch.Add(time.Hour))
	assert.Equal(t, epoch.Unix()+3600, s.ExpiresAt, "an explicit expiry wins")
}

func TestSession_NormalizeFromToken(t *testing.T) {
	exp := epoch.Add(30 * time.Minute)
	tok, err := jwt.NewBuilder().Subject("user-1").Expiration(exp).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret-key-of-32-bytes-long!")))
	require.NoError(t, err)

	s := &Session{AccessToken: string(signed), RefreshToken: "r"}
	s.normalize(epoch)
	assert.Equal(t, exp.Unix(), s.ExpiresAt)
	assert.Equal(t, int64(1800), s.ExpiresIn)
}

func TestSession_Validate(t *testing.T) {
	require.NoError(t, testSession().Validate())
	assert.Error(t, (&Session{AccessToken: "a"}).Validate())
	assert.Error(t, (&Session{RefreshToken: "r"}).Validate())
	assert.Error(t, (&Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: -1}).Validate())
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := testSession()
	s.User.AppMetadata = map[string]any{"provider": "email"}

	c := s.Clone()
	c.User.AppMetadata["provider"] = "github"
	c.User.Email = "other@example.com"

	assert.Equal(t, "email", s.User.AppMetadata["provider"])
	assert.Equal(t, "user@example.com", s.User.Email)
	assert.Nil(t, (*Session)(nil).Clone())
}
