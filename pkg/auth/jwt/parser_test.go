package jwt

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer("https://auth.example.com").
		Subject("user-123").
		Audience([]string{"authenticated"}).
		IssuedAt(exp.Add(-time.Hour)).
		Expiration(exp).
		Claim("session_id", "sess-1").
		Claim("role", "authenticated").
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret-key-of-32-bytes-long!")))
	require.NoError(t, err)
	return string(signed)
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := ParseClaims(signedToken(t, exp))
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", claims.Issuer)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, []string{"authenticated"}, claims.Audience)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "authenticated", claims.Role)
	assert.True(t, exp.Equal(claims.ExpiresAt))
}

func TestExpiresAtAcceptsExpiredTokens(t *testing.T) {
	exp := time.Now().Add(-time.Hour).Truncate(time.Second)
	got, err := ExpiresAt(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))
}

func TestExpiresAtWithoutExpiry(t *testing.T) {
	tok, err := jwt.NewBuilder().Subject("user-123").Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret-key-of-32-bytes-long!")))
	require.NoError(t, err)

	_, err = ExpiresAt(string(signed))
	assert.ErrorIs(t, err, ErrNoExpiry)
}

func TestParseClaimsInvalidToken(t *testing.T) {
	_, err := ParseClaims("invalid.jwt.token")
	assert.Error(t, err)
}
