package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/pkg/auth/session"
)

type staticSource struct{ s *session.Session }

func (src staticSource) Session() *session.Session { return src.s }

func get(t *testing.T, src SessionSource, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, "", &config.Config{}, src)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, staticSource{}, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestReadyz(t *testing.T) {
	fresh := &session.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	expired := &session.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Minute).Unix()}

	tests := []struct {
		name string
		s    *session.Session
		code int
	}{
		{"no session", nil, http.StatusServiceUnavailable},
		{"expired session", expired, http.StatusServiceUnavailable},
		{"fresh session", fresh, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, staticSource{tt.s}, "/readyz")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestStatusz(t *testing.T) {
	t.Run("signed out", func(t *testing.T) {
		rec := get(t, staticSource{}, "/statusz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"state":"signed_out"}`, rec.Body.String())
	})

	t.Run("signed in hides tokens", func(t *testing.T) {
		s := &session.Session{
			AccessToken:  "secret-access",
			RefreshToken: "secret-refresh",
			ExpiresAt:    time.Now().Add(time.Hour).Unix(),
			User:         &session.User{ID: "user-1", Email: "user@example.com"},
		}
		rec := get(t, staticSource{s}, "/statusz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret-")

		var st Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		assert.Equal(t, "signed_in", st.State)
		assert.Equal(t, s.ExpiresAt, st.ExpiresAt)
		assert.InDelta(t, 3600, st.ExpiresIn, 5)
		assert.Equal(t, "user-1", st.UserID)
		assert.Equal(t, "user@example.com", st.Email)
	})
}
