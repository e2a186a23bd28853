package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrschumacher/authsync/pkg/auth/session"
)

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, call int)) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := int(ts.calls.Add(1))
		handler(w, r, call)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newRefresher(t *testing.T, ts *tokenServer, maxElapsed time.Duration) *OAuth2Refresher {
	t.Helper()
	r, err := NewOAuth2Refresher(Config{
		TokenURL:        ts.URL + "/token",
		ClientID:        "cli",
		HTTPClient:      ts.Client(),
		RetryBase:       time.Millisecond,
		MaxRetryElapsed: maxElapsed,
	})
	require.NoError(t, err)
	return r
}

func TestRefresh_Success(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-0", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "cli", r.PostForm.Get("client_id"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]any{"id": "user-1", "email": "user@example.com"},
		})
	})

	s, err := newRefresher(t, ts, time.Second).Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.Equal(t, "refresh-1", s.RefreshToken)
	assert.Equal(t, "bearer", s.TokenType)
	assert.Equal(t, int64(3600), s.ExpiresIn)
	assert.NotZero(t, s.ExpiresAt)
	require.NotNil(t, s.User)
	assert.Equal(t, "user@example.com", s.User.Email)
}

func TestRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-1", "expires_in": 60})
	})

	s, err := newRefresher(t, ts, time.Second).Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, "refresh-0", s.RefreshToken)
	assert.Nil(t, s.User)
}

func TestRefresh_InvalidGrantMeansSessionMissing(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Invalid Refresh Token: Already Used",
		})
	})

	_, err := newRefresher(t, ts, time.Second).Refresh(context.Background(), "refresh-0")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionMissing)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.Status)
	assert.Equal(t, "invalid_grant", authErr.Code)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestRefresh_OtherClientErrorsAreNotSessionMissing(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "access_denied"})
	})

	_, err := newRefresher(t, ts, time.Second).Refresh(context.Background(), "refresh-0")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "access_denied", authErr.Code)
	assert.NotErrorIs(t, err, session.ErrSessionMissing)
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestRefresh_RetriesServerErrors(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, call int) {
		if call < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-1", "refresh_token": "refresh-1", "expires_in": 3600})
	})

	s, err := newRefresher(t, ts, time.Second).Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.Equal(t, int32(3), ts.calls.Load())
}

func TestRefresh_GivesUpAfterRetryBudget(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate_limited"})
	})

	_, err := newRefresher(t, ts, 20*time.Millisecond).Refresh(context.Background(), "refresh-0")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	var fetchErr *RetryableFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.Status)
	assert.Greater(t, ts.calls.Load(), int32(1))
}

func TestRefresh_NetworkErrorIsRetryable(t *testing.T) {
	ts := newTokenServer(t, func(http.ResponseWriter, *http.Request, int) {})
	r := newRefresher(t, ts, 5*time.Millisecond)
	ts.Close()

	_, err := r.Refresh(context.Background(), "refresh-0")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestRefresh_ContextCancelled(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "a"})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRefresher(t, ts, time.Second).Refresh(ctx, "refresh-0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsRetryable(err))
}

func TestRefresh_CancelledDuringBackoff(t *testing.T) {
	ts := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "unavailable"})
	})
	r, err := NewOAuth2Refresher(Config{
		TokenURL:        ts.URL + "/token",
		HTTPClient:      ts.Client(),
		RetryBase:       10 * time.Second,
		MaxRetryElapsed: time.Minute,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ts.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = r.Refresh(ctx, "refresh-0")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), ts.calls.Load())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRefresh_EmptyRefreshToken(t *testing.T) {
	ts := newTokenServer(t, func(http.ResponseWriter, *http.Request, int) {})

	_, err := newRefresher(t, ts, time.Second).Refresh(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrSessionMissing)
	assert.Zero(t, ts.calls.Load())
}

func TestNewOAuth2Refresher_RequiresTokenURL(t *testing.T) {
	_, err := NewOAuth2Refresher(Config{})
	assert.Error(t, err)

	_, err = NewOAuth2Refresher(Config{TokenURL: "not a url"})
	assert.Error(t, err)
}
